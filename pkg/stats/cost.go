package stats

// DefaultRegion is the pricing fallback region.
const DefaultRegion = "us-east-2"

// archPricing holds per-architecture billing rates: GB-second compute and
// per-request charge, first tier.
type archPricing struct {
	gbSecond   float64
	perRequest float64
}

// regionPricing is keyed by architecture.
type regionPricing map[string]archPricing

// pricing by region. The arm64 GB-second rate is 20% below x86.
var pricing = map[string]regionPricing{
	"us-east-2": {
		"x86":   {gbSecond: 0.0000166667, perRequest: 0.20 / 1_000_000},
		"arm64": {gbSecond: 0.0000133334, perRequest: 0.20 / 1_000_000},
	},
	"us-east-1": {
		"x86":   {gbSecond: 0.0000166667, perRequest: 0.20 / 1_000_000},
		"arm64": {gbSecond: 0.0000133334, perRequest: 0.20 / 1_000_000},
	},
}

// InvocationCost estimates the dollar cost of one invocation from its
// billed duration and allocated memory. Unknown regions fall back to
// DefaultRegion, unknown architectures to x86 rates.
func InvocationCost(billedDurationMs float64, memoryMB int, architecture, region string) float64 {
	byArch, ok := pricing[region]
	if !ok {
		byArch = pricing[DefaultRegion]
	}

	rates, ok := byArch[architecture]
	if !ok {
		rates = byArch["x86"]
	}

	gbSeconds := (float64(memoryMB) / 1024) * (billedDurationMs / 1000)

	return gbSeconds*rates.gbSecond + rates.perRequest
}

// CostPerMillion estimates the dollar cost of one million invocations at
// the given average billed duration.
func CostPerMillion(avgBilledDurationMs float64, memoryMB int, architecture, region string) float64 {
	return InvocationCost(avgBilledDurationMs, memoryMB, architecture, region) * 1_000_000
}
