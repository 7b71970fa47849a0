package benchmark

import "fmt"

// Mode selects the sample counts for a run.
type Mode string

// Run modes, ordered by statistical rigor.
const (
	// ModeTest is a quick validation pass.
	ModeTest Mode = "test"
	// ModeBalanced trades duration for publication-quality percentiles.
	ModeBalanced Mode = "balanced"
	// ModeProduction maximizes sample counts for stable p99 figures.
	ModeProduction Mode = "production"
)

// SampleCounts returns the cold and warm invocation counts per
// configuration for the mode.
func (m Mode) SampleCounts() (cold, warm int) {
	switch m {
	case ModeTest:
		return 2, 2
	case ModeBalanced:
		return 10, 20
	case ModeProduction:
		return 125, 500
	default:
		return 2, 2
	}
}

// Validate checks that the mode is one of the known values.
func (m Mode) Validate() error {
	switch m {
	case ModeTest, ModeBalanced, ModeProduction:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", m)
	}
}
