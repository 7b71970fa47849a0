package lambda

import (
	"context"
	"time"

	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
)

// fakeAPI scripts the platform client. Calls are recorded so tests can
// assert on ordering and payloads.
type fakeAPI struct {
	invokeFn func(*awslambda.InvokeInput) (*awslambda.InvokeOutput, error)
	getFn    func(*awslambda.GetFunctionConfigurationInput) (*awslambda.GetFunctionConfigurationOutput, error)
	updateFn func(*awslambda.UpdateFunctionConfigurationInput) (*awslambda.UpdateFunctionConfigurationOutput, error)

	invokes []*awslambda.InvokeInput
	updates []*awslambda.UpdateFunctionConfigurationInput
}

var _ API = (*fakeAPI)(nil)

func (f *fakeAPI) Invoke(_ context.Context, params *awslambda.InvokeInput, _ ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error) {
	f.invokes = append(f.invokes, params)

	return f.invokeFn(params)
}

func (f *fakeAPI) GetFunctionConfiguration(_ context.Context, params *awslambda.GetFunctionConfigurationInput, _ ...func(*awslambda.Options)) (*awslambda.GetFunctionConfigurationOutput, error) {
	return f.getFn(params)
}

func (f *fakeAPI) UpdateFunctionConfiguration(_ context.Context, params *awslambda.UpdateFunctionConfigurationInput, _ ...func(*awslambda.Options)) (*awslambda.UpdateFunctionConfigurationOutput, error) {
	f.updates = append(f.updates, params)

	return f.updateFn(params)
}

// countingWait records confirmation waits and optionally fails them.
type countingWait struct {
	calls int
	err   error
}

func (w *countingWait) wait(_ context.Context, _ string, _ time.Duration) error {
	w.calls++

	return w.err
}

// fastPolicy keeps retry sleeps out of test time.
func fastPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		MaxDelay:  4 * time.Millisecond,
	}
}
