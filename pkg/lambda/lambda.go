// Package lambda talks to the remote function platform: it issues single
// invocations with log-tail capture and mutates function configuration to
// force cold execution environments.
package lambda

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
)

// API is the subset of the platform client used here. Satisfied by
// *awslambda.Client.
type API interface {
	// Invoke executes a function synchronously.
	Invoke(ctx context.Context, params *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)

	// GetFunctionConfiguration reads a function's current configuration.
	GetFunctionConfiguration(ctx context.Context, params *awslambda.GetFunctionConfigurationInput, optFns ...func(*awslambda.Options)) (*awslambda.GetFunctionConfigurationOutput, error)

	// UpdateFunctionConfiguration mutates a function's configuration.
	UpdateFunctionConfiguration(ctx context.Context, params *awslambda.UpdateFunctionConfigurationInput, optFns ...func(*awslambda.Options)) (*awslambda.UpdateFunctionConfigurationOutput, error)
}

// NewClient builds the platform client from a resolved AWS config.
func NewClient(cfg aws.Config) API {
	return awslambda.NewFromConfig(cfg)
}

// WaitFunc blocks until the platform reports a function's configuration
// update as fully applied, or the timeout elapses.
type WaitFunc func(ctx context.Context, functionName string, timeout time.Duration) error

// UpdateWaiter returns a WaitFunc backed by the platform's
// function-updated waiter.
func UpdateWaiter(api API) WaitFunc {
	waiter := awslambda.NewFunctionUpdatedWaiter(api)

	return func(ctx context.Context, functionName string, timeout time.Duration) error {
		return waiter.Wait(ctx, &awslambda.GetFunctionConfigurationInput{
			FunctionName: aws.String(functionName),
		}, timeout)
	}
}
