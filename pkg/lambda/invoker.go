package lambda

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/sirupsen/logrus"
)

// Outcome carries everything a single invocation returned: the response
// body, the decoded log tail and the function-level error marker when the
// workload itself raised. A set FunctionError is a valid failed sample,
// not a transport failure.
type Outcome struct {
	Payload       []byte
	LogTail       string
	FunctionError string
	StatusCode    int32
}

// Failed reports whether the function itself raised.
func (o *Outcome) Failed() bool {
	return o.FunctionError != ""
}

// Invoker issues exactly one invocation per call. Retry sits with the
// caller so transport errors stay distinguishable from workload errors.
type Invoker interface {
	// Invoke executes the function synchronously with log-tail capture
	// and returns the decoded outcome.
	Invoke(ctx context.Context, functionName string, payload []byte) (*Outcome, error)
}

type invoker struct {
	log logrus.FieldLogger
	api API
}

var _ Invoker = (*invoker)(nil)

// NewInvoker creates an Invoker on top of the platform client.
func NewInvoker(log logrus.FieldLogger, api API) Invoker {
	return &invoker{
		log: log.WithField("component", "invoker"),
		api: api,
	}
}

func (i *invoker) Invoke(ctx context.Context, functionName string, payload []byte) (*Outcome, error) {
	out, err := i.api.Invoke(ctx, &awslambda.InvokeInput{
		FunctionName:   aws.String(functionName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		LogType:        lambdatypes.LogTypeTail,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoking %s: %w", functionName, err)
	}

	outcome := &Outcome{
		Payload:    out.Payload,
		StatusCode: out.StatusCode,
	}

	if out.FunctionError != nil {
		outcome.FunctionError = *out.FunctionError
	}

	if out.LogResult != nil {
		decoded, err := base64.StdEncoding.DecodeString(*out.LogResult)
		if err != nil {
			return nil, fmt.Errorf("decoding log tail for %s: %w", functionName, err)
		}

		outcome.LogTail = string(decoded)
	}

	i.log.WithFields(logrus.Fields{
		"function": functionName,
		"status":   outcome.StatusCode,
		"failed":   outcome.Failed(),
	}).Debug("Invocation returned")

	return outcome, nil
}
