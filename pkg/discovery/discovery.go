// Package discovery resolves the deployed benchmark functions from the
// infrastructure stack. The stack is the single source of truth for what
// is deployed; nothing here provisions or mutates resources.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/sirupsen/logrus"

	"github.com/coldbench/coldbench/pkg/benchmark"
	"github.com/coldbench/coldbench/pkg/lambda"
)

const lambdaResourceType = "AWS::Lambda::Function"

// StackAPI is the subset of the stack client used here. Satisfied by
// *cloudformation.Client.
type StackAPI interface {
	// ListStackResources pages through the resources of one stack.
	ListStackResources(ctx context.Context, params *cloudformation.ListStackResourcesInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStackResourcesOutput, error)
}

// NewStackClient builds the stack client from a resolved AWS config.
func NewStackClient(cfg aws.Config) StackAPI {
	return cloudformation.NewFromConfig(cfg)
}

// Discovery lists the deployed benchmark functions.
type Discovery interface {
	// Functions returns every benchmark function in the stack, sorted by
	// name. A non-empty filter keeps only names containing it. Functions
	// whose names do not follow the benchmark naming scheme are skipped.
	Functions(ctx context.Context, filter string) ([]benchmark.FunctionInfo, error)
}

type discovery struct {
	log       logrus.FieldLogger
	stack     StackAPI
	functions lambda.API
	stackName string
}

var _ Discovery = (*discovery)(nil)

// NewDiscovery creates a Discovery over one infrastructure stack.
func NewDiscovery(log logrus.FieldLogger, stack StackAPI, functions lambda.API, stackName string) Discovery {
	return &discovery{
		log:       log.WithField("component", "discovery"),
		stack:     stack,
		functions: functions,
		stackName: stackName,
	}
}

func (d *discovery) Functions(ctx context.Context, filter string) ([]benchmark.FunctionInfo, error) {
	names, err := d.functionNames(ctx)
	if err != nil {
		return nil, err
	}

	sort.Strings(names)

	infos := make([]benchmark.FunctionInfo, 0, len(names))

	for _, name := range names {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}

		runtime, arch, workloadType, err := benchmark.ParseFunctionName(name)
		if err != nil {
			d.log.WithField("function", name).Warn("Skipping function outside the naming scheme")

			continue
		}

		cfg, err := d.functions.GetFunctionConfiguration(ctx, &awslambda.GetFunctionConfigurationInput{
			FunctionName: aws.String(name),
		})
		if err != nil {
			return nil, fmt.Errorf("reading configuration of %s: %w", name, err)
		}

		info := benchmark.FunctionInfo{
			Name:         name,
			Runtime:      runtime,
			Architecture: arch,
			WorkloadType: workloadType,
		}

		if cfg.MemorySize != nil {
			info.CurrentMemoryMB = int(*cfg.MemorySize)
		}

		if cfg.Timeout != nil {
			info.TimeoutSec = int(*cfg.Timeout)
		}

		if cfg.Version != nil {
			info.Version = *cfg.Version
		}

		infos = append(infos, info)
	}

	if len(infos) == 0 {
		d.log.WithField("stack", d.stackName).Warn("No benchmark functions found")
	} else {
		d.log.WithField("count", len(infos)).Info("Discovered benchmark functions")
	}

	return infos, nil
}

// functionNames pages through the stack resources and collects the
// physical names of its functions.
func (d *discovery) functionNames(ctx context.Context) ([]string, error) {
	var (
		names     []string
		nextToken *string
	)

	for {
		out, err := d.stack.ListStackResources(ctx, &cloudformation.ListStackResourcesInput{
			StackName: aws.String(d.stackName),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("listing resources of stack %s: %w", d.stackName, err)
		}

		for _, res := range out.StackResourceSummaries {
			if res.ResourceType == nil || *res.ResourceType != lambdaResourceType {
				continue
			}

			if res.PhysicalResourceId != nil {
				names = append(names, *res.PhysicalResourceId)
			}
		}

		if out.NextToken == nil {
			break
		}

		nextToken = out.NextToken
	}

	return names, nil
}
