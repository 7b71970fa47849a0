package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/coldbench/coldbench/pkg/config"
	"github.com/coldbench/coldbench/pkg/store"
)

// loadConfig reads the optional --config file and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadAWSConfig resolves region and credentials for remote calls.
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}

	if cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS configuration: %w", err)
	}

	return awsCfg, nil
}

// openStore creates and starts the configured storage backend. AWS
// credentials are resolved only when the DynamoDB driver needs them, so
// local SQL storage works without an AWS account.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var awsCfg aws.Config

	if cfg.Storage.Driver == store.DriverDynamoDB {
		var err error

		awsCfg, err = loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	st, err := store.New(log, &cfg.Storage, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := st.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting store: %w", err)
	}

	return st, nil
}

// closeStore stops the store and logs instead of failing the command.
func closeStore(st store.Store) {
	if err := st.Stop(); err != nil {
		log.WithError(err).Warn("Failed to stop store")
	}
}

// confirm prompts on stdin and accepts only an explicit "yes".
func confirm(prompt string) bool {
	fmt.Printf("%s (yes/no): ", prompt)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}

	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}
