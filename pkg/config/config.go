// Package config loads and validates the benchmark configuration. Every
// setting has a default, so a config file is optional and flags only need
// to override the values that differ per run.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coldbench/coldbench/pkg/store"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultRegion is the AWS region benchmarked against.
	DefaultRegion = "us-east-2"

	// DefaultStackName is the infrastructure stack holding the deployed
	// benchmark functions.
	DefaultStackName = "LambdaBenchmarkStack"

	// DefaultWorkers is how many functions are sampled in parallel.
	DefaultWorkers = 12
)

// Config is the root configuration for coldbench.
type Config struct {
	Global    GlobalConfig    `yaml:"global"`
	AWS       AWSConfig       `yaml:"aws"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Run       RunConfig       `yaml:"run"`
	Storage   store.Config    `yaml:"storage"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// AWSConfig selects the account context for every remote call.
type AWSConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile,omitempty"`
}

// DiscoveryConfig locates the deployed benchmark functions.
type DiscoveryConfig struct {
	StackName string `yaml:"stack_name"`
}

// RunConfig contains benchmark execution settings.
type RunConfig struct {
	// Workers bounds how many functions are sampled in parallel.
	Workers int `yaml:"workers"`

	// RateLimit caps invocations per second across all workers.
	// 0 means unlimited.
	RateLimit float64 `yaml:"rate_limit,omitempty"`

	// MemorySizes restricts every workload's memory ladder to the
	// listed sizes (MB). Empty means the full ladder.
	MemorySizes []int `yaml:"memory_sizes,omitempty"`
}

// Load reads a configuration file and applies defaults. An empty path
// yields the pure default configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.AWS.Region == "" {
		c.AWS.Region = DefaultRegion
	}

	if c.Discovery.StackName == "" {
		c.Discovery.StackName = DefaultStackName
	}

	if c.Run.Workers == 0 {
		c.Run.Workers = DefaultWorkers
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = store.DriverDynamoDB
	}

	if c.Storage.DynamoDB.TableName == "" {
		c.Storage.DynamoDB.TableName = store.DefaultTableName
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Run.Workers < 1 {
		return fmt.Errorf("run.workers must be at least 1, got %d", c.Run.Workers)
	}

	if c.Run.RateLimit < 0 {
		return fmt.Errorf("run.rate_limit must not be negative, got %g", c.Run.RateLimit)
	}

	for _, mem := range c.Run.MemorySizes {
		if mem < 128 || mem > 10240 {
			return fmt.Errorf("run.memory_sizes: %d MB outside the supported 128-10240 MB range", mem)
		}
	}

	switch c.Storage.Driver {
	case store.DriverDynamoDB:
	case store.DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite driver")
		}
	case store.DriverPostgres:
		if c.Storage.Postgres.Host == "" {
			return fmt.Errorf("storage.postgres.host is required for the postgres driver")
		}

		if c.Storage.Postgres.Database == "" {
			return fmt.Errorf("storage.postgres.database is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	return nil
}
