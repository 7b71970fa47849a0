// Package store persists runs, invocation results and aggregates. One
// keyed table holds all three record kinds behind an explicit item-type
// tag, with two secondary lookups: by configuration across runs and by
// run, both ordered by timestamp. The default backend is DynamoDB; a
// relational backend covers local analysis without cloud credentials.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sirupsen/logrus"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

// Supported storage drivers.
const (
	DriverDynamoDB = "dynamodb"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultTableName is the DynamoDB table holding all benchmark records.
const DefaultTableName = "BenchmarkResults"

// ErrRunNotFound is returned when a run identifier resolves to nothing.
var ErrRunNotFound = errors.New("run not found")

// Config contains storage backend settings.
type Config struct {
	Driver   string         `yaml:"driver"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb,omitempty"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// DynamoDBConfig contains DynamoDB-specific settings.
type DynamoDBConfig struct {
	TableName string `yaml:"table_name"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
}

// Store provides persistence for benchmark data. Results are written
// exactly once and never mutated; aggregates are recomputable and
// overwritten on rewrite; only the run record is updated in place.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// CreateRun persists the initial run record.
	CreateRun(ctx context.Context, run *benchmark.Run) error

	// FinalizeRun closes a run with its terminal status, end timestamp,
	// failure count and optional error summary.
	FinalizeRun(ctx context.Context, runID string, status benchmark.RunStatus, endedAt int64, failedInvocations int, errorSummary string) error

	// GetRun returns one run record or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*benchmark.Run, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]benchmark.Run, error)

	// PutResult persists one invocation result.
	PutResult(ctx context.Context, result *benchmark.Result) error

	// ListGroupResults returns the results of one
	// (run, configuration, invocation-type) group ordered by sequence.
	ListGroupResults(ctx context.Context, runID, configID string, invType benchmark.InvocationType) ([]benchmark.Result, error)

	// ListRunResults returns every result of a run ordered by timestamp.
	ListRunResults(ctx context.Context, runID string) ([]benchmark.Result, error)

	// ListConfigResults returns results for one configuration across
	// runs, newest first, capped at limit.
	ListConfigResults(ctx context.Context, configID string, limit int) ([]benchmark.Result, error)

	// PutAggregate persists one aggregate, replacing any prior record
	// for its group.
	PutAggregate(ctx context.Context, agg *benchmark.Aggregate) error

	// ListAggregates returns every aggregate of a run.
	ListAggregates(ctx context.Context, runID string) ([]benchmark.Aggregate, error)

	// Purge deletes every benchmark record and reports how many went.
	Purge(ctx context.Context) (int, error)
}

// New creates a Store for the configured driver. The AWS config is only
// used by the DynamoDB backend.
func New(log logrus.FieldLogger, cfg *Config, awsCfg aws.Config) (Store, error) {
	switch cfg.Driver {
	case DriverDynamoDB:
		return newDynamoStore(log, cfg, dynamodb.NewFromConfig(awsCfg)), nil
	case DriverSQLite, DriverPostgres:
		return newSQLStore(log, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
