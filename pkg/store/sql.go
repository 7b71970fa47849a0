package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

type sqlStore struct {
	log logrus.FieldLogger
	cfg *Config
	db  *gorm.DB
}

var _ Store = (*sqlStore)(nil)

func newSQLStore(log logrus.FieldLogger, cfg *Config) *sqlStore {
	return &sqlStore{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *sqlStore) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported storage driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening benchmark database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&RunRecord{},
		&ResultRecord{},
		&AggregateRecord{},
	); err != nil {
		return fmt.Errorf("running benchmark migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Benchmark database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *sqlStore) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *sqlStore) CreateRun(ctx context.Context, run *benchmark.Run) error {
	record, err := runRecordFromDomain(run)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	return nil
}

func (s *sqlStore) FinalizeRun(ctx context.Context, runID string, status benchmark.RunStatus, endedAt int64, failedInvocations int, errorSummary string) error {
	updates := map[string]any{
		"status":             string(status),
		"end_time":           endedAt,
		"failed_invocations": failedInvocations,
	}

	if errorSummary != "" {
		updates["error_summary"] = errorSummary
	}

	result := s.db.WithContext(ctx).
		Model(&RunRecord{}).
		Where("run_id = ?", runID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("finalizing run %s: %w", runID, result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (s *sqlStore) GetRun(ctx context.Context, runID string) (*benchmark.Run, error) {
	var record RunRecord

	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}

	return record.toDomain()
}

func (s *sqlStore) ListRuns(ctx context.Context, limit int) ([]benchmark.Run, error) {
	query := s.db.WithContext(ctx).Order("start_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []RunRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]benchmark.Run, 0, len(records))

	for i := range records {
		run, err := records[i].toDomain()
		if err != nil {
			return nil, err
		}

		runs = append(runs, *run)
	}

	return runs, nil
}

func (s *sqlStore) PutResult(ctx context.Context, result *benchmark.Result) error {
	if err := s.db.WithContext(ctx).Create(resultRecordFromDomain(result)).Error; err != nil {
		return fmt.Errorf("creating result: %w", err)
	}

	return nil
}

func (s *sqlStore) ListGroupResults(ctx context.Context, runID, configID string, invType benchmark.InvocationType) ([]benchmark.Result, error) {
	var records []ResultRecord

	err := s.db.WithContext(ctx).
		Where("test_run_id = ? AND config_id = ? AND invocation_type = ?",
			runID, configID, string(invType)).
		Order("invocation_number ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing %s %s results: %w", configID, invType, err)
	}

	return resultsFromRecords(records), nil
}

func (s *sqlStore) ListRunResults(ctx context.Context, runID string) ([]benchmark.Result, error) {
	var records []ResultRecord

	err := s.db.WithContext(ctx).
		Where("test_run_id = ?", runID).
		Order("timestamp ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing results of run %s: %w", runID, err)
	}

	return resultsFromRecords(records), nil
}

func (s *sqlStore) ListConfigResults(ctx context.Context, configID string, limit int) ([]benchmark.Result, error) {
	query := s.db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []ResultRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing results of %s: %w", configID, err)
	}

	return resultsFromRecords(records), nil
}

// PutAggregate upserts so recomputing a group overwrites its prior
// aggregate. It deletes-then-creates so every column takes the new
// value, zero or not.
func (s *sqlStore) PutAggregate(ctx context.Context, agg *benchmark.Aggregate) error {
	record, err := aggregateRecordFromDomain(agg)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ? AND config_id = ? AND invocation_type = ?",
			record.RunID, record.ConfigID, record.InvocationType).
			Delete(&AggregateRecord{}).Error; err != nil {
			return err
		}

		return tx.Create(record).Error
	})
	if err != nil {
		return fmt.Errorf("upserting aggregate: %w", err)
	}

	return nil
}

func (s *sqlStore) ListAggregates(ctx context.Context, runID string) ([]benchmark.Aggregate, error) {
	var records []AggregateRecord

	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("config_id ASC, invocation_type ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing aggregates of run %s: %w", runID, err)
	}

	aggs := make([]benchmark.Aggregate, 0, len(records))

	for i := range records {
		agg, err := records[i].toDomain()
		if err != nil {
			return nil, err
		}

		aggs = append(aggs, *agg)
	}

	return aggs, nil
}

func (s *sqlStore) Purge(ctx context.Context) (int, error) {
	deleted := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&ResultRecord{}, &AggregateRecord{}, &RunRecord{}} {
			result := tx.Where("1 = 1").Delete(model)
			if result.Error != nil {
				return fmt.Errorf("purging records: %w", result.Error)
			}

			deleted += int(result.RowsAffected)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

func resultsFromRecords(records []ResultRecord) []benchmark.Result {
	results := make([]benchmark.Result, 0, len(records))
	for i := range records {
		results = append(results, *records[i].toDomain())
	}

	return results
}
