// Package postgres implements the storage interface on PostgreSQL via gorm.
// The repositories are dialect-agnostic; the sqlite package reuses them
// with a different driver.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jkaninda/mtafiti/internal/pipeline"
	"github.com/jkaninda/mtafiti/internal/scheduler"
	"github.com/jkaninda/mtafiti/internal/storage"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) maxOpen() int {
	if c.MaxOpenConns > 0 {
		return c.MaxOpenConns
	}
	return 25
}

func (c Config) maxIdle() int {
	if c.MaxIdleConns > 0 {
		return c.MaxIdleConns
	}
	return 5
}

func (c Config) maxLifetime() time.Duration {
	if c.ConnMaxLifetime > 0 {
		return c.ConnMaxLifetime
	}
	return 30 * time.Minute
}

// DB wraps a gorm connection and exposes lazily-built repositories.
type DB struct {
	db     *gorm.DB
	driver string

	mu        sync.Mutex
	reports   *ReportRepo
	schedules *ScheduleRepo
}

var _ storage.Store = (*DB)(nil)

// Open connects to PostgreSQL and configures the connection pool.
func Open(cfg Config, logger *slog.Logger) (*DB, error) {
	gdb, err := gorm.Open(pgdriver.Open(cfg.DSN), GormConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.maxOpen())
	sqlDB.SetMaxIdleConns(cfg.maxIdle())
	sqlDB.SetConnMaxLifetime(cfg.maxLifetime())

	return NewFromGorm(gdb, storage.DriverPostgres), nil
}

// NewFromGorm wraps an existing gorm connection. Used by the sqlite
// package to share the repositories.
func NewFromGorm(gdb *gorm.DB, driver string) *DB {
	return &DB{db: gdb, driver: driver}
}

// GormConfig returns the shared gorm configuration: slog-backed query
// logging and UTC timestamps.
func GormConfig(logger *slog.Logger) *gorm.Config {
	var gl gormlogger.Interface
	if logger != nil {
		gl = gormlogger.New(&slogAdapter{logger: logger}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	} else {
		gl = gormlogger.Discard
	}
	return &gorm.Config{
		Logger:  gl,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates or updates the schema.
func (d *DB) Migrate(ctx context.Context) error {
	if err := d.db.WithContext(ctx).AutoMigrate(&ReportModel{}, &ScheduleModel{}); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns the backend name.
func (d *DB) Driver() string {
	return d.driver
}

// Reports returns the report repository.
func (d *DB) Reports() pipeline.ReportStore {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reports == nil {
		d.reports = &ReportRepo{db: d.db}
	}
	return d.reports
}

// Schedules returns the schedule repository.
func (d *DB) Schedules() scheduler.ScheduleStore {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.schedules == nil {
		d.schedules = &ScheduleRepo{db: d.db}
	}
	return d.schedules
}

// slogAdapter bridges gorm's Printf-style logger to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Printf(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
