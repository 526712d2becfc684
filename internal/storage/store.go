// Package storage defines the persistence interface for reports and
// schedules. Backends: PostgreSQL, SQLite (shared gorm repositories),
// and an in-memory store.
package storage

import (
	"context"
	"errors"

	"github.com/jkaninda/mtafiti/internal/pipeline"
	"github.com/jkaninda/mtafiti/internal/scheduler"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the unified persistence interface.
type Store interface {
	Reports() pipeline.ReportStore
	Schedules() scheduler.ScheduleStore

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error
	// Ping verifies connectivity, for readiness checks.
	Ping(ctx context.Context) error
	Close() error
	// Driver returns the backend name.
	Driver() string
}
