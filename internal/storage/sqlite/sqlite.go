// Package sqlite implements the storage interface on SQLite.
// It reuses the gorm repositories from the postgres package through the
// pure-Go glebarez driver, so no cgo is required.
package sqlite

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	glebarez "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/jkaninda/mtafiti/internal/storage"
	"github.com/jkaninda/mtafiti/internal/storage/postgres"
)

// Config holds SQLite settings.
type Config struct {
	Path        string
	JournalMode string // Default "wal".
}

func (c Config) journalMode() string {
	if c.JournalMode != "" {
		return c.JournalMode
	}
	return "wal"
}

// Open opens or creates the SQLite database at cfg.Path.
func Open(cfg Config, logger *slog.Logger) (*postgres.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		cfg.Path, cfg.journalMode())

	gdb, err := gorm.Open(glebarez.Open(dsn), postgres.GormConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	return postgres.NewFromGorm(gdb, storage.DriverSQLite), nil
}
