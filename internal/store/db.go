// Package store is the relational persistence layer: messages, devices,
// archive index rows, and SNMPv3 auth-failure counters, backed by GORM
// over SQLite (default) or PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config describes how to open the store's database connection.
type Config struct {
	Driver Driver

	// SQLitePath is the database file path, used when Driver is sqlite.
	SQLitePath string

	// PostgresDSN is a full connection string, used when Driver is postgres.
	PostgresDSN  string
	MaxOpenConns int
	MaxIdleConns int
}

// Store is the single owner of the database connection. All mutations,
// hot-path inserts and archive-loop deletes alike, go through this one
// *gorm.DB; the driver serializes concurrent callers internally.
type Store struct {
	db *gorm.DB
}

// New opens the configured database, runs AutoMigrate, and returns a
// ready-to-use Store.
func New(cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("store: sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("store: create database directory: %w", err)
		}
		// WAL mode lets the archive loop read/delete concurrently with the
		// batch writer without a long-lived exclusive lock; busy_timeout
		// absorbs brief writer contention instead of failing outright.
		dsn := cfg.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("store: postgres DSN is required")
		}
		dialector = postgres.Open(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if cfg.Driver == DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("store: underlying db: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Exec is the low-level escape hatch for callers that need raw SQL.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) error {
	return s.db.WithContext(ctx).Exec(sql, args...).Error
}

// Healthcheck verifies the underlying connection is reachable.
func (s *Store) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: underlying db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
