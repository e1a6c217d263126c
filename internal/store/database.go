// Package store persists translated records and rewrites queries so callers
// can filter on logical field names while the data lives in per-language
// columns.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/schema"
)

// Database wraps the sql.DB handle together with the dialect the rest of the
// store needs for placeholder and DDL rendering.
type Database struct {
	db      *sql.DB
	dialect schema.Dialect
	logger  *zap.Logger
}

func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	switch cfg.Driver {
	case "postgres":
		return openPostgres(cfg, logger)
	case "sqlite":
		return openSQLite(cfg, logger)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func openPostgres(cfg config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("PostgreSQL connected")

	return &Database{
		db:      db,
		dialect: schema.DialectPostgres,
		logger:  logger,
	}, nil
}

func openSQLite(cfg config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	dir := filepath.Dir(cfg.SQLitePath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
	}

	// Pragmas go into the DSN so every pooled connection carries them.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)",
		cfg.SQLitePath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	logger.Info("SQLite connected", zap.String("path", cfg.SQLitePath))

	return &Database{
		db:      db,
		dialect: schema.DialectSQLite,
		logger:  logger,
	}, nil
}

// OpenSQLiteMemory opens a private in-memory database, used by tests and
// fixture tooling.
func OpenSQLiteMemory(logger *zap.Logger) (*Database, error) {
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &Database{
		db:      db,
		dialect: schema.DialectSQLite,
		logger:  logger,
	}, nil
}

func (d *Database) DB() *sql.DB {
	return d.db
}

func (d *Database) Dialect() schema.Dialect {
	return d.dialect
}

func (d *Database) Inspector() schema.Inspector {
	if d.dialect == schema.DialectPostgres {
		return schema.NewPostgresInspector(d.db)
	}
	return schema.NewSQLiteInspector(d.db)
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
