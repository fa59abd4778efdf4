package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Options configures the connection pool.
type Options struct {
	Dialect         Dialect
	SQLitePath      string
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Repository owns the connection pool and hands out Queries, either directly
// for reads or bound to a transaction through WithTx.
type Repository struct {
	db      *sql.DB
	queries *Queries
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	if !opts.Dialect.IsValid() {
		return nil, fmt.Errorf("unsupported database dialect %q", opts.Dialect)
	}

	driverName, dsn, err := connectionString(opts)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Dialect, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(driverName, dsn, opts.Dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Database ready", "dialect", string(opts.Dialect))

	return NewRepository(db, opts.Dialect), nil
}

// NewRepository wraps an already migrated pool.
func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{
		db:      db,
		queries: New(db, dialect),
	}
}

func connectionString(opts Options) (driverName, dsn string, err error) {
	switch opts.Dialect {
	case SQLite:
		if opts.SQLitePath == "" {
			return "", "", errors.New("sqlite path is empty")
		}
		if err := os.MkdirAll(filepath.Dir(opts.SQLitePath), 0755); err != nil {
			return "", "", fmt.Errorf("create db directory: %w", err)
		}
		return "sqlite", sqliteDSN(opts.SQLitePath), nil
	case Postgres:
		if opts.DatabaseURL == "" {
			return "", "", errors.New("database url is empty")
		}
		return "postgres", opts.DatabaseURL, nil
	}
	return "", "", fmt.Errorf("unsupported database dialect %q", opts.Dialect)
}

// Queries returns the pool-bound query set used by read-only operations.
func (r *Repository) Queries() *Queries {
	return r.queries
}

// WithTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise; the connection goes back to the pool
// either way.
func (r *Repository) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping reports whether the pool can reach the database.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
