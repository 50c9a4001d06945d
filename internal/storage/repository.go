package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultMigrationRetries bounds how often a busy database is retried while
// applying schema migrations.
const DefaultMigrationRetries = 5

// SQLiteRepository owns the ledger database. All mutations of accounts,
// transactions, budgets and the budget progress cache go through WithTx.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

type options struct {
	migrationRetries int
}

type Option func(*options)

// WithMigrationRetries overrides DefaultMigrationRetries.
func WithMigrationRetries(n int) Option {
	return func(o *options) { o.migrationRetries = n }
}

// dsn enables foreign keys and WAL, and makes every transaction BEGIN
// IMMEDIATE so writers serialize on the database lock.
func dsn(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

func NewSQLiteRepository(ctx context.Context, dbPath string, opts ...Option) (*SQLiteRepository, error) {
	o := options{migrationRetries: DefaultMigrationRetries}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(ctx, dbPath, o.migrationRetries); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.InfoContext(ctx, "SQLite ledger store ready", "path", dbPath)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Queries returns statements bound to the connection pool, outside any
// transaction. Use it for reads and for cache fills.
func (r *SQLiteRepository) Queries() *Queries {
	return r.queries
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithTx runs fn inside one database transaction. Any error from fn rolls
// back every statement fn executed and is returned unchanged.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError("commit transaction", err)
	}
	return nil
}
