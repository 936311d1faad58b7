package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type dialect struct {
	driver string
	schema string
	load   string
	save   string
	del    string

	// lock serializes read-modify-write transactions on one key. Empty when BEGIN
	// already takes the database write lock.
	lock string
}

var (
	sqliteDialect = dialect{
		driver: "sqlite3",
		schema: `
		CREATE TABLE IF NOT EXISTS kv_store (
			name       TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		load: `SELECT value FROM kv_store WHERE name = ?`,
		save: `
		INSERT INTO kv_store (name, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		del: `DELETE FROM kv_store WHERE name = ?`,
	}

	postgresDialect = dialect{
		driver: "pgx",
		schema: `
		CREATE TABLE IF NOT EXISTS kv_store (
			name       TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		load: `SELECT value FROM kv_store WHERE name = $1`,
		save: `
		INSERT INTO kv_store (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		del:  `DELETE FROM kv_store WHERE name = $1`,
		lock: `SELECT pg_advisory_xact_lock(hashtext($1))`,
	}
)

// SQLMedium persists documents in a single kv_store table.
type SQLMedium struct {
	db *sql.DB
	d  dialect
}

// OpenSQLite opens (and creates if needed) a local SQLite file.
func OpenSQLite(ctx context.Context, path string) (*SQLMedium, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open(sqliteDialect.driver, path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	return newSQLMedium(ctx, db, sqliteDialect)
}

// OpenPostgres connects to Postgres through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, connString string) (*SQLMedium, error) {
	db, err := sql.Open(postgresDialect.driver, connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return newSQLMedium(ctx, db, postgresDialect)
}

func newSQLMedium(ctx context.Context, db *sql.DB, d dialect) (*SQLMedium, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", d.driver, err)
	}
	return &SQLMedium{db: db, d: d}, nil
}

func (m *SQLMedium) Load(ctx context.Context, key string) ([]byte, error) {
	var value string
	if err := m.db.QueryRowContext(ctx, m.d.load, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(value), nil
}

func (m *SQLMedium) Save(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx, m.d.save, key, string(value))
	return err
}

// Update runs fn inside a transaction that holds the key's write lock until commit.
func (m *SQLMedium) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if m.d.lock != "" {
		if _, err := tx.ExecContext(ctx, m.d.lock, key); err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
	}
	var current []byte
	var value string
	switch err := tx.QueryRowContext(ctx, m.d.load, key).Scan(&value); {
	case err == nil:
		current = []byte(value)
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next != nil {
		if _, err := tx.ExecContext(ctx, m.d.save, key, string(next)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *SQLMedium) Delete(ctx context.Context, key string) error {
	_, err := m.db.ExecContext(ctx, m.d.del, key)
	return err
}

func (m *SQLMedium) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close closes the underlying connection.
func (m *SQLMedium) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}
