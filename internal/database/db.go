package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/quillread/peersync-go/internal/config"
)

// DBTX is an interface that both *sqlx.DB and *sqlx.Tx satisfy.
// This allows repositories to work with either a direct connection or a transaction.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Ensure *sqlx.DB and *sqlx.Tx implement DBTX
var _ DBTX = (*sqlx.DB)(nil)
var _ DBTX = (*sqlx.Tx)(nil)

type DB struct {
	*sqlx.DB
}

// Connect opens the local store. A postgres:// URL selects the shared
// Postgres backend; anything else is treated as a sqlite file path or DSN.
func Connect(databaseURL string) (*DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		driver = "postgres"
	}

	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		// sqlite serializes writers; a large pool only invites SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.DBMaxOpenConns)
		db.SetMaxIdleConns(config.DBMaxIdleConns)
		db.SetConnMaxLifetime(config.DBConnMaxLifetime)
	}

	return &DB{db}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// TxFunc is a function that runs within a transaction.
type TxFunc func(tx *sqlx.Tx) error

// WithTx executes fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, fn TxFunc) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Migrate applies the schema. The DDL is written to the portable subset
// both sqlite and postgres accept, so no per-driver migration files exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trusted_devices (
		device_id   TEXT PRIMARY KEY,
		device_name TEXT NOT NULL,
		paired_at   TIMESTAMP NOT NULL,
		expires_at  TIMESTAMP NOT NULL,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		book_id     TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		author      TEXT NOT NULL,
		cover       TEXT,
		source      TEXT NOT NULL,
		url         TEXT NOT NULL,
		file_hash   TEXT NOT NULL,
		is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
		date_added  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reading_progress (
		book_id       TEXT PRIMARY KEY,
		chapter_id    TEXT NOT NULL,
		chapter_index INTEGER NOT NULL,
		"offset"      INTEGER NOT NULL,
		progress      REAL NOT NULL,
		last_read_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookmarks (
		bookmark_id TEXT PRIMARY KEY,
		book_id     TEXT NOT NULL,
		chapter_id  TEXT NOT NULL,
		position    INTEGER NOT NULL,
		note        TEXT,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_sessions (
		id           TEXT PRIMARY KEY,
		device_id    TEXT NOT NULL,
		token_hash   TEXT NOT NULL,
		status       TEXT NOT NULL,
		started_at   TIMESTAMP NOT NULL,
		finished_at  TIMESTAMP,
		items_synced INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookmarks_book_id ON bookmarks (book_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_sessions_device_id ON sync_sessions (device_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_sessions_token_hash ON sync_sessions (token_hash)`,
}
