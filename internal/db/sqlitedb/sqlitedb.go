// Package sqlitedb persists the session slots in a device-local SQLite file.
package sqlitedb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/patric-chuzhbe/sanasto/internal/db/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteDB is a key-value store on top of a single SQLite table.
type SQLiteDB struct {
	database *sql.DB
}

// New opens path, applies the embedded migrations and returns the store.
func New(ctx context.Context, path string) (*SQLiteDB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/New(): error while `sql.Open()` calling: %w", err)
	}
	// one writer at a time; the session manager never needs more
	database.SetMaxOpenConns(1)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/New(): error while `database.PingContext()` calling: %w", err)
	}

	if err := migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}

	return &SQLiteDB{database: database}, nil
}

func migrate(ctx context.Context, database *sql.DB) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, database, migrations)
	if err != nil {
		return fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/migrate(): error while `goose.NewProvider()` calling: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/migrate(): error while `provider.Up()` calling: %w", err)
	}

	return nil
}

func (db *SQLiteDB) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, storage.ErrEmptyKey
	}

	var value string
	err := db.database.QueryRowContext(ctx, `SELECT "value" FROM kv_store WHERE "key" = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	return value, true, nil
}

func (db *SQLiteDB) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	_, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO kv_store ("key", "value", updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT ("key") DO UPDATE
				SET
					"value" = excluded."value",
					updated_at = excluded.updated_at
		`,
		key,
		value,
		time.Now().UTC().UnixMilli(),
	)

	return err
}

func (db *SQLiteDB) Remove(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	_, err := db.database.ExecContext(ctx, `DELETE FROM kv_store WHERE "key" = ?`, key)

	return err
}

func (db *SQLiteDB) Ping(ctx context.Context) error {
	return db.database.PingContext(ctx)
}

func (db *SQLiteDB) Close() error {
	if db == nil || db.database == nil {
		return nil
	}

	return db.database.Close()
}
