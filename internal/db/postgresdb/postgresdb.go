// Package postgresdb provides a PostgreSQL-based implementation of the
// key-value storage the session slots are persisted in.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/sanasto/internal/db/storage"
)

// PostgresDB is a PostgreSQL-backed key-value store.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

// New connects, applies the goose migrations found in migrationsDir and
// returns the store. WithDBPreReset drops everything first.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `sql.Open()` calling: %w", err)
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w", err)
		}
	}

	if err := result.migrate(ctx, migrationsDir); err != nil {
		_ = database.Close()
		return nil, err
	}

	return result, nil
}

// Get returns the value stored under key.
func (db *PostgresDB) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, storage.ErrEmptyKey
	}

	row := db.database.QueryRowContext(
		ctx,
		`SELECT "value" FROM kv_store WHERE "key" = $1`,
		key,
	)
	var value string
	err := row.Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	return value, true, nil
}

// Set upserts value under key.
func (db *PostgresDB) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	_, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO kv_store ("key", "value", updated_at)
				VALUES ($1, $2, now())
				ON CONFLICT ("key") DO UPDATE
				SET
					"value" = EXCLUDED."value",
					updated_at = EXCLUDED.updated_at;
		`,
		key,
		value,
	)

	return err
}

// Remove deletes key; a missing key is not an error.
func (db *PostgresDB) Remove(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	_, err := db.database.ExecContext(ctx, `DELETE FROM kv_store WHERE "key" = $1`, key)

	return err
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables resetting the database schema before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// Ping is bounded by the connection timeout given to New.
func (db *PostgresDB) Ping(ctx context.Context) error {
	if db.connectionTimeout <= 0 {
		return db.database.PingContext(ctx)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

func (db *PostgresDB) migrate(ctx context.Context, migrationsDir string) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, db.database, os.DirFS(migrationsDir))
	if err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/migrate(): error while `goose.NewProvider()` calling: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/migrate(): error while `provider.Up()` calling: %w", err)
	}

	return nil
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
