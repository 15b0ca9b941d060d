// Package migrate manages the kv table layout as versioned goose migrations.
// Each table gets its own version table, goose_<table>.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/leafsii/sqlkv/pkg/kv"
	"github.com/leafsii/sqlkv/pkg/kv/postgres"
	"github.com/leafsii/sqlkv/pkg/kv/sqlite"
)

type schemaFunc func(table string) ([]string, error)

// Open returns a connection goose can use for driver. The caller closes it.
func Open(ctx context.Context, driver kv.Driver, dsn string) (*sql.DB, error) {
	switch driver {
	case kv.DriverSQLite, kv.DriverMemory:
		if driver == kv.DriverMemory {
			dsn = sqlite.MemoryDSN
		}
		db, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return db.SQL(), nil
	case kv.DriverPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", kv.ErrInvalidConfig, driver)
	}
}

// VersionTable returns the goose version table used for table.
func VersionTable(table string) string {
	return "goose_" + table
}

// NewProvider returns a goose provider whose single migration creates table
// and its indexes, and drops them on the way down.
func NewProvider(db *sql.DB, driver kv.Driver, table string) (*goose.Provider, error) {
	if err := kv.ValidateTable(table); err != nil {
		return nil, err
	}

	var (
		dialect    database.Dialect
		schema     schemaFunc
		dropSchema schemaFunc
	)
	switch driver {
	case kv.DriverSQLite, kv.DriverMemory:
		dialect, schema, dropSchema = database.DialectSQLite3, sqlite.Schema, sqlite.DropSchema
	case kv.DriverPostgres:
		dialect, schema, dropSchema = database.DialectPostgres, postgres.Schema, postgres.DropSchema
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", kv.ErrInvalidConfig, driver)
	}

	store, err := database.NewStore(dialect, VersionTable(table))
	if err != nil {
		return nil, fmt.Errorf("failed to create version store: %w", err)
	}

	up := &goose.GoFunc{RunTx: execAll(schema, table)}
	down := &goose.GoFunc{RunTx: execAll(dropSchema, table)}

	return goose.NewProvider("", db, nil,
		goose.WithStore(store),
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(goose.NewGoMigration(1, up, down)),
	)
}

func execAll(stmts schemaFunc, table string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		list, err := stmts(table)
		if err != nil {
			return err
		}
		for _, stmt := range list {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}
