package kv

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Driver names a registered database driver
type Driver string

const (
	// DriverSQLite stores records in a SQLite file
	DriverSQLite Driver = "sqlite"
	// DriverMemory stores records in a private in-memory SQLite database
	DriverMemory Driver = "memory"
	// DriverPostgres stores records in PostgreSQL
	DriverPostgres Driver = "postgres"
)

// Config holds configuration for opening a database and a Store over it
type Config struct {
	// Driver selects a registered driver. Drivers register themselves when
	// their package is imported.
	Driver Driver

	// DSN is passed to the driver unchanged. The memory driver ignores it.
	DSN string

	// Table defaults to DefaultTable.
	Table string

	// ReapThreshold defaults to DefaultReapThreshold when nil.
	ReapThreshold *float64

	// AutoMigrate creates the table and its indexes when opening.
	AutoMigrate bool

	// Logger receives store events. If nil, no logging occurs.
	Logger LogFunc
}

// Opener opens a database for a DSN
type Opener func(ctx context.Context, dsn string) (Database, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[Driver]Opener)
)

// RegisterDriver makes a driver available to OpenDatabase and Open.
func RegisterDriver(driver Driver, open Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[driver] = open
}

// Drivers returns the registered driver names in sorted order.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for d := range drivers {
		names = append(names, string(d))
	}
	sort.Strings(names)
	return names
}

// OpenDatabase opens the database selected by cfg and migrates it when
// cfg.AutoMigrate is set.
func OpenDatabase(ctx context.Context, cfg Config) (Database, error) {
	driversMu.RLock()
	open, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported driver %q (registered: %s)",
			ErrInvalidConfig, cfg.Driver, strings.Join(Drivers(), ", "))
	}

	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}

	db, err := open(ctx, cfg.DSN)
	if err != nil {
		return nil, backendError("open", err)
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, table); err != nil {
			db.Close()
			return nil, backendError("migrate", err)
		}
	}
	return db, nil
}

// Open opens the configured database and returns a Store over it. The caller
// owns the returned Database and must close it.
func Open(ctx context.Context, cfg Config) (*Store, Database, error) {
	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []StoreOption{WithLogger(cfg.Logger)}
	if cfg.Table != "" {
		opts = append(opts, WithTable(cfg.Table))
	}
	if cfg.ReapThreshold != nil {
		opts = append(opts, WithReapThreshold(*cfg.ReapThreshold))
	}
	store, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
