package sqlite

import (
	"context"

	"github.com/leafsii/sqlkv/pkg/kv"
)

func init() {
	kv.RegisterDriver(kv.DriverSQLite, func(ctx context.Context, dsn string) (kv.Database, error) {
		db, err := Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	})
	kv.RegisterDriver(kv.DriverMemory, func(ctx context.Context, _ string) (kv.Database, error) {
		db, err := Open(ctx, MemoryDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	})
}

// NewMemory opens a migrated in-memory database holding the default table.
func NewMemory(ctx context.Context) (*DB, error) {
	db, err := Open(ctx, MemoryDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, kv.DefaultTable); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
