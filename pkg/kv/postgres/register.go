package postgres

import (
	"context"

	"github.com/leafsii/sqlkv/pkg/kv"
)

func init() {
	kv.RegisterDriver(kv.DriverPostgres, func(ctx context.Context, dsn string) (kv.Database, error) {
		db, err := Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	})
}
