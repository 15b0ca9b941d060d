// Package postgres is the PostgreSQL driver for kv, built on pgx. Importing it
// registers the "postgres" driver.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leafsii/sqlkv/pkg/kv"
)

// DB is a kv.Database backed by a pgx connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn, a postgres:// URL or key=value string.
func Open(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) First(ctx context.Context, query string, args ...any) (*kv.Row, error) {
	rows, err := db.pool.Query(ctx, Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[kv.Row])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (db *DB) All(ctx context.Context, query string, args ...any) ([]kv.Row, error) {
	rows, err := db.pool.Query(ctx, Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[kv.Row])
}

func (db *DB) Run(ctx context.Context, query string, args ...any) error {
	_, err := db.pool.Exec(ctx, Rebind(query), args...)
	return err
}

// Migrate creates table and its indexes if they do not exist.
func (db *DB) Migrate(ctx context.Context, table string) error {
	stmts, err := Schema(table)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Rebind rewrites ? placeholders as $1, $2, ... Placeholders inside quoted
// strings and identifiers are left alone.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Schema returns the statements that create table and its indexes. Keys use
// the "C" collation so they order byte-wise.
func Schema(table string) ([]string, error) {
	if err := kv.ValidateTable(table); err != nil {
		return nil, err
	}
	stmts := []string{fmt.Sprintf(`create table if not exists "%s" (
	"key" text collate "C" primary key,
	"value" text not null,
	"created_at" bigint not null,
	"updated_at" bigint not null,
	"expires_at" bigint not null
)`, table)}
	for _, col := range []string{"created_at", "updated_at", "expires_at"} {
		stmts = append(stmts, fmt.Sprintf(`create index if not exists "%s_%s_idx" on "%s" ("%s")`,
			table, col, table, col))
	}
	return stmts, nil
}

// DropSchema returns the statement that removes table and its indexes.
func DropSchema(table string) ([]string, error) {
	if err := kv.ValidateTable(table); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf(`drop table if exists "%s"`, table)}, nil
}
