// Package sqlite is the local-engine driver for kv, built on modernc.org/sqlite.
// Importing it registers the "sqlite" and "memory" drivers.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/leafsii/sqlkv/pkg/kv"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

const (
	maxOpenConns = 10
	maxIdleConns = 5
	busyTimeout  = 5000 // milliseconds
)

// DB is a kv.Database backed by SQLite
type DB struct {
	conn *sql.DB
}

// Open creates a database connection for dsn, which is either a file path,
// a file: URI, or MemoryDSN. LIKE is always made case-sensitive so prefix
// scans compare bytes.
func Open(ctx context.Context, dsn string) (*DB, error) {
	memory := dsn == "" || dsn == MemoryDSN
	conn, err := sql.Open("sqlite", buildDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		// every connection to :memory: is a distinct database
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	} else {
		conn.SetMaxOpenConns(maxOpenConns)
		conn.SetMaxIdleConns(maxIdleConns)
	}
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{conn: conn}, nil
}

func buildDSN(dsn string) string {
	pragmas := []string{"_pragma=case_sensitive_like(1)"}
	if dsn == "" || dsn == MemoryDSN {
		return "file::memory:?" + strings.Join(pragmas, "&")
	}
	pragmas = append(pragmas,
		"_pragma=journal_mode(WAL)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeout),
	)
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

// SQL returns the underlying connection pool.
func (db *DB) SQL() *sql.DB {
	return db.conn
}

func (db *DB) First(ctx context.Context, query string, args ...any) (*kv.Row, error) {
	var r kv.Row
	err := db.conn.QueryRowContext(ctx, query, args...).
		Scan(&r.Key, &r.Value, &r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) All(ctx context.Context, query string, args ...any) ([]kv.Row, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kv.Row
	for rows.Next() {
		var r kv.Row
		if err := rows.Scan(&r.Key, &r.Value, &r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) Run(ctx context.Context, query string, args ...any) error {
	_, err := db.conn.ExecContext(ctx, query, args...)
	return err
}

// Migrate creates table and its indexes if they do not exist.
func (db *DB) Migrate(ctx context.Context, table string) error {
	stmts, err := Schema(table)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Schema returns the statements that create table and its indexes.
func Schema(table string) ([]string, error) {
	if err := kv.ValidateTable(table); err != nil {
		return nil, err
	}
	stmts := []string{fmt.Sprintf(`create table if not exists "%s" (
	"key" text primary key,
	"value" text not null,
	"created_at" integer not null,
	"updated_at" integer not null,
	"expires_at" integer not null
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
