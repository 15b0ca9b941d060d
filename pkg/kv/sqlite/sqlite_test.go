package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/sqlkv/pkg/kv"
	"github.com/leafsii/sqlkv/pkg/kv/kvtest"
)

func TestMemoryConformance(t *testing.T) {
	kvtest.RunConformanceTests(t, func(t *testing.T) kv.Backend {
		db, err := NewMemory(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return db
	})
}

func TestFileConformance(t *testing.T) {
	kvtest.RunConformanceTests(t, func(t *testing.T) kv.Backend {
		ctx := context.Background()
		db, err := Open(ctx, filepath.Join(t.TempDir(), "kv.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		require.NoError(t, db.Migrate(ctx, kv.DefaultTable))
		return db
	})
}

func TestMemoryDatabasesArePrivate(t *testing.T) {
	ctx := context.Background()
	a, err := NewMemory(ctx)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewMemory(ctx)
	require.NoError(t, err)
	defer b.Close()

	sa, err := kv.New(a)
	require.NoError(t, err)
	sb, err := kv.New(b)
	require.NoError(t, err)

	key := kv.MustKey("only", "in", "a")
	_, err = sa.Set(ctx, key, true)
	require.NoError(t, err)

	res, err := sb.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Present())
}

func TestFilePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")
	key := kv.MustKey("durable")

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, "things"))
	store, err := kv.New(db, kv.WithTable("things"))
	require.NoError(t, err)
	_, err = store.Set(ctx, key, "yes")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	store, err = kv.New(db, kv.WithTable("things"))
	require.NoError(t, err)
	res, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `"yes"`, string(res.Value))
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := NewMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx, kv.DefaultTable))
	require.NoError(t, db.Migrate(ctx, kv.DefaultTable))

	var n int
	err = db.SQL().QueryRowContext(ctx,
		`select count(*) from sqlite_master where type = 'index' and tbl_name = ?`, kv.DefaultTable).Scan(&n)
	require.NoError(t, err)
	// three secondary indexes plus the primary key autoindex
	assert.Equal(t, 4, n)
}

func TestMissingTableSurfacesError(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, MemoryDSN)
	require.NoError(t, err)
	defer db.Close()

	store, err := kv.New(db, kv.WithReapThreshold(0))
	require.NoError(t, err)
	_, err = store.Get(ctx, kv.MustKey("k"))
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.ErrBackend)

	var be *kv.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "get", be.Op)
}

func TestSchemaRejectsBadTable(t *testing.T) {
	_, err := Schema(`bad"name`)
	assert.ErrorIs(t, err, kv.ErrInvalidConfig)
	_, err = DropSchema("")
	assert.ErrorIs(t, err, kv.ErrInvalidConfig)
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "file::memory:?_pragma=case_sensitive_like(1)"},
		{MemoryDSN, "file::memory:?_pragma=case_sensitive_like(1)"},
		{"data/kv.db", "file:data/kv.db?_pragma=case_sensitive_like(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
		{"file:kv.db?mode=rwc", "file:kv.db?mode=rwc&_pragma=case_sensitive_like(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, buildDSN(tt.in), tt.in)
	}
}

func TestIsBusyError(t *testing.T) {
	assert.False(t, IsBusyError(nil))
	assert.False(t, IsBusyError(errors.New("database is locked")))
}

func TestDriversRegistered(t *testing.T) {
	ctx := context.Background()
	store, db, err := kv.Open(ctx, kv.Config{Driver: kv.DriverMemory, AutoMigrate: true})
	require.NoError(t, err)
	defer db.Close()

	_, err = store.Set(ctx, kv.MustKey("k"), 1)
	require.NoError(t, err)
	assert.NoError(t, db.Ping(ctx))
	assert.Contains(t, kv.Drivers(), string(kv.DriverSQLite))
}
