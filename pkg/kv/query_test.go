package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueries(t *testing.T) {
	q, err := NewQueries("kv")
	require.NoError(t, err)

	assert.Equal(t, "kv", q.Table)
	assert.Equal(t,
		`select "key", "value", "created_at", "updated_at", "expires_at" from "kv" where "key" = ? and ("expires_at" = -1 or "expires_at" > ?)`,
		q.Get)
	assert.Equal(t,
		`insert into "kv" ("key", "value", "created_at", "updated_at", "expires_at") values (?, ?, ?, ?, ?) `+
			`on conflict ("key") do update set "value" = excluded."value", "updated_at" = excluded."updated_at", "expires_at" = excluded."expires_at"`,
		q.Upsert)
	assert.Equal(t, `delete from "kv" where "key" = ?`, q.Delete)
	assert.Equal(t, `delete from "kv" where "expires_at" != -1 and "expires_at" < ?`, q.Reap)
}

func TestQueriesList(t *testing.T) {
	q, err := NewQueries("kv")
	require.NoError(t, err)

	base := `select "key", "value", "created_at", "updated_at", "expires_at" from "kv" ` +
		`where "key" like ? escape '\' and ("expires_at" = -1 or "expires_at" > ?)`

	tests := []struct {
		trait SortTrait
		order Order
		want  string
	}{
		{SortByKey, Asc, base + ` order by "key" asc limit ? offset ?`},
		{SortByKey, Desc, base + ` order by "key" desc limit ? offset ?`},
		{SortByCreatedAt, Asc, base + ` order by "created_at" asc, "key" asc limit ? offset ?`},
		{SortByUpdatedAt, Desc, base + ` order by "updated_at" desc, "key" desc limit ? offset ?`},
	}
	for _, tt := range tests {
		got, err := q.List(tt.trait, tt.order)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err = q.List("value; drop table kv", Asc)
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = q.List(SortByKey, "ASC")
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestValidateTable(t *testing.T) {
	assert.NoError(t, ValidateTable("kv"))
	assert.NoError(t, ValidateTable("my table-2"))

	for _, name := range []string{"", `a"b`, "a\x00b"} {
		assert.ErrorIs(t, ValidateTable(name), ErrInvalidConfig, "table %q", name)
	}

	_, err := NewQueries(`x" ; --`)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
