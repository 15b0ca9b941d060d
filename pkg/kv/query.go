package kv

import (
	"fmt"
	"strings"
)

// Never is the expires_at sentinel for records that do not expire.
const Never int64 = -1

// DefaultTable is the table name used when none is configured.
const DefaultTable = "kv"

// SortTrait is a column List can order by
type SortTrait string

const (
	SortByKey       SortTrait = "key"
	SortByCreatedAt SortTrait = "created_at"
	SortByUpdatedAt SortTrait = "updated_at"
)

func (t SortTrait) valid() bool {
	switch t {
	case SortByKey, SortByCreatedAt, SortByUpdatedAt:
		return true
	}
	return false
}

// Order is the direction of a List
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

func (o Order) valid() bool {
	return o == Asc || o == Desc
}

const columns = `"key", "value", "created_at", "updated_at", "expires_at"`

// Queries holds the parameterized statements for one table. Every statement
// uses ? placeholders and selects columns in Row order.
type Queries struct {
	Table  string
	Get    string
	Upsert string
	Delete string
	Reap   string

	listPrefix string
}

// NewQueries builds the statements for table. The table name is trusted and
// interpolated verbatim, but it must be non-empty and free of double quotes.
func NewQueries(table string) (*Queries, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	t := `"` + table + `"`
	notExpired := fmt.Sprintf(`("expires_at" = %d or "expires_at" > ?)`, Never)

	return &Queries{
		Table: table,
		Get: fmt.Sprintf(`select %s from %s where "key" = ? and %s`,
			columns, t, notExpired),
		Upsert: fmt.Sprintf(`insert into %s (%s) values (?, ?, ?, ?, ?) `+
			`on conflict ("key") do update set "value" = excluded."value", `+
			`"updated_at" = excluded."updated_at", "expires_at" = excluded."expires_at"`,
			t, columns),
		Delete: fmt.Sprintf(`delete from %s where "key" = ?`, t),
		Reap: fmt.Sprintf(`delete from %s where "expires_at" != %d and "expires_at" < ?`,
			t, Never),
		listPrefix: fmt.Sprintf(`select %s from %s where "key" like ? escape '%s' and %s`,
			columns, t, LikeEscape, notExpired),
	}, nil
}

// List returns the prefix-scan statement ordered by trait and order. Its
// parameters are pattern, now, limit and offset.
func (q *Queries) List(trait SortTrait, order Order) (string, error) {
	if !trait.valid() {
		return "", fmt.Errorf("%w: unknown sort trait %q", ErrInvalidOption, trait)
	}
	if !order.valid() {
		return "", fmt.Errorf("%w: unknown order %q", ErrInvalidOption, order)
	}

	var b strings.Builder
	b.WriteString(q.listPrefix)
	fmt.Fprintf(&b, ` order by "%s" %s`, trait, order)
	if trait != SortByKey {
		fmt.Fprintf(&b, `, "key" %s`, order)
	}
	b.WriteString(` limit ? offset ?`)
	return b.String(), nil
}

// ValidateTable reports whether name can be quoted as an SQL identifier.
func ValidateTable(name string) error {
	if name == "" {
		return fmt.Errorf("%w: table name must not be empty", ErrInvalidConfig)
	}
	if strings.ContainsAny(name, "\"\x00") {
		return fmt.Errorf("%w: table name %q contains a quote or NUL", ErrInvalidConfig, name)
	}
	return nil
}
