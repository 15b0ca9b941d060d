package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/leafsii/sqlkv/internal/util"
)

// Result is the outcome of a store operation. Value is nil when no live
// record exists; the timestamps are then zero.
type Result struct {
	Key       Key
	Value     json.RawMessage
	CreatedAt int64
	UpdatedAt int64
	ExpiresAt int64
}

// Present reports whether the result carries a record. A stored JSON null
// is present.
func (r Result) Present() bool {
	return r.Value != nil
}

// Expires reports whether a present record has an expiry.
func (r Result) Expires() bool {
	return r.Present() && r.ExpiresAt != Never
}

// Decode unmarshals the value into dest.
func (r Result) Decode(dest any) error {
	if !r.Present() {
		return ErrNotFound
	}
	if err := json.Unmarshal(r.Value, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}

// Store implements get, set, del and list over a Backend. A Store is safe for
// concurrent use when its Backend is.
//
// Set with WithNX or WithGet reads and then writes in two backend calls, so
// concurrent writers to one key may both see it absent.
type Store struct {
	backend       Backend
	queries       *Queries
	table         string
	now           Clock
	random        Random
	reapThreshold float64
	logger        LogFunc

	reaps util.Group[struct{}]
}

// New builds a store over backend. The table must already exist.
func New(backend Backend, opts ...StoreOption) (*Store, error) {
	s := &Store{
		backend:       backend,
		table:         DefaultTable,
		now:           systemClock,
		random:        globalRandom{},
		reapThreshold: DefaultReapThreshold,
		logger:        func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(s)
	}

	if backend == nil {
		return nil, fmt.Errorf("%w: backend is nil", ErrInvalidConfig)
	}
	if math.IsNaN(s.reapThreshold) || s.reapThreshold < 0 || s.reapThreshold > 1 {
		return nil, fmt.Errorf("%w: reap threshold %v outside [0, 1]", ErrInvalidConfig, s.reapThreshold)
	}
	q, err := NewQueries(s.table)
	if err != nil {
		return nil, err
	}
	s.queries = q
	return s, nil
}

// Table returns the table name the store operates on.
func (s *Store) Table() string {
	return s.table
}

// Get returns the live record for key, if any. With probability equal to the
// reap threshold it first deletes every expired record in the table.
func (s *Store) Get(ctx context.Context, key Key) (Result, error) {
	encoded, err := EncodeKey(key)
	if err != nil {
		return Result{}, err
	}
	if err := s.maybeReap(ctx); err != nil {
		return Result{}, err
	}

	row, err := s.backend.First(ctx, s.queries.Get, encoded, s.now())
	if err != nil {
		return Result{}, backendError("get", err)
	}
	return toResult(encoded, row)
}

// Set writes value under key.
//
// With WithNX the write only happens when no live record exists. With
// WithGet the record as it was before the call is returned; otherwise the
// result carries only the key.
func (s *Store) Set(ctx context.Context, key Key, value any, opts ...Option) (Result, error) {
	o := collectOptions(opts)
	encoded, err := EncodeKey(key)
	if err != nil {
		return Result{}, err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	if !o.nx && !o.get {
		if o.hasEX && o.ex < 0 {
			return Result{}, fmt.Errorf("%w: ex must not be negative, got %d", ErrInvalidOption, o.ex)
		}
		if err := s.write(ctx, encoded, data, o.ex); err != nil {
			return Result{}, err
		}
		return Result{Key: key}, nil
	}

	if o.hasEX && o.ex <= 0 {
		return Result{}, fmt.Errorf("%w: ex must be positive, got %d", ErrInvalidOption, o.ex)
	}
	prev, err := s.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if !o.nx || !prev.Present() {
		if err := s.write(ctx, encoded, data, o.ex); err != nil {
			return Result{}, err
		}
	}
	if o.get {
		return prev, nil
	}
	return Result{Key: key}, nil
}

func (s *Store) write(ctx context.Context, encoded string, data []byte, ex int64) error {
	ts := s.now()
	expiresAt := Never
	if ex > 0 {
		expiresAt = ts + ex
	}
	err := s.backend.Run(ctx, s.queries.Upsert, encoded, string(data), ts, ts, expiresAt)
	return backendError("set", err)
}

// Del removes the record stored under key. WithGet returns the record as it
// was before deletion; no other option is accepted.
func (s *Store) Del(ctx context.Context, key Key, opts ...Option) (Result, error) {
	o := collectOptions(opts)
	if o.hasEX || o.nx {
		return Result{}, fmt.Errorf("%w: del only accepts WithGet", ErrInvalidOption)
	}
	encoded, err := EncodeKey(key)
	if err != nil {
		return Result{}, err
	}

	prev := Result{Key: key}
	if o.get {
		if prev, err = s.Get(ctx, key); err != nil {
			return Result{}, err
		}
	}
	if err := s.backend.Run(ctx, s.queries.Delete, encoded); err != nil {
		return Result{}, backendError("del", err)
	}
	return prev, nil
}

// List returns the live records whose keys extend opts.Prefix by at least one
// part, ordered and paged as requested. It never reaps.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Result, error) {
	pattern, err := EncodePrefixPattern(opts.Prefix)
	if err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidOption, opts.Limit)
	}
	if opts.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative, got %d", ErrInvalidOption, opts.Offset)
	}
	trait, order := opts.SortTrait, opts.Order
	if trait == "" {
		trait = SortByKey
	}
	if order == "" {
		order = Asc
	}
	query, err := s.queries.List(trait, order)
	if err != nil {
		return nil, err
	}

	rows, err := s.backend.All(ctx, query, pattern, s.now(), opts.Limit, opts.Offset)
	if err != nil {
		return nil, backendError("list", err)
	}
	results := make([]Result, 0, len(rows))
	for i := range rows {
		r, err := toResult(rows[i].Key, &rows[i])
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Reap deletes every expired record in the table. Concurrent calls on one
// store share a single statement and its error. The shared statement is
// detached from the caller's cancellation; a caller whose context ends stops
// waiting and gets its own context error while the statement runs on for
// the others.
func (s *Store) Reap(ctx context.Context) error {
	stmtCtx := context.WithoutCancel(ctx)
	ch := s.reaps.DoChan("reap", func() (struct{}, error) {
		return struct{}{}, s.backend.Run(stmtCtx, s.queries.Reap, s.now())
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return backendError("reap", res.Err)
		}
		s.logger("reaped expired records", "table", s.table, "shared", res.Shared)
		return nil
	case <-ctx.Done():
		return backendError("reap", ctx.Err())
	}
}

func (s *Store) maybeReap(ctx context.Context) error {
	if s.reapThreshold <= 0 || s.random.Float64() >= s.reapThreshold {
		return nil
	}
	return s.Reap(ctx)
}

func toResult(encoded string, row *Row) (Result, error) {
	key, err := DecodeKey(encoded)
	if err != nil {
		return Result{}, err
	}
	if row == nil {
		return Result{Key: key}, nil
	}
	if !json.Valid([]byte(row.Value)) {
		return Result{}, fmt.Errorf("%w: stored value for %s is not valid JSON", ErrInvalidValue, encoded)
	}
	return Result{
		Key:       key,
		Value:     json.RawMessage(row.Value),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		ExpiresAt: row.ExpiresAt,
	}, nil
}
