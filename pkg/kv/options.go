package kv

import (
	"math/rand/v2"
	"time"
)

// Clock returns the current time in integer seconds since the Unix epoch.
type Clock func() int64

// Random is the source of the reap coin flip. Float64 returns a value in [0, 1).
type Random interface {
	Float64() float64
}

// LogFunc receives diagnostic events from a Store. It is shaped so any
// structured logger can be adapted without the package importing one.
type LogFunc func(msg string, fields ...any)

// DefaultReapThreshold is the probability that a Get first reaps expired records.
const DefaultReapThreshold = 0.1

func systemClock() int64 {
	return time.Now().Unix()
}

type globalRandom struct{}

func (globalRandom) Float64() float64 {
	return rand.Float64()
}

// StoreOption configures a Store at construction.
type StoreOption func(*Store)

// WithTable sets the table the store reads and writes.
func WithTable(name string) StoreOption {
	return func(s *Store) {
		s.table = name
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.now = c
		}
	}
}

// WithRandom replaces the random source used for reaping.
func WithRandom(r Random) StoreOption {
	return func(s *Store) {
		if r != nil {
			s.random = r
		}
	}
}

// WithReapThreshold sets the per-Get reap probability. 0 disables reaping
// and 1 reaps before every Get.
func WithReapThreshold(p float64) StoreOption {
	return func(s *Store) {
		s.reapThreshold = p
	}
}

func WithLogger(fn LogFunc) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.logger = fn
		}
	}
}

// Option modifies a single Set or Del call.
type Option func(*callOptions)

type callOptions struct {
	ex    int64
	hasEX bool
	nx    bool
	get   bool
}

// WithEX expires the record the given number of seconds after the write.
func WithEX(seconds int64) Option {
	return func(o *callOptions) {
		o.ex = seconds
		o.hasEX = true
	}
}

// WithNX only writes when no live record exists for the key.
func WithNX() Option {
	return func(o *callOptions) {
		o.nx = true
	}
}

// WithGet makes the call return the record as it was before the call.
func WithGet() Option {
	return func(o *callOptions) {
		o.get = true
	}
}

func collectOptions(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// ListOptions selects a page of records sharing a key prefix.
type ListOptions struct {
	// Prefix must be non-empty. Only keys with at least one part beyond
	// the prefix match.
	Prefix Key
	Offset int
	Limit  int

	// SortTrait defaults to SortByKey and Order to Asc.
	SortTrait SortTrait
	Order     Order
}
