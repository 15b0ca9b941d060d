// Package kvtest provides conformance tests for kv.Backend implementations
package kvtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/leafsii/sqlkv/pkg/kv"
)

// BackendFactory returns a fresh, migrated backend holding table kv.DefaultTable.
// The factory registers its own cleanup with t.
type BackendFactory func(t *testing.T) kv.Backend

// Clock is a settable kv.Clock for tests.
type Clock struct {
	mu  sync.Mutex
	now int64
}

func NewClock(now int64) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now int64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Clock) Advance(seconds int64) {
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

// FixedRandom is a kv.Random that always returns the same draw.
type FixedRandom float64

func (r FixedRandom) Float64() float64 {
	return float64(r)
}

const t0 int64 = 1_700_000_000

// rawGet reads a row without the expiry filter.
var rawGet = fmt.Sprintf(`select "key", "value", "created_at", "updated_at", "expires_at" from "%s" where "key" = ?`,
	kv.DefaultTable)

type env struct {
	backend kv.Backend
	clock   *Clock
	store   *kv.Store
}

func newEnv(t *testing.T, factory BackendFactory, threshold float64) *env {
	t.Helper()
	b := factory(t)
	clock := NewClock(t0)
	store, err := kv.New(b,
		kv.WithClock(clock.Now),
		kv.WithRandom(FixedRandom(0.5)),
		kv.WithReapThreshold(threshold),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &env{backend: b, clock: clock, store: store}
}

// RunConformanceTests runs all conformance tests against a Backend implementation
func RunConformanceTests(t *testing.T, factory BackendFactory) {
	t.Run("GetSet", func(t *testing.T) {
		testGetSet(t, factory)
	})
	t.Run("Expiry", func(t *testing.T) {
		testExpiry(t, factory)
	})
	t.Run("Modifiers", func(t *testing.T) {
		testModifiers(t, factory)
	})
	t.Run("Del", func(t *testing.T) {
		testDel(t, factory)
	})
	t.Run("List", func(t *testing.T) {
		testList(t, factory)
	})
	t.Run("Reap", func(t *testing.T) {
		testReap(t, factory)
	})
}

type envTest struct {
	name string
	test func(t *testing.T, e *env)
}

func runEnvTests(t *testing.T, factory BackendFactory, tests []envTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.test(t, newEnv(t, factory, 0))
		})
	}
}

func testGetSet(t *testing.T, factory BackendFactory) {
	runEnvTests(t, factory, []envTest{
		{"RoundTrip", testRoundTrip},
		{"GetAbsent", testGetAbsent},
		{"CompositeKey", testCompositeKey},
		{"Overwrite", testOverwrite},
		{"NullValue", testNullValue},
		{"SharedBackend", testSharedBackend},
	})
}

func testRoundTrip(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("foo", "bar")

	res, err := e.store.Set(ctx, key, map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if res.Present() || !res.Key.Equal(key) {
		t.Errorf("Set result = %+v, want key only", res)
	}

	got, err := e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Present() {
		t.Fatal("expected record to be present")
	}
	var v map[string]int
	if err := got.Decode(&v); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if v["a"] != 1 {
		t.Errorf("value = %v, want a=1", v)
	}
	if got.CreatedAt != t0 || got.UpdatedAt != t0 {
		t.Errorf("timestamps = %d/%d, want %d", got.CreatedAt, got.UpdatedAt, t0)
	}
	if got.ExpiresAt != kv.Never {
		t.Errorf("ExpiresAt = %d, want %d", got.ExpiresAt, kv.Never)
	}
}

func testGetAbsent(t *testing.T, e *env) {
	key := kv.MustKey("missing")
	got, err := e.store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Present() {
		t.Errorf("expected absent, got %s", got.Value)
	}
	if !got.Key.Equal(key) {
		t.Errorf("Key = %v, want %v", got.Key, key)
	}
	if err := got.Decode(new(any)); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("Decode error = %v, want ErrNotFound", err)
	}
}

func testCompositeKey(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("users", 42, true, false, 1.5, "with space", `quote"d`)

	if _, err := e.store.Set(ctx, key, "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Present() || !got.Key.Equal(key) {
		t.Errorf("Get = %+v, want present record for %v", got, key)
	}

	other, err := e.store.Get(ctx, kv.MustKey("users", "42", true, false, 1.5, "with space", `quote"d`))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if other.Present() {
		t.Error("text part must not match numeric part")
	}
}

func testOverwrite(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("counter")

	if _, err := e.store.Set(ctx, key, 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	e.clock.Advance(5)
	if _, err := e.store.Set(ctx, key, 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Value) != "2" {
		t.Errorf("value = %s, want 2", got.Value)
	}
	if got.CreatedAt != t0 {
		t.Errorf("CreatedAt = %d, want %d", got.CreatedAt, t0)
	}
	if got.UpdatedAt != t0+5 {
		t.Errorf("UpdatedAt = %d, want %d", got.UpdatedAt, t0+5)
	}
}

func testNullValue(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("nothing")

	if _, err := e.store.Set(ctx, key, nil); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Present() || string(got.Value) != "null" {
		t.Errorf("Get = %q present=%t, want present null", got.Value, got.Present())
	}
}

func testSharedBackend(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("shared")

	if _, err := e.store.Set(ctx, key, "x"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	second, err := kv.New(e.backend, kv.WithReapThreshold(0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := second.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Present() {
		t.Error("record written by one store must be visible to another over the same backend")
	}
}

func testExpiry(t *testing.T, factory BackendFactory) {
	runEnvTests(t, factory, []envTest{
		{"Boundary", testExpiryBoundary},
		{"ZeroMeansNoExpiry", testExZero},
		{"OverwriteClearsExpiry", testOverwriteClearsExpiry},
	})
}

func testExpiryBoundary(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("session")

	if _, err := e.store.Set(ctx, key, "s", kv.WithEX(10)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	e.clock.Set(t0 + 9)
	got, err := e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Present() {
		t.Fatal("record must be live one second before expiry")
	}
	if got.ExpiresAt != t0+10 {
		t.Errorf("ExpiresAt = %d, want %d", got.ExpiresAt, t0+10)
	}

	e.clock.Set(t0 + 10)
	got, err = e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Present() {
		t.Error("record must be absent at its expiry time")
	}
}

func testExZero(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("forever")

	if _, err := e.store.Set(ctx, key, 1, kv.WithEX(0)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	e.clock.Advance(1 << 30)
	got, err := e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Present() || got.ExpiresAt != kv.Never {
		t.Errorf("Get = %+v, want record that never expires", got)
	}
}

func testOverwriteClearsExpiry(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("token")

	if _, err := e.store.Set(ctx, key, 1, kv.WithEX(5)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := e.store.Set(ctx, key, 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	e.clock.Advance(60)
	got, err := e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Present() {
		t.Error("a plain write must drop the previous expiry")
	}
}

func testModifiers(t *testing.T, factory BackendFactory) {
	runEnvTests(t, factory, []envTest{
		{"GetReturnsPrevious", testSetGetPrevious},
		{"GetOnAbsent", testSetGetAbsent},
		{"NXSkipsLive", testNXSkipsLive},
		{"NXWritesAbsent", testNXWritesAbsent},
		{"NXWritesExpired", testNXWritesExpired},
		{"NXGet", testNXGet},
		{"RejectsBadEX", testRejectsBadEX},
	})
}

func mustGetValue(t *testing.T, e *env, key kv.Key) string {
	t.Helper()
	got, err := e.store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Present() {
		return ""
	}
	return string(got.Value)
}

func testSetGetPrevious(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("k")

	if _, err := e.store.Set(ctx, key, "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	prev, err := e.store.Set(ctx, key, "v2", kv.WithGet())
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if string(prev.Value) != `"v1"` {
		t.Errorf("previous = %s, want \"v1\"", prev.Value)
	}
	if v := mustGetValue(t, e, key); v != `"v2"` {
		t.Errorf("stored = %s, want \"v2\"", v)
	}
}

func testSetGetAbsent(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("k")

	prev, err := e.store.Set(ctx, key, "v1", kv.WithGet(), kv.WithEX(30))
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if prev.Present() || !prev.Key.Equal(key) {
		t.Errorf("previous = %+v, want absent", prev)
	}
	got, err := e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Value) != `"v1"` || got.ExpiresAt != t0+30 {
		t.Errorf("stored = %s expires %d, want \"v1\" expiring %d", got.Value, got.ExpiresAt, t0+30)
	}
}

func testNXSkipsLive(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("k")

	if _, err := e.store.Set(ctx, key, "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := e.store.Set(ctx, key, "v2", kv.WithNX())
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if res.Present() || !res.Key.Equal(key) {
		t.Errorf("NX result = %+v, want key only", res)
	}
	if v := mustGetValue(t, e, key); v != `"v1"` {
		t.Errorf("stored = %s, want \"v1\"", v)
	}
}

func testNXWritesAbsent(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("k")

	if _, err := e.store.Set(ctx, key, "v1", kv.WithNX()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v := mustGetValue(t, e, key); v != `"v1"` {
		t.Errorf("stored = %s, want \"v1\"", v)
	}
}

func testNXWritesExpired(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("k")

	if _, err := e.store.Set(ctx, key, "v1", kv.WithEX(1)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	e.clock.Advance(2)
	if _, err := e.store.Set(ctx, key, "v2", kv.WithNX()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := e.store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Value) != `"v2"` {
		t.Errorf("stored = %s, want \"v2\"", got.Value)
	}
	if got.CreatedAt != t0 {
		t.Errorf("CreatedAt = %d, want %d kept from the expired row", got.CreatedAt, t0)
	}
	if got.ExpiresAt != kv.Never {
		t.Errorf("ExpiresAt = %d, want %d", got.ExpiresAt, kv.Never)
	}
}

func testNXGet(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("k")

	prev, err := e.store.Set(ctx, key, "v1", kv.WithNX(), kv.WithGet())
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if prev.Present() {
		t.Errorf("previous = %s, want absent", prev.Value)
	}

	prev, err = e.store.Set(ctx, key, "v2", kv.WithNX(), kv.WithGet())
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if string(prev.Value) != `"v1"` {
		t.Errorf("previous = %s, want \"v1\"", prev.Value)
	}
	if v := mustGetValue(t, e, key); v != `"v1"` {
		t.Errorf("stored = %s, want \"v1\"", v)
	}
}

func testRejectsBadEX(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("k")

	cases := [][]kv.Option{
		{kv.WithEX(-1)},
		{kv.WithEX(0), kv.WithNX()},
		{kv.WithEX(0), kv.WithGet()},
		{kv.WithEX(-5), kv.WithNX(), kv.WithGet()},
	}
	for i, opts := range cases {
		if _, err := e.store.Set(ctx, key, "v", opts...); !errors.Is(err, kv.ErrInvalidOption) {
			t.Errorf("case %d: error = %v, want ErrInvalidOption", i, err)
		}
	}
	if v := mustGetValue(t, e, key); v != "" {
		t.Errorf("rejected writes must not store anything, got %s", v)
	}
}

func testDel(t *testing.T, factory BackendFactory) {
	runEnvTests(t, factory, []envTest{
		{"Removes", testDelRemoves},
		{"GetReturnsPrevious", testDelGet},
		{"GetOnAbsent", testDelGetAbsent},
		{"RejectsOptions", testDelRejectsOptions},
	})
}

func testDelRemoves(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("k")

	if _, err := e.store.Set(ctx, key, 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := e.store.Del(ctx, key)
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if res.Present() || !res.Key.Equal(key) {
		t.Errorf("Del result = %+v, want key only", res)
	}
	if v := mustGetValue(t, e, key); v != "" {
		t.Errorf("stored = %s after Del, want absent", v)
	}
	if _, err := e.store.Del(ctx, key); err != nil {
		t.Errorf("Del of missing key failed: %v", err)
	}
}

func testDelGet(t *testing.T, e *env) {
	ctx := context.Background()
	key := kv.MustKey("k")

	if _, err := e.store.Set(ctx, key, "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	prev, err := e.store.Del(ctx, key, kv.WithGet())
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if string(prev.Value) != `"v"` {
		t.Errorf("previous = %s, want \"v\"", prev.Value)
	}
	if v := mustGetValue(t, e, key); v != "" {
		t.Errorf("stored = %s after Del, want absent", v)
	}
}

func testDelGetAbsent(t *testing.T, e *env) {
	key := kv.MustKey("nothing", "here")
	prev, err := e.store.Del(context.Background(), key, kv.WithGet())
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if prev.Present() || !prev.Key.Equal(key) {
		t.Errorf("previous = %+v, want absent result for %v", prev, key)
	}
}

func testDelRejectsOptions(t *testing.T, e *env) {
	ctx := context.Background()
	for _, opt := range []kv.Option{kv.WithNX(), kv.WithEX(10)} {
		if _, err := e.store.Del(ctx, kv.MustKey("k"), opt); !errors.Is(err, kv.ErrInvalidOption) {
			t.Errorf("error = %v, want ErrInvalidOption", err)
		}
	}
}

func testList(t *testing.T, factory BackendFactory) {
	runEnvTests(t, factory, []envTest{
		{"ByteOrder", testListByteOrder},
		{"PrefixBoundary", testListPrefixBoundary},
		{"Wildcards", testListWildcards},
		{"CaseSensitive", testListCaseSensitive},
		{"SkipsExpired", testListSkipsExpired},
		{"SortByTimestamps", testListSortByTimestamps},
		{"Empty", testListEmpty},
		{"RejectsBadOptions", testListRejectsBadOptions},
	})
}

func seedHundred(t *testing.T, e *env) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if _, err := e.store.Set(ctx, kv.MustKey("foo", "bar", i), i); err != nil {
			t.Fatalf("Set %d failed: %v", i, err)
		}
	}
}

func lastParts(t *testing.T, results []kv.Result) []int64 {
	t.Helper()
	out := make([]int64, 0, len(results))
	for _, r := range results {
		n, ok := r.Key[len(r.Key)-1].Int64()
		if !ok {
			t.Fatalf("key %v does not end in an integer", r.Key)
		}
		out = append(out, n)
	}
	return out
}

func assertInts(t *testing.T, got, want []int64) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func testListByteOrder(t *testing.T, e *env) {
	ctx := context.Background()
	seedHundred(t, e)
	prefix := kv.MustKey("foo", "bar")

	cases := []struct {
		name string
		opts kv.ListOptions
		want []int64
	}{
		{"asc", kv.ListOptions{Prefix: prefix, Limit: 3}, []int64{0, 10, 11}},
		{"offset", kv.ListOptions{Prefix: prefix, Offset: 1, Limit: 3}, []int64{10, 11, 12}},
		{"desc", kv.ListOptions{Prefix: prefix, Limit: 3, Order: kv.Desc}, []int64{9, 99, 98}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := e.store.List(ctx, tc.opts)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			assertInts(t, lastParts(t, results), tc.want)
		})
	}

	all, err := e.store.List(ctx, kv.ListOptions{Prefix: prefix, Limit: 1000})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 100 {
		t.Errorf("len = %d, want 100", len(all))
	}
	var v int
	if err := all[0].Decode(&v); err != nil || v != 0 {
		t.Errorf("first value = %d (%v), want 0", v, err)
	}
}

func testListPrefixBoundary(t *testing.T, e *env) {
	ctx := context.Background()
	keys := []kv.Key{
		kv.MustKey("foo"),
		kv.MustKey("foo", "a"),
		kv.MustKey("foo", "a", 1),
		kv.MustKey("food", "x"),
		kv.MustKey("fo"),
	}
	for _, k := range keys {
		if _, err := e.store.Set(ctx, k, k.String()); err != nil {
			t.Fatalf("Set %v failed: %v", k, err)
		}
	}

	results, err := e.store.List(ctx, kv.ListOptions{Prefix: kv.MustKey("foo"), Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(results), results)
	}
	// "," sorts before "]", so the longer key comes first
	if !results[0].Key.Equal(keys[2]) || !results[1].Key.Equal(keys[1]) {
		t.Errorf("keys = %v, %v; want %v, %v", results[0].Key, results[1].Key, keys[2], keys[1])
	}
}

func testListWildcards(t *testing.T, e *env) {
	ctx := context.Background()
	for _, k := range []kv.Key{
		kv.MustKey("a%", "x"),
		kv.MustKey("ab", "x"),
		kv.MustKey("a_", "x"),
		kv.MustKey(`a\`, "x"),
	} {
		if _, err := e.store.Set(ctx, k, 1); err != nil {
			t.Fatalf("Set %v failed: %v", k, err)
		}
	}

	for _, prefix := range []string{"a%", "a_", `a\`} {
		results, err := e.store.List(ctx, kv.ListOptions{Prefix: kv.MustKey(prefix), Limit: 10})
		if err != nil {
			t.Fatalf("List %q failed: %v", prefix, err)
		}
		if len(results) != 1 {
			t.Errorf("prefix %q matched %d keys, want 1: %v", prefix, len(results), results)
			continue
		}
		if want := kv.MustKey(prefix, "x"); !results[0].Key.Equal(want) {
			t.Errorf("prefix %q matched %v, want %v", prefix, results[0].Key, want)
		}
	}
}

func testListCaseSensitive(t *testing.T, e *env) {
	ctx := context.Background()
	if _, err := e.store.Set(ctx, kv.MustKey("foo", "x"), 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	results, err := e.store.List(ctx, kv.ListOptions{Prefix: kv.MustKey("FOO"), Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("prefix match must be case-sensitive, got %v", results)
	}
}

func testListSkipsExpired(t *testing.T, e *env) {
	ctx := context.Background()
	if _, err := e.store.Set(ctx, kv.MustKey("s", 1), 1, kv.WithEX(5)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := e.store.Set(ctx, kv.MustKey("s", 2), 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	e.clock.Advance(5)

	results, err := e.store.List(ctx, kv.ListOptions{Prefix: kv.MustKey("s"), Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	assertInts(t, lastParts(t, results), []int64{2})

	row, err := e.backend.First(ctx, rawGet, kv.MustKey("s", 1).String())
	if err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if row == nil {
		t.Error("List must not reap expired rows")
	}
}

func testListSortByTimestamps(t *testing.T, e *env) {
	ctx := context.Background()
	// created in order 3, 1, 2; then 3 is updated last
	for _, i := range []int{3, 1, 2} {
		if _, err := e.store.Set(ctx, kv.MustKey("t", i), i); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		e.clock.Advance(1)
	}
	if _, err := e.store.Set(ctx, kv.MustKey("t", 3), 33); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	prefix := kv.MustKey("t")
	cases := []struct {
		name string
		opts kv.ListOptions
		want []int64
	}{
		{"created asc", kv.ListOptions{Prefix: prefix, Limit: 10, SortTrait: kv.SortByCreatedAt}, []int64{3, 1, 2}},
		{"created desc", kv.ListOptions{Prefix: prefix, Limit: 10, SortTrait: kv.SortByCreatedAt, Order: kv.Desc}, []int64{2, 1, 3}},
		{"updated asc", kv.ListOptions{Prefix: prefix, Limit: 10, SortTrait: kv.SortByUpdatedAt}, []int64{1, 2, 3}},
		{"updated desc page", kv.ListOptions{Prefix: prefix, Limit: 1, Offset: 1, SortTrait: kv.SortByUpdatedAt, Order: kv.Desc}, []int64{2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := e.store.List(ctx, tc.opts)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			assertInts(t, lastParts(t, results), tc.want)
		})
	}
}

func testListEmpty(t *testing.T, e *env) {
	results, err := e.store.List(context.Background(), kv.ListOptions{Prefix: kv.MustKey("none"), Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("List = %#v, want empty non-nil slice", results)
	}
}

func testListRejectsBadOptions(t *testing.T, e *env) {
	ctx := context.Background()
	prefix := kv.MustKey("p")
	cases := []struct {
		opts kv.ListOptions
		want error
	}{
		{kv.ListOptions{Limit: 10}, kv.ErrInvalidKey},
		{kv.ListOptions{Prefix: prefix}, kv.ErrInvalidOption},
		{kv.ListOptions{Prefix: prefix, Limit: 1, Offset: -1}, kv.ErrInvalidOption},
		{kv.ListOptions{Prefix: prefix, Limit: 1, SortTrait: "value"}, kv.ErrInvalidOption},
		{kv.ListOptions{Prefix: prefix, Limit: 1, Order: "sideways"}, kv.ErrInvalidOption},
	}
	for i, tc := range cases {
		if _, err := e.store.List(ctx, tc.opts); !errors.Is(err, tc.want) {
			t.Errorf("case %d: error = %v, want %v", i, err, tc.want)
		}
	}
}

func testReap(t *testing.T, factory BackendFactory) {
	t.Run("ThresholdOne", func(t *testing.T) {
		e := newEnv(t, factory, 1)
		remaining := seedExpired(t, e)
		if remaining != 0 {
			t.Errorf("%d expired rows left, want 0", remaining)
		}
	})
	t.Run("ThresholdZero", func(t *testing.T) {
		e := newEnv(t, factory, 0)
		remaining := seedExpired(t, e)
		if remaining != 2 {
			t.Errorf("%d expired rows left, want 2", remaining)
		}
	})
	t.Run("DrawAboveThreshold", func(t *testing.T) {
		// newEnv draws 0.5, which does not fall below 0.25
		e := newEnv(t, factory, 0.25)
		remaining := seedExpired(t, e)
		if remaining != 2 {
			t.Errorf("%d expired rows left, want 2", remaining)
		}
	})
	t.Run("KeepsLiveRows", func(t *testing.T) {
		e := newEnv(t, factory, 1)
		ctx := context.Background()
		if _, err := e.store.Set(ctx, kv.MustKey("live", "ttl"), 1, kv.WithEX(100)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if _, err := e.store.Set(ctx, kv.MustKey("live", "forever"), 2); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		e.clock.Advance(50)
		if err := e.store.Reap(ctx); err != nil {
			t.Fatalf("Reap failed: %v", err)
		}
		results, err := e.store.List(ctx, kv.ListOptions{Prefix: kv.MustKey("live"), Limit: 10})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(results) != 2 {
			t.Errorf("len = %d, want 2", len(results))
		}
	})
}

// seedExpired writes two short-lived rows, lets them expire, triggers a Get
// on an unrelated key and returns how many of the rows are still stored.
func seedExpired(t *testing.T, e *env) int {
	t.Helper()
	ctx := context.Background()
	keys := []kv.Key{kv.MustKey("old", 1), kv.MustKey("old", 2)}
	for _, k := range keys {
		if _, err := e.store.Set(ctx, k, json.RawMessage(`{"stale":true}`), kv.WithEX(1)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	e.clock.Advance(5)
	if _, err := e.store.Get(ctx, kv.MustKey("other")); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	remaining := 0
	for _, k := range keys {
		row, err := e.backend.First(ctx, rawGet, k.String())
		if err != nil {
			t.Fatalf("First failed: %v", err)
		}
		if row != nil {
			remaining++
		}
	}
	return remaining
}
