// Package kv provides a Redis-like, TTL-aware key-value store layered on a
// relational table.
//
// Keys are ordered composite tuples of scalars (text, number, true, false)
// encoded into a single sortable string. A Store exposes Get, Set (with EX, NX
// and GET modifiers), Del and prefix List, and talks to storage only through
// the three-operation Backend port. Drivers live in sub-packages and register
// themselves with RegisterDriver.
//
// Example usage:
//
//	store, db, err := kv.Open(ctx, kv.Config{
//		Driver:      kv.DriverSQLite,
//		DSN:         "app.db",
//		AutoMigrate: true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	key := kv.MustKey("users", 42, "profile")
//	if _, err := store.Set(ctx, key, profile, kv.WithEX(3600)); err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := store.Get(ctx, key)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if res.Present() {
//		_ = res.Decode(&profile)
//	}
//
// Expired records are filtered by every read and removed lazily: before each
// Get the store flips a weighted coin (the reap threshold) and, on success,
// deletes every record whose expiry lies in the past. There is no background
// janitor.
//
// NX and GET are read-then-write sequences of independent backend calls and
// are not atomic under concurrent writers. Offset pagination in List has no
// isolation across concurrent writes either.
package kv
