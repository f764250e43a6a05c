// Package storage persists mute records and the audit log.
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "file": JSON Lines journal + snapshot, no external dependencies
//   - "redis": Redis keyspace (go-redis)
//
// Every driver satisfies mute.Store: Upsert replaces a member's record
// atomically and assigns an id that is never reused.
package storage
