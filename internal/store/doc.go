// Package store provides persistent storage for conversations using SQLite.
//
// # Data Model
//
// A Conversation is a user's rolling context: an ordered list of Turns plus
// the time the user was last active. Two tables back it:
//
//   - conversations: one row per user with last_active
//   - turns: append-only rows keyed by an autoincrement sequence, so
//     ordering never depends on timestamp resolution
//
// Timestamps are stored as RFC 3339 strings with nanoseconds in UTC.
//
// # Implementations
//
//   - SQLiteStore: production store backed by modernc.org/sqlite (no cgo)
//   - MockStore: in-memory store for tests, with an injectable failure
//
// Expiry policy lives in the conversation package; the store only records
// activity and answers ListIdleSince.
package store
