// Package store provides persistent storage for ocm using SQLite.
//
// # Architecture
//
// The store package exposes narrow interfaces so each consumer depends only
// on what it uses:
//
//   - TokenStore: API bearer token digests (api_tokens)
//   - TrustedHostStore: approved SSH host keys (trusted_ssh_hosts)
//   - RepoRegistry: registered working copies (repos)
//   - SettingsStore: the user preferences document (user_preferences)
//
// SQLiteStore implements all of them in a single struct.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (no CGO) with:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as RFC3339 text in UTC.
//
// # Migrations
//
// Schema changes live in internal/store/migrations as golang-migrate files
// and are embedded in the binary. They run on every NewSQLiteStore call;
// already-applied versions are skipped.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist, or an update matched no row
//   - ErrDuplicate: a unique column would be violated
//
// Storage errors are wrapped and returned; nothing here retries.
package store
