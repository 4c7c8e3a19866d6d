// Package storage persists the set of notification keys that were already
// delivered, so alerts are not repeated across restarts.
//
// Drivers:
//   - file: one JSON document holding an array of keys, rewritten atomically on each new key
//   - sqlite: embedded database file (modernc.org/sqlite, no cgo)
//   - postgres: shared database (pgx pool), for multiple deployments of the same channel
//
// Every driver keeps the full key set in memory; IsSent never touches disk.
package storage
