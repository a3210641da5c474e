// Package history archives terminal session snapshots.
//
// It currently supports:
//   - A JSON Lines file backend (dependency-free)
//   - A SQLite backend (modernc.org/sqlite, no cgo)
//
// Only compact terminal records are stored; the engine never persists
// in-flight sessions and the archive is disabled unless configured.
package history
