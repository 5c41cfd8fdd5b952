// Package storage is the subscription store: channel configs and the event
// kinds each one wants.
//
// Drivers:
//   - "memory": process-local map (default)
//   - "file": JSON snapshot plus append-only journal
//   - "sqlite": modernc.org/sqlite, no cgo
//   - "postgres": pgx pool
//   - "redis": one JSON value per channel plus a set per event kind
package storage
