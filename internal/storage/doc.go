// Package storage is the durable persistence layer of adminpanel.
//
// A single SQLite file holds three tables:
//   - users        (registered chat users, exactly one administrator)
//   - activity_log (append-only user/system activity)
//   - alerts       (threshold alerts, unresolved -> resolved only)
//
// The schema is managed by embedded goose migrations and is safe to apply on
// every start. All storage faults are returned as *Error; lookups miss with
// ErrNotFound and duplicate registrations fail with ErrDuplicateKey.
package storage
