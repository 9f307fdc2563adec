// Package storage provides storage backends for usage records.
//
// Two implementations of the usage.Store interface are available:
//
//   - SQLite: durable single-file storage for normal operation
//   - Memory: a bounded in-memory buffer for tests and setups that do
//     not want a database on disk
//
// # SQLite Backend
//
// The SQLite backend runs in WAL mode with a periodic checkpoint loop
// so the log file does not grow without bound. All access goes through
// a single connection, which serializes the recorder's writes with
// admin reads. Record times are stored as unix milliseconds.
//
// The schema is created on first use and its version is tracked in the
// schema_version table for future migrations.
package storage
