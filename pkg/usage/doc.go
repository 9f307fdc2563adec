// Package usage implements the per-request usage ledger.
//
// Every proxied request produces a Record describing who called (by
// token digest, never the raw token), which model and backend served
// it, how many attempts it took and how long it ran. Records are
// written asynchronously by the Recorder so the request path never
// waits on storage; a full write buffer drops records instead of
// applying backpressure.
//
// Storage backends live in the storage subpackage (SQLite for
// persistence, an in-memory ring for tests and single-shot setups).
// The retention subpackage prunes old records on a cron schedule.
package usage
