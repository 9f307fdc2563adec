// Package retention prunes old usage records.
//
// The Pruner enforces two independent limits: an age limit (records
// older than RetentionDays are deleted) and a count limit (when the
// ledger holds more than MaxRecords, the oldest are deleted). Either
// limit can be disabled by setting it to zero.
//
// Pruning runs on a cron schedule driven by github.com/robfig/cron.
// The default schedule ("0 3 * * *") prunes daily at 3 AM.
package retention
