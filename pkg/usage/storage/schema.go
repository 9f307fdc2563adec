package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the usage database
// schema. Times are stored as unix milliseconds so no driver-specific
// timestamp handling is involved.
const Schema = `
CREATE TABLE IF NOT EXISTS usage_records (
    id TEXT PRIMARY KEY,
    time INTEGER NOT NULL,
    request_id TEXT NOT NULL,
    token_digest TEXT NOT NULL,
    token_groups TEXT,
    model TEXT,
    endpoint TEXT,
    route TEXT NOT NULL,
    status INTEGER NOT NULL,
    attempts INTEGER NOT NULL,
    stream BOOLEAN NOT NULL,
    latency_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_time ON usage_records(time);
CREATE INDEX IF NOT EXISTS idx_usage_token_digest ON usage_records(token_digest);
CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model);
`

// InsertSchemaVersion records the schema version on first initialization.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

// InsertRecord inserts one usage record.
const InsertRecord = `
INSERT INTO usage_records (
    id, time, request_id, token_digest, token_groups,
    model, endpoint, route, status, attempts, stream, latency_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

// SelectRecords is the base projection for ledger reads; the store
// appends WHERE, ORDER BY, and LIMIT clauses per query.
const SelectRecords = `
SELECT id, time, request_id, token_digest, token_groups,
       model, endpoint, route, status, attempts, stream, latency_ms
FROM usage_records`

// CountRecords counts all stored records.
const CountRecords = `
SELECT COUNT(*) FROM usage_records;
`

// DeleteBeforeTime removes records older than a cutoff.
const DeleteBeforeTime = `
DELETE FROM usage_records WHERE time < ?;
`

// DeleteOldestRecords removes the n oldest records.
const DeleteOldestRecords = `
DELETE FROM usage_records WHERE id IN (
    SELECT id FROM usage_records ORDER BY time ASC, id ASC LIMIT ?
);
`
