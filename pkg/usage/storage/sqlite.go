package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"mercator-hq/saturn/pkg/usage"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often the write-ahead log is
	// checkpointed back into the main database file. Zero disables the
	// checkpoint loop.
	// Default: 5 minutes
	CheckpointInterval time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:               "data/usage.db",
		BusyTimeout:        5 * time.Second,
		CheckpointInterval: 5 * time.Minute,
	}
}

// SQLiteStore implements the usage.Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	insert *sql.Stmt
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite storage backend. It creates the
// database file and schema if they do not exist and enables WAL mode.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "usage.storage.sqlite")

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, usage.NewStorageError("sqlite", "mkdir", err)
		}
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "open", err)
	}

	// A single connection serializes the recorder's writes with admin
	// reads, which keeps SQLITE_BUSY out of the picture.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{
		db:     db,
		config: config,
		done:   make(chan struct{}),
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.insert, err = db.Prepare(InsertRecord)
	if err != nil {
		db.Close()
		return nil, usage.NewStorageError("sqlite", "prepare_insert", err)
	}

	if config.CheckpointInterval > 0 {
		s.wg.Add(1)
		go s.checkpointLoop()
	}

	logger.Info("SQLite usage storage initialized",
		"path", config.Path,
		"busy_timeout", config.BusyTimeout,
		"checkpoint_interval", config.CheckpointInterval,
	)

	return s, nil
}

// initialize sets up pragmas and the database schema.
func (s *SQLiteStore) initialize() error {
	// journal_mode and busy_timeout both return a result row, so they go
	// through QueryRow rather than Exec.
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		return usage.NewStorageError("sqlite", "enable_wal", err)
	}
	s.logger.Debug("journal mode set", "mode", mode)

	var busyTimeoutMs int64
	query := fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())
	if err := s.db.QueryRow(query).Scan(&busyTimeoutMs); err != nil {
		return usage.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return usage.NewStorageError("sqlite", "set_synchronous", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return usage.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return usage.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return usage.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return usage.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Insert persists a usage record to the database.
func (s *SQLiteStore) Insert(ctx context.Context, rec usage.Record) error {
	groups, _ := json.Marshal(rec.Groups)

	_, err := s.insert.ExecContext(ctx,
		rec.ID, rec.Time.UnixMilli(), rec.RequestID, rec.TokenDigest, string(groups),
		rec.Model, rec.Endpoint, rec.Route, rec.Status, rec.Attempts, rec.Stream, rec.LatencyMS,
	)
	if err != nil {
		return usage.NewStorageError("sqlite", "insert", err)
	}

	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]usage.Record, error) {
	return s.Query(ctx, usage.Query{Limit: limit})
}

// Query returns records matching the filters, newest first.
func (s *SQLiteStore) Query(ctx context.Context, q usage.Query) ([]usage.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var conditions []string
	var args []interface{}

	if q.Model != "" {
		conditions = append(conditions, "model = ?")
		args = append(args, q.Model)
	}
	if q.Group != "" {
		// Groups are stored as a JSON array; match the quoted element.
		conditions = append(conditions, "token_groups LIKE ?")
		args = append(args, `%"`+q.Group+`"%`)
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "time >= ?")
		args = append(args, q.Since.UnixMilli())
	}

	query := SelectRecords
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY time DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []usage.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, usage.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, usage.NewStorageError("sqlite", "query", err)
	}

	return records, nil
}

// Count returns the total number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, CountRecords).Scan(&count); err != nil {
		return 0, usage.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// DeleteBefore removes records older than cutoff.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, DeleteBeforeTime, cutoff.UnixMilli())
	if err != nil {
		return 0, usage.NewStorageError("sqlite", "delete_before", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, usage.NewStorageError("sqlite", "delete_before", err)
	}

	return deleted, nil
}

// DeleteOldest removes the n oldest records.
func (s *SQLiteStore) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, DeleteOldestRecords, n)
	if err != nil {
		return 0, usage.NewStorageError("sqlite", "delete_oldest", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, usage.NewStorageError("sqlite", "delete_oldest", err)
	}

	return deleted, nil
}

// Close stops the checkpoint loop and closes the database connection.
func (s *SQLiteStore) Close() error {
	close(s.done)
	s.wg.Wait()

	if s.insert != nil {
		s.insert.Close()
	}

	if err := s.db.Close(); err != nil {
		return usage.NewStorageError("sqlite", "close", err)
	}

	s.logger.Info("SQLite usage storage closed")
	return nil
}

// checkpointLoop periodically folds the write-ahead log back into the
// main database file so the WAL does not grow without bound.
func (s *SQLiteStore) checkpointLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkpoint()
		case <-s.done:
			return
		}
	}
}

// checkpoint runs a single WAL checkpoint.
func (s *SQLiteStore) checkpoint() {
	var busy, logFrames, checkpointed int64
	err := s.db.QueryRow("PRAGMA wal_checkpoint(TRUNCATE);").Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		s.logger.Warn("WAL checkpoint failed", "error", err)
		return
	}

	s.logger.Debug("WAL checkpoint completed",
		"busy", busy,
		"log_frames", logFrames,
		"checkpointed", checkpointed,
	)
}

// scanRecord scans a database row into a usage record.
func scanRecord(rows *sql.Rows) (usage.Record, error) {
	var rec usage.Record
	var timeMs int64
	var groups sql.NullString

	err := rows.Scan(
		&rec.ID, &timeMs, &rec.RequestID, &rec.TokenDigest, &groups,
		&rec.Model, &rec.Endpoint, &rec.Route, &rec.Status, &rec.Attempts, &rec.Stream, &rec.LatencyMS,
	)
	if err != nil {
		return usage.Record{}, err
	}

	rec.Time = time.UnixMilli(timeMs).UTC()

	if groups.Valid && groups.String != "" {
		json.Unmarshal([]byte(groups.String), &rec.Groups)
	}

	return rec, nil
}
