package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/usage"
)

// createTempDB creates a temporary SQLite store for testing.
func createTempDB(t *testing.T) (*SQLiteStore, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(&SQLiteConfig{
		Path:        dbPath,
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}

	return store, dbPath
}

func TestSQLiteStore_Initialize(t *testing.T) {
	store, dbPath := createTempDB(t)
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestSQLiteStore_InsertAndRecent(t *testing.T) {
	store, _ := createTempDB(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := usage.Record{
		ID:          "test-id-1",
		Time:        now,
		RequestID:   "req-1",
		TokenDigest: "abc123def456",
		Groups:      []string{"research", "batch"},
		Model:       "llama-3-70b",
		Endpoint:    "inference-1:8001",
		Route:       "/v1/chat/completions",
		Status:      200,
		Attempts:    2,
		Stream:      true,
		LatencyMS:   1543,
	}

	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.ID != "test-id-1" {
		t.Errorf("Expected ID 'test-id-1', got '%s'", got.ID)
	}
	if !got.Time.Equal(now) {
		t.Errorf("Expected time %v, got %v", now, got.Time)
	}
	if got.TokenDigest != "abc123def456" {
		t.Errorf("Expected token digest 'abc123def456', got '%s'", got.TokenDigest)
	}
	if len(got.Groups) != 2 || got.Groups[0] != "research" {
		t.Errorf("Expected groups [research batch], got %v", got.Groups)
	}
	if got.Endpoint != "inference-1:8001" {
		t.Errorf("Expected endpoint 'inference-1:8001', got '%s'", got.Endpoint)
	}
	if !got.Stream {
		t.Error("Expected stream flag to survive the round trip")
	}
	if got.LatencyMS != 1543 {
		t.Errorf("Expected latency 1543ms, got %d", got.LatencyMS)
	}
}

func TestSQLiteStore_RecentOrderAndLimit(t *testing.T) {
	store, _ := createTempDB(t)
	defer store.Close()

	insertN(t, store, 5, time.Now().UTC().Add(-time.Hour))

	records, err := store.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].ID != "rec-4" {
		t.Errorf("Expected newest record 'rec-4' first, got '%s'", records[0].ID)
	}
	if records[2].ID != "rec-2" {
		t.Errorf("Expected 'rec-2' last, got '%s'", records[2].ID)
	}
}

func TestSQLiteStore_Count(t *testing.T) {
	store, _ := createTempDB(t)
	defer store.Close()

	insertN(t, store, 4, time.Now().UTC())

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 4 {
		t.Errorf("Expected 4 records, got %d", count)
	}
}

func TestSQLiteStore_DeleteBefore(t *testing.T) {
	store, _ := createTempDB(t)
	defer store.Close()

	base := time.Now().UTC().Add(-time.Hour)
	insertN(t, store, 5, base)

	cutoff := base.Add(2*time.Minute + 30*time.Second)
	deleted, err := store.DeleteBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteBefore() failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted records, got %d", deleted)
	}

	count, _ := store.Count(context.Background())
	if count != 2 {
		t.Errorf("Expected 2 remaining records, got %d", count)
	}
}

func TestSQLiteStore_DeleteOldest(t *testing.T) {
	store, _ := createTempDB(t)
	defer store.Close()

	insertN(t, store, 5, time.Now().UTC().Add(-time.Hour))

	deleted, err := store.DeleteOldest(context.Background(), 2)
	if err != nil {
		t.Fatalf("DeleteOldest() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted records, got %d", deleted)
	}

	records, _ := store.Recent(context.Background(), 10)
	if len(records) != 3 {
		t.Fatalf("Expected 3 remaining records, got %d", len(records))
	}
	if records[len(records)-1].ID != "rec-2" {
		t.Errorf("Expected oldest remaining record 'rec-2', got '%s'", records[len(records)-1].ID)
	}
}

func TestSQLiteStore_ReopenKeepsRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	cfg := &SQLiteConfig{Path: dbPath, BusyTimeout: 5 * time.Second}

	store, err := NewSQLiteStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	insertN(t, store, 3, time.Now().UTC())
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	reopened, err := NewSQLiteStore(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite store: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 records after reopen, got %d", count)
	}
}

func TestSQLiteStore_QueryFilters(t *testing.T) {
	store, _ := createTempDB(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	seed := []usage.Record{
		{ID: "a", Time: base, Model: "llama-3-8b", Groups: []string{"research"}},
		{ID: "b", Time: base.Add(10 * time.Minute), Model: "qwen-72b", Groups: []string{"ops"}},
		{ID: "c", Time: base.Add(20 * time.Minute), Model: "llama-3-8b", Groups: []string{"research", "ops"}},
		{ID: "d", Time: base.Add(30 * time.Minute), Model: "qwen-72b", Groups: []string{"dev-ops"}},
	}
	for i := range seed {
		seed[i].RequestID = "req-" + seed[i].ID
		seed[i].TokenDigest = "abc123"
		seed[i].Route = "/v1/chat/completions"
		seed[i].Status = 200
		seed[i].Attempts = 1
		if err := store.Insert(ctx, seed[i]); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}

	tests := []struct {
		name  string
		query usage.Query
		want  []string
	}{
		{"by model", usage.Query{Model: "llama-3-8b"}, []string{"c", "a"}},
		// "ops" must not match the "dev-ops" group.
		{"by group", usage.Query{Group: "ops"}, []string{"c", "b"}},
		{"by since", usage.Query{Since: base.Add(5 * time.Minute)}, []string{"d", "c", "b"}},
		{"model and group", usage.Query{Model: "llama-3-8b", Group: "ops"}, []string{"c"}},
		{"limit after filter", usage.Query{Model: "llama-3-8b", Limit: 1}, []string{"c"}},
		{"no match", usage.Query{Model: "mistral-7b"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.Query(ctx, tt.query)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(records) != len(tt.want) {
				t.Fatalf("Expected %d records, got %d", len(tt.want), len(records))
			}
			for i, id := range tt.want {
				if records[i].ID != id {
					t.Errorf("Expected record '%s' at position %d, got '%s'", id, i, records[i].ID)
				}
			}
		})
	}
}
