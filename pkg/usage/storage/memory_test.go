package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/usage"
)

func insertN(t *testing.T, store usage.Store, n int, base time.Time) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		rec := usage.Record{
			ID:          fmt.Sprintf("rec-%d", i),
			Time:        base.Add(time.Duration(i) * time.Minute),
			RequestID:   fmt.Sprintf("req-%d", i),
			TokenDigest: "abc123",
			Route:       "/v1/chat/completions",
			Status:      200,
			Attempts:    1,
		}
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}
}

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	store := NewMemoryStore(100)
	base := time.Now().Add(-time.Hour)
	insertN(t, store, 5, base)

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

func TestMemoryStore_RecentLimitExceedsCount(t *testing.T) {
	store := NewMemoryStore(100)
	insertN(t, store, 2, time.Now())

	records, err := store.Recent(context.Background(), 50)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
}

func TestMemoryStore_CapacityEvictsOldest(t *testing.T) {
	store := NewMemoryStore(3)
	insertN(t, store, 5, time.Now().Add(-time.Hour))

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("Expected 3 records at capacity, got %d", count)
	}

	records, _ := store.Recent(context.Background(), 10)
	if records[len(records)-1].ID != "rec-2" {
		t.Errorf("Expected oldest surviving record 'rec-2', got '%s'", records[len(records)-1].ID)
	}
}

func TestMemoryStore_DeleteBefore(t *testing.T) {
	store := NewMemoryStore(100)
	base := time.Now().Add(-time.Hour)
	insertN(t, store, 5, base)

	// Cutoff between rec-2 and rec-3.
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

func TestMemoryStore_DeleteOldest(t *testing.T) {
	store := NewMemoryStore(100)
	insertN(t, store, 5, time.Now().Add(-time.Hour))

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

func TestMemoryStore_DeleteOldestMoreThanStored(t *testing.T) {
	store := NewMemoryStore(100)
	insertN(t, store, 2, time.Now())

	deleted, err := store.DeleteOldest(context.Background(), 10)
	if err != nil {
		t.Fatalf("DeleteOldest() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted records, got %d", deleted)
	}

	count, _ := store.Count(context.Background())
	if count != 0 {
		t.Errorf("Expected empty store, got %d records", count)
	}
}

func TestMemoryStore_QueryFilters(t *testing.T) {
	store := NewMemoryStore(100)
	base := time.Now().Add(-time.Hour)
	seed := []usage.Record{
		{ID: "a", Time: base, Model: "llama-3-8b", Groups: []string{"research"}},
		{ID: "b", Time: base.Add(10 * time.Minute), Model: "qwen-72b", Groups: []string{"ops"}},
		{ID: "c", Time: base.Add(20 * time.Minute), Model: "llama-3-8b", Groups: []string{"research", "ops"}},
	}
	for _, rec := range seed {
		if err := store.Insert(context.Background(), rec); err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}

	tests := []struct {
		name  string
		query usage.Query
		want  []string
	}{
		{"by model", usage.Query{Model: "llama-3-8b"}, []string{"c", "a"}},
		{"by group", usage.Query{Group: "ops"}, []string{"c", "b"}},
		{"by since", usage.Query{Since: base.Add(5 * time.Minute)}, []string{"c", "b"}},
		{"model and group", usage.Query{Model: "llama-3-8b", Group: "ops"}, []string{"c"}},
		{"limit after filter", usage.Query{Model: "llama-3-8b", Limit: 1}, []string{"c"}},
		{"no match", usage.Query{Model: "mistral-7b"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.Query(context.Background(), tt.query)
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
