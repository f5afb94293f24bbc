package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	tmpDir, err := os.MkdirTemp("", "store-test-*")
	if err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewStore(dbPath, time.Second)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatal(err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

// tick makes the store clock advance one minute per call.
func tick(s *Store) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func TestStore_RecordAndGetSearch(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	tick(store)

	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://wx1.sinaimg.cn/large/%d.jpg", i)
	}

	if err := store.RecordSearch("Cat", urls); err != nil {
		t.Fatalf("failed to record search: %v", err)
	}
	if err := store.RecordSearch("  cat ", urls[:3]); err != nil {
		t.Fatalf("failed to record search: %v", err)
	}

	entry, err := store.GetSearch("CAT")
	if err != nil {
		t.Fatalf("failed to get search: %v", err)
	}
	if entry.Keyword != "Cat" {
		t.Errorf("expected keyword %q, got %q", "Cat", entry.Keyword)
	}
	if entry.Count != 2 {
		t.Errorf("expected count 2, got %d", entry.Count)
	}
	if entry.Results != 3 {
		t.Errorf("expected 3 results, got %d", entry.Results)
	}
	if len(entry.Sample) != 3 {
		t.Errorf("expected sample of 3, got %d", len(entry.Sample))
	}
	if !entry.LastSearched.After(entry.FirstSearched) {
		t.Errorf("expected last searched %v after first %v", entry.LastSearched, entry.FirstSearched)
	}
}

func TestStore_SampleIsBounded(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	urls := make([]string, 30)
	for i := range urls {
		urls[i] = fmt.Sprintf("u%d", i)
	}
	if err := store.RecordSearch("dog", urls); err != nil {
		t.Fatal(err)
	}
	entry, err := store.GetSearch("dog")
	if err != nil {
		t.Fatal(err)
	}
	if len(entry.Sample) != sampleSize {
		t.Errorf("expected %d sampled urls, got %d", sampleSize, len(entry.Sample))
	}
	if entry.Results != 30 {
		t.Errorf("expected 30 results, got %d", entry.Results)
	}
}

func TestStore_RejectsEmptyKeyword(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.RecordSearch("   ", nil); err == nil {
		t.Error("expected error for empty keyword")
	}
}

func TestStore_GetMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := store.GetSearch("nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_HistoryOrder(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	tick(store)

	for _, kw := range []string{"cat", "dog", "bird", "cat"} {
		if err := store.RecordSearch(kw, []string{"u"}); err != nil {
			t.Fatal(err)
		}
	}

	history, err := store.History(0)
	if err != nil {
		t.Fatalf("failed to get history: %v", err)
	}
	want := []string{"cat", "bird", "dog"}
	if len(history) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(history))
	}
	for i, kw := range want {
		if history[i].Keyword != kw {
			t.Errorf("position %d: expected %q, got %q", i, kw, history[i].Keyword)
		}
	}

	limited, err := store.History(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 entries with limit, got %d", len(limited))
	}
}

func TestStore_DeleteAndClear(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	for _, kw := range []string{"cat", "dog", "bird"} {
		if err := store.RecordSearch(kw, nil); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteSearch("DOG"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if err := store.DeleteSearch("never-searched"); err != nil {
		t.Errorf("deleting an unknown keyword should not fail: %v", err)
	}
	if n, _ := store.Count(); n != 2 {
		t.Errorf("expected 2 entries after delete, got %d", n)
	}

	if err := store.ClearHistory(); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if n, _ := store.Count(); n != 0 {
		t.Errorf("expected empty history, got %d", n)
	}
	if err := store.RecordSearch("cat", nil); err != nil {
		t.Errorf("store unusable after clear: %v", err)
	}
}

func TestStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "history.db")

	store, err := NewStore(dbPath, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RecordSearch("cat", []string{"u1"}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewStore(dbPath, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	entry, err := reopened.GetSearch("cat")
	if err != nil {
		t.Fatalf("history did not survive reopen: %v", err)
	}
	if entry.Count != 1 {
		t.Errorf("expected count 1, got %d", entry.Count)
	}
	if v, err := reopened.SchemaVersion(); err != nil || v != schemaVersion {
		t.Errorf("expected schema version %d, got %d (%v)", schemaVersion, v, err)
	}
}

func TestStore_MemoryPath(t *testing.T) {
	store, err := NewStore(MemoryPath, 0)
	if err != nil {
		t.Fatal(err)
	}
	path := store.Path()
	if err := store.RecordSearch("cat", nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected temporary database to be removed, stat returned %v", err)
	}
}

func TestStore_LockTimeout(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := NewStore(store.Path(), 50*time.Millisecond); err == nil {
		t.Error("expected second open of a locked database to time out")
	}
}
