package history

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStorePersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	started := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	run := Run{
		ID:        NewRunID(started),
		RepoID:    "akshan-main/restoredit-qwen-image-edit",
		Mode:      "push",
		Status:    StatusSucceeded,
		Splits:    map[string]SplitCount{"train": {Examples: 10, Skipped: 2, Shards: 1}},
		CommitOID: "deadbeef",
		StartedAt: started,
	}
	if err := store.Save(run); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	_ = store.Close()

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen store failed: %v", err)
	}
	defer reopened.Close()

	reloaded, err := reopened.Get(run.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if reloaded == nil || reloaded.CommitOID != "deadbeef" || reloaded.Splits["train"].Skipped != 2 {
		t.Fatalf("expected persisted run, got %+v", reloaded)
	}

	missing, err := reopened.Get("run_missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown run, got %+v %v", missing, err)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 5; offset++ {
		startedAt := base.Add(time.Duration(offset) * time.Hour)
		if err := store.Save(Run{ID: NewRunID(startedAt), Status: StatusSucceeded, StartedAt: startedAt}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	runs, err := store.List(3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if !runs[0].StartedAt.Equal(base.Add(4*time.Hour)) || !runs[2].StartedAt.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("expected newest first, got %v, %v", runs[0].StartedAt, runs[2].StartedAt)
	}
}
