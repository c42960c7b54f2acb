package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/tracker"
)

func testStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir(), zerolog.Nop())
}

func testCorpus() Corpus {
	c := NewCorpus()
	c.Issues["X-1"] = tracker.Issue{Key: "X-1", Status: "Done", Created: "2024-01-01T00:00:00.000+0000"}
	c.Changelogs["X-1"] = []tracker.ChangeEntry{
		{Author: "Dana", Created: "2024-01-03T00:00:00.000+0000", Items: []tracker.ChangeItem{
			{Field: "status", FromString: "To Do", ToString: "Done"},
		}},
	}
	return c
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testCorpus(), "fp1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, lastSync, err := store.Load(ctx, "fp1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lastSync == "" {
		t.Errorf("last_sync missing")
	}
	if !reflect.DeepEqual(loaded, testCorpus()) {
		t.Errorf("corpus did not round-trip:\n%+v\n%+v", loaded, testCorpus())
	}
}

func TestLoadWithoutCache(t *testing.T) {
	_, _, err := testStore(t).Load(context.Background(), "fp1")
	if !errors.Is(err, ErrNoCache) {
		t.Fatalf("err = %v, want ErrNoCache", err)
	}
}

func TestFingerprintMismatchInvalidates(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testCorpus(), "fp1"); err != nil {
		t.Fatal(err)
	}

	_, _, err := store.Load(ctx, "fp2")
	if !errors.Is(err, ErrNoCache) {
		t.Fatalf("err = %v, want ErrNoCache", err)
	}

	// Artifacts must be purged so the full fetch starts clean.
	for _, name := range []string{issuesFile, changelogsFile, metaFile} {
		if _, err := os.Stat(filepath.Join(store.Dir(), name)); !os.IsNotExist(err) {
			t.Errorf("stale artifact %s survived invalidation", name)
		}
	}
}

func TestCorruptMetaInvalidates(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testCorpus(), "fp1"); err != nil {
		t.Fatal(err)
	}
	// Schema-valid JSON shape is required, not just parseable JSON.
	if err := os.WriteFile(filepath.Join(store.Dir(), metaFile), []byte(`{"last_sync": 42}`), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := store.Load(ctx, "fp1")
	if !errors.Is(err, ErrNoCache) {
		t.Fatalf("err = %v, want ErrNoCache", err)
	}
}

func TestMissingArtifactInvalidates(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testCorpus(), "fp1"); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(store.Dir(), issuesFile)); err != nil {
		t.Fatal(err)
	}

	_, _, err := store.Load(ctx, "fp1")
	if !errors.Is(err, ErrNoCache) {
		t.Fatalf("err = %v, want ErrNoCache", err)
	}
}

func TestSaveWritesMetaLast(t *testing.T) {
	store := testStore(t)
	if err := store.Save(context.Background(), testCorpus(), "fp1"); err != nil {
		t.Fatal(err)
	}

	metaStat, err := os.Stat(filepath.Join(store.Dir(), metaFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{issuesFile, changelogsFile} {
		stat, err := os.Stat(filepath.Join(store.Dir(), name))
		if err != nil {
			t.Fatal(err)
		}
		if stat.ModTime().After(metaStat.ModTime()) {
			t.Errorf("%s written after meta.json", name)
		}
	}

	var meta Meta
	data, _ := os.ReadFile(filepath.Join(store.Dir(), metaFile))
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.ConfigHash != "fp1" || meta.IssueCount != 1 || meta.ChangelogCount != 1 {
		t.Errorf("meta = %+v", meta)
	}
}

func TestMergeReplacesAndRetains(t *testing.T) {
	cached := NewCorpus()
	cached.Issues["X-1"] = tracker.Issue{Key: "X-1", Status: "To Do"}
	cached.Issues["X-2"] = tracker.Issue{Key: "X-2", Status: "Reviewing"}
	cached.Changelogs["X-1"] = []tracker.ChangeEntry{{ID: "old"}}

	fetched := NewCorpus()
	fetched.Issues["X-1"] = tracker.Issue{Key: "X-1", Status: "Done"}
	fetched.Issues["X-3"] = tracker.Issue{Key: "X-3", Status: "To Do"}
	fetched.Changelogs["X-1"] = []tracker.ChangeEntry{{ID: "old"}, {ID: "new"}}

	merged := Merge(cached, fetched)

	if len(merged.Issues) != 3 {
		t.Fatalf("merged issues = %d, want 3", len(merged.Issues))
	}
	if merged.Issues["X-1"].Status != "Done" {
		t.Errorf("fetched issue did not replace cached: %+v", merged.Issues["X-1"])
	}
	if merged.Issues["X-2"].Status != "Reviewing" {
		t.Errorf("unfetched cached issue not retained")
	}
	if len(merged.Changelogs["X-1"]) != 2 {
		t.Errorf("changelog not replaced by key: %v", merged.Changelogs["X-1"])
	}

	// Inputs stay untouched.
	if cached.Issues["X-1"].Status != "To Do" {
		t.Errorf("Merge mutated its input")
	}
}

func TestMergeIdempotent(t *testing.T) {
	cached := testCorpus()
	merged := Merge(cached, testCorpus())
	if !reflect.DeepEqual(merged, cached) {
		t.Errorf("merging an identical delta changed the corpus:\n%+v\n%+v", merged, cached)
	}
}

func TestJournalAppendDedupes(t *testing.T) {
	journal := NewEventJournal(t.TempDir())

	events := []movement.Event{
		{EventID: "aaaa", IssueKey: "X-1", ToStatus: "Done"},
		{EventID: "bbbb", IssueKey: "X-2", ToStatus: "To Do"},
	}

	added, err := journal.Append(events)
	if err != nil || added != 2 {
		t.Fatalf("first append = %d/%v, want 2/nil", added, err)
	}

	// Re-appending the same derivation adds nothing.
	added, err = journal.Append(events)
	if err != nil || added != 0 {
		t.Fatalf("second append = %d/%v, want 0/nil", added, err)
	}

	loaded, err := journal.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Errorf("journal holds %d events, want 2", len(loaded))
	}
	if loaded[0].EventID != "aaaa" || loaded[1].EventID != "bbbb" {
		t.Errorf("append order not preserved: %+v", loaded)
	}
}

func TestJournalSurvivesInvalidate(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, zerolog.Nop())
	journal := NewEventJournal(dir)

	if _, err := journal.Append([]movement.Event{{EventID: "aaaa"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(context.Background(), testCorpus(), "fp1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Invalidate(); err != nil {
		t.Fatal(err)
	}

	loaded, err := journal.Load()
	if err != nil || len(loaded) != 1 {
		t.Errorf("journal = %d events/%v, want 1/nil after invalidate", len(loaded), err)
	}
}
