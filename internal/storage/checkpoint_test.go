package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Clean1ines/iXe/internal/models"
)

func TestFileCheckpointStoreRoundtrip(t *testing.T) {
	store, err := NewFileCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCheckpointStore: %v", err)
	}

	cp := models.NewCheckpoint("PROJ1", "информатика")
	cp.Advance(models.InitPage, 8)
	cp.Advance("1", 5)

	if err := store.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("PROJ1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for saved checkpoint")
	}
	if loaded.LastPage != "1" || loaded.PagesDone != 2 || loaded.ProblemsSaved != 13 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.NextPage() != "2" {
		t.Errorf("NextPage = %q, want 2", loaded.NextPage())
	}
}

func TestFileCheckpointStoreMissing(t *testing.T) {
	store, err := NewFileCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCheckpointStore: %v", err)
	}
	cp, err := store.Load("NOPE")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp != nil {
		t.Errorf("Load = %+v, want nil for missing checkpoint", cp)
	}
}

func TestFileCheckpointStoreNoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileCheckpointStore(dir)
	if err != nil {
		t.Fatalf("NewFileCheckpointStore: %v", err)
	}
	if err := store.Save(models.NewCheckpoint("PROJ2", "")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileCheckpointStoreClear(t *testing.T) {
	store, err := NewFileCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCheckpointStore: %v", err)
	}
	if err := store.Save(models.NewCheckpoint("PROJ3", "")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear("PROJ3"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	cp, err := store.Load("PROJ3")
	if err != nil || cp != nil {
		t.Errorf("after Clear: cp=%+v err=%v", cp, err)
	}
	// Clearing twice is fine.
	if err := store.Clear("PROJ3"); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
