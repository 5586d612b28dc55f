package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreSaveAndExists(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "problems.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	p := testProblem("1_0_CD34EF")

	exists, err := store.Exists(ctx, p.ProblemID)
	if err != nil || exists {
		t.Fatalf("Exists before save = %v, %v", exists, err)
	}
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	exists, err = store.Exists(ctx, p.ProblemID)
	if err != nil || !exists {
		t.Fatalf("Exists after save = %v, %v", exists, err)
	}

	// Upsert keeps the row count stable.
	p.Text = "обновлённая задача"
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("re-Save: %v", err)
	}
	n, err := store.CountByProject(ctx, p.ProjectID)
	if err != nil {
		t.Fatalf("CountByProject: %v", err)
	}
	if n != 1 {
		t.Errorf("CountByProject = %d, want 1", n)
	}
}

func TestSQLiteStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problems.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	if err := store.Save(ctx, testProblem("2_0_FF00AA")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.Close()

	reopened, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	exists, err := reopened.Exists(ctx, "2_0_FF00AA")
	if err != nil || !exists {
		t.Errorf("Exists after reopen = %v, %v", exists, err)
	}
}
