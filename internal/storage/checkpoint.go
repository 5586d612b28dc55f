// Package storage holds the persistence collaborators: the problem
// stores and the file-backed checkpoint store.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Clean1ines/iXe/internal/models"
)

// FileCheckpointStore persists checkpoints as JSON files, one per
// project, under a fixed directory. Writes go through a temp file and
// rename so a crash mid-write never leaves a truncated checkpoint.
type FileCheckpointStore struct {
	dir string
}

// NewFileCheckpointStore creates the store, making the directory if
// needed.
func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint dir %s: %w", dir, err)
	}
	return &FileCheckpointStore{dir: dir}, nil
}

// Load returns the project's checkpoint, or (nil, nil) when no run has
// been checkpointed yet.
func (s *FileCheckpointStore) Load(projectID string) (*models.ScrapeCheckpoint, error) {
	path := filepath.Join(s.dir, models.CheckpointFilename(projectID))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	var cp models.ScrapeCheckpoint
	if err := cp.FromJSON(data); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically.
func (s *FileCheckpointStore) Save(cp *models.ScrapeCheckpoint) error {
	data, err := cp.ToJSON()
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	path := filepath.Join(s.dir, models.CheckpointFilename(cp.ProjectID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Clear removes the project's checkpoint, forcing the next run to start
// from the beginning.
func (s *FileCheckpointStore) Clear(projectID string) error {
	path := filepath.Join(s.dir, models.CheckpointFilename(projectID))
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
