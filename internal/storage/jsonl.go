package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Clean1ines/iXe/internal/models"
)

// JSONLStore appends problems to a JSON-lines file, one record per
// line. Known ids are indexed in memory at open time, which keeps
// Exists cheap at the cost of a startup scan.
type JSONLStore struct {
	mu   sync.Mutex
	file *os.File
	seen map[string]bool
	path string
}

// OpenJSONLStore opens (or creates) the store at path and indexes the
// ids already present.
func OpenJSONLStore(path string) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store dir %s: %w", dir, err)
		}
	}

	seen, err := indexExisting(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &JSONLStore{file: f, seen: seen, path: path}, nil
}

func indexExisting(path string) (map[string]bool, error) {
	seen := make(map[string]bool)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return seen, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index store %s: %w", path, err)
	}
	defer f.Close()

	// Only the id is needed from each line.
	type idOnly struct {
		ProblemID string `json:"problem_id"`
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var rec idOnly
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if rec.ProblemID != "" {
			seen[rec.ProblemID] = true
		}
	}
	return seen, sc.Err()
}

// Exists reports whether the problem was already persisted.
func (s *JSONLStore) Exists(_ context.Context, problemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[problemID], nil
}

// Save appends the problem as one JSON line. Saving an id twice is a
// no-op, so retried pages never duplicate records.
func (s *JSONLStore) Save(_ context.Context, p *models.Problem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[p.ProblemID] {
		return nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal problem %s: %w", p.ProblemID, err)
	}
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append problem %s: %w", p.ProblemID, err)
	}
	s.seen[p.ProblemID] = true
	return nil
}

// Count returns the number of indexed records.
func (s *JSONLStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Close flushes and closes the underlying file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
