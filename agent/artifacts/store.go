package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileIndex keeps artifact metadata in an index.json file.
type FileIndex struct {
	path  string
	mu    sync.RWMutex
	index map[string]*Artifact
}

// NewFileIndex loads (or creates) the index file in dir.
func NewFileIndex(dir string) (*FileIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	idx := &FileIndex{
		path:  filepath.Join(dir, "index.json"),
		index: make(map[string]*Artifact),
	}
	if err := idx.loadIndex(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *FileIndex) Put(ctx context.Context, artifact *Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.index {
		if existing.Name == artifact.Name && id != artifact.ID {
			delete(s.index, id)
		}
	}
	cp := *artifact
	s.index[artifact.ID] = &cp
	return s.saveIndex()
}

func (s *FileIndex) Get(ctx context.Context, id string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *artifact
	return &cp, nil
}

func (s *FileIndex) List(ctx context.Context, query Query) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Artifact
	for _, artifact := range s.index {
		if matchesQuery(artifact, query) {
			cp := *artifact
			results = append(results, &cp)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].Name < results[j].Name
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

func (s *FileIndex) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.index, id)
	return s.saveIndex()
}

func matchesQuery(artifact *Artifact, query Query) bool {
	if query.SessionID != "" && artifact.SessionID != query.SessionID {
		return false
	}
	if query.Kind != "" && artifact.Kind != query.Kind {
		return false
	}
	if query.Participant != "" && artifact.Participant != query.Participant {
		return false
	}
	if !query.CreatedBefore.IsZero() && !artifact.CreatedAt.Before(query.CreatedBefore) {
		return false
	}
	return true
}

func (s *FileIndex) loadIndex() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	return json.Unmarshal(data, &s.index)
}

func (s *FileIndex) saveIndex() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return os.Rename(tmp, s.path)
}
