package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryRunStore implements RunStore for testing and for runs that do not
// need a registry on disk.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
}

// NewInMemoryRunStore creates an empty in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]RunRecord)}
}

// RecordRun stores or replaces a run.
func (s *InMemoryRunStore) RecordRun(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	run.Outputs = append([]string(nil), run.Outputs...)
	s.runs[run.ID] = run
	return nil
}

// GetRun returns the run with the given ID.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error { return nil }
