package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/sernet/internal/ser"
)

func sampleRun(id string, created time.Time, status string) RunRecord {
	return RunRecord{
		ID:                 id,
		Name:               "test_run",
		Dir:                "/tmp/test_run",
		ConnectomePath:     "sample.dat",
		ConnectomeChecksum: "abc123",
		Nodes:              66,
		Normalized:         true,
		Params: ser.Params{
			Steps: 2000, Transient: 200, SpontaneousProb: 0.001, RecoveryProb: 0.2,
			PropActive: 0.01, Threshold: 0.05, Seed: 124,
		},
		Workers:   2,
		Rows:      1800,
		Duration:  1500 * time.Millisecond,
		Status:    status,
		Outputs:   []string{"/tmp/test_run/activation_matrix_sample.npy"},
		CreatedAt: created,
	}
}

// runStoreFactories lets every test exercise both implementations.
func runStoreFactories(t *testing.T) map[string]RunStore {
	t.Helper()
	sqliteStore, err := NewSQLiteRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteRunStore: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]RunStore{
		"memory": NewInMemoryRunStore(),
		"sqlite": sqliteStore,
	}
}

func TestRunStore_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	for name, s := range runStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleRun("run-1", created, StatusCompleted)
			if err := s.RecordRun(ctx, want); err != nil {
				t.Fatalf("RecordRun: %v", err)
			}

			got, err := s.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			if got.Params != want.Params {
				t.Errorf("params = %+v, want %+v", got.Params, want.Params)
			}
			if got.Nodes != 66 || !got.Normalized || got.Workers != 2 || got.Rows != 1800 {
				t.Errorf("unexpected record: %+v", got)
			}
			if got.Duration != want.Duration {
				t.Errorf("duration = %v, want %v", got.Duration, want.Duration)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("created = %v, want %v", got.CreatedAt, created)
			}
			if len(got.Outputs) != 1 || got.Outputs[0] != want.Outputs[0] {
				t.Errorf("outputs = %v", got.Outputs)
			}
		})
	}
}

func TestRunStore_GetMissing(t *testing.T) {
	for name, s := range runStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetRun(context.Background(), "nope")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRunStore_RequiresID(t *testing.T) {
	for name, s := range runStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.RecordRun(context.Background(), RunRecord{}); err == nil {
				t.Error("expected error for empty ID")
			}
		})
	}
}

func TestRunStore_ListOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range runStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			runs := []RunRecord{
				sampleRun("a", base, StatusCompleted),
				sampleRun("b", base.Add(100*time.Millisecond), StatusFailed),
				sampleRun("c", base.Add(120*time.Millisecond), StatusCompleted),
				sampleRun("d", base.Add(time.Second), StatusCompleted),
			}
			runs[1].Error = "boom"
			for _, r := range runs {
				if err := s.RecordRun(ctx, r); err != nil {
					t.Fatalf("RecordRun(%s): %v", r.ID, err)
				}
			}

			all, err := s.ListRuns(ctx, ListOptions{})
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			var ids []string
			for _, r := range all {
				ids = append(ids, r.ID)
			}
			if len(ids) != 4 || ids[0] != "d" || ids[1] != "c" || ids[2] != "b" || ids[3] != "a" {
				t.Errorf("order = %v, want [d c b a]", ids)
			}

			limited, _ := s.ListRuns(ctx, ListOptions{Limit: 2})
			if len(limited) != 2 || limited[0].ID != "d" {
				t.Errorf("limited = %+v", limited)
			}

			failed, _ := s.ListRuns(ctx, ListOptions{Status: StatusFailed})
			if len(failed) != 1 || failed[0].ID != "b" || failed[0].Error != "boom" {
				t.Errorf("failed = %+v", failed)
			}
		})
	}
}

func TestSQLiteRunStore_Reopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	s, err := NewSQLiteRunStore(root)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore: %v", err)
	}
	if err := s.RecordRun(ctx, sampleRun("persisted", time.Now(), StatusCompleted)); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if want := filepath.Join(root, DirName, "sernet.db"); s.Path() != want {
		t.Errorf("Path() = %q, want %q", s.Path(), want)
	}
	s.Close()

	s, err = NewSQLiteRunStore(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.GetRun(ctx, "persisted"); err != nil {
		t.Errorf("GetRun after reopen: %v", err)
	}
}
