// Package store defines the RunStore interface for recording simulation runs
// and provides SQLite and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/sernet/internal/ser"
)

// ErrNotFound is returned when a run ID is not in the store.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRecord describes one executed simulation.
type RunRecord struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Dir                string        `json:"dir"`
	ConnectomePath     string        `json:"connectome_path"`
	ConnectomeChecksum string        `json:"connectome_checksum"`
	Nodes              int           `json:"nodes"`
	Normalized         bool          `json:"normalized"`
	Params             ser.Params    `json:"params"`
	Workers            int           `json:"workers"`
	Rows               int           `json:"rows"`
	Duration           time.Duration `json:"duration"`
	Status             string        `json:"status"`
	Error              string        `json:"error,omitempty"`
	Outputs            []string      `json:"outputs,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// ListOptions filters ListRuns.
type ListOptions struct {
	// Limit caps the number of records; 0 means no limit.
	Limit int

	// Status keeps only runs with this status when non-empty.
	Status string
}

// RunStore records simulation runs.
type RunStore interface {
	RecordRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, opts ListOptions) ([]RunRecord, error)

	Close() error
}
