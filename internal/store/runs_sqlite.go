package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/sernet/internal/ser"
)

// DirName is the registry directory created under the project root.
const DirName = ".sernet"

// timeLayout is fixed-width so that created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore implements RunStore using SQLite for persistence.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (or creates) the registry at
// <projectRoot>/.sernet/sernet.db.
func NewSQLiteRunStore(projectRoot string) (*SQLiteRunStore, error) {
	dir := filepath.Join(projectRoot, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", DirName, err)
	}
	return OpenSQLiteRunStore(filepath.Join(dir, "sernet.db"))
}

// OpenSQLiteRunStore opens (or creates) the registry database at dbPath.
func OpenSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// RecordRun inserts or replaces a run.
func (s *SQLiteRunStore) RecordRun(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	outputs, err := json.Marshal(run.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := run.Params
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, name, dir, connectome_path, connectome_checksum, nodes, normalized,
			steps, transient, ri, rf, prop_active, threshold, seed, workers,
			row_count, duration_ns, status, error, outputs, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Dir, run.ConnectomePath, run.ConnectomeChecksum, run.Nodes, boolToInt(run.Normalized),
		p.Steps, p.Transient, p.SpontaneousProb, p.RecoveryProb, p.PropActive, p.Threshold, p.Seed, run.Workers,
		run.Rows, int64(run.Duration), run.Status, nullString(run.Error), string(outputs),
		run.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

const selectRuns = `
	SELECT id, name, dir, connectome_path, connectome_checksum, nodes, normalized,
		steps, transient, ri, rf, prop_active, threshold, seed, workers,
		row_count, duration_ns, status, error, outputs, created_at
	FROM runs`

// GetRun returns the run with the given ID, or an error wrapping ErrNotFound.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}
	query := selectRuns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		run        RunRecord
		p          ser.Params
		normalized int
		durationNs int64
		errText    sql.NullString
		outputs    sql.NullString
		createdAt  string
	)
	err := sc.Scan(
		&run.ID, &run.Name, &run.Dir, &run.ConnectomePath, &run.ConnectomeChecksum, &run.Nodes, &normalized,
		&p.Steps, &p.Transient, &p.SpontaneousProb, &p.RecoveryProb, &p.PropActive, &p.Threshold, &p.Seed, &run.Workers,
		&run.Rows, &durationNs, &run.Status, &errText, &outputs, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	run.Params = p
	run.Normalized = normalized != 0
	run.Duration = time.Duration(durationNs)
	run.Error = errText.String
	if outputs.Valid && outputs.String != "" && outputs.String != "null" {
		if err := json.Unmarshal([]byte(outputs.String), &run.Outputs); err != nil {
			return nil, fmt.Errorf("decoding outputs: %w", err)
		}
	}
	run.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("decoding created_at: %w", err)
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
