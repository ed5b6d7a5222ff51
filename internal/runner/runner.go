// Package runner executes a configured simulation end to end: it prepares
// the run directory, loads the connectome, runs the engine, persists the
// activation matrix and records the run in the registry.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nvandessel/sernet/internal/config"
	"github.com/nvandessel/sernet/internal/connectome"
	"github.com/nvandessel/sernet/internal/logging"
	"github.com/nvandessel/sernet/internal/observability"
	"github.com/nvandessel/sernet/internal/output"
	"github.com/nvandessel/sernet/internal/rundir"
	"github.com/nvandessel/sernet/internal/ser"
	"github.com/nvandessel/sernet/internal/store"
)

// ConfigSnapshot is the name of the configuration copy written into every
// run directory.
const ConfigSnapshot = "config_file.ini"

// Runner executes simulations. Store and Metrics are optional.
type Runner struct {
	Store   store.RunStore
	Metrics *observability.Collector
	Logger  *slog.Logger

	now     func() time.Time
	prepare func(dir string, cfg *config.RunConfig) error
}

// New creates a Runner. A nil logger discards log output.
func New(st store.RunStore, metrics *observability.Collector, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{Store: st, Metrics: metrics, Logger: logger, now: time.Now, prepare: prepareRunDir}
}

// prepareRunDir copies the connectome into dir and writes the config
// snapshot next to it.
func prepareRunDir(dir string, cfg *config.RunConfig) error {
	if _, err := rundir.CopyFile(cfg.Parameters.ConnectomeFile, dir); err != nil {
		return fmt.Errorf("failed to copy connectome: %w", err)
	}
	if _, err := rundir.WriteFile(dir, ConfigSnapshot, cfg.WriteINI); err != nil {
		return fmt.Errorf("failed to write config snapshot: %w", err)
	}
	return nil
}

// Result describes a finished run.
type Result struct {
	Record  store.RunRecord
	Dir     rundir.Dir
	Matrix  *ser.ActivationMatrix
	Outputs []string
}

// Execute runs the simulation described by cfg.
//
// Configuration and connectome errors are returned before anything is
// written to disk. Once the run directory exists every outcome, including
// cancellation, is recorded in the store.
func (r *Runner) Execute(ctx context.Context, cfg *config.RunConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	raw, err := connectome.Load(cfg.Parameters.ConnectomeFile)
	if err != nil {
		return nil, err
	}
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("connectome %s: %w", cfg.Parameters.ConnectomeFile, err)
	}
	conn := raw
	if cfg.Flags.ConnectomeNormalization {
		conn = raw.Normalize()
	}

	params := cfg.Resolve(conn.Size())
	if err := params.Validate(); err != nil {
		return nil, err
	}

	dir, err := rundir.Create(cfg.Output.Dir, cfg.Parameters.RunName)
	if err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	if dir.Renamed {
		r.Logger.Warn("run directory exists, using postfixed name",
			"requested", cfg.Parameters.RunName, "name", dir.Name)
	}

	record := store.RunRecord{
		ID:                 uuid.NewString(),
		Name:               dir.Name,
		Dir:                dir.Path,
		ConnectomePath:     cfg.Parameters.ConnectomeFile,
		ConnectomeChecksum: raw.Checksum(),
		Nodes:              conn.Size(),
		Normalized:         cfg.Flags.ConnectomeNormalization,
		Params:             params,
		Workers:            cfg.Engine.Workers,
		CreatedAt:          r.now().UTC(),
	}

	if err := r.prepare(dir.Path, cfg); err != nil {
		record.Status = store.StatusFailed
		record.Error = err.Error()
		r.finish(ctx, record)
		return nil, fmt.Errorf("run %s: %w", record.Name, err)
	}

	events := logging.NewEventLogger(dir.Path, cfg.Logging.Level)
	defer events.Close()
	events.Log("run_start", map[string]any{
		"run_id":    record.ID,
		"nodes":     record.Nodes,
		"edges":     conn.Edges(),
		"steps":     params.Steps,
		"seed":      params.Seed,
		"workers":   record.Workers,
		"ri":        params.SpontaneousProb,
		"rf":        params.RecoveryProb,
		"threshold": params.Threshold,
	})

	ctx, span := observability.Tracer().Start(ctx, "sernet.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("sernet.run_id", record.ID),
		attribute.Int("sernet.nodes", record.Nodes),
		attribute.Int("sernet.steps", params.Steps),
		attribute.Int64("sernet.seed", params.Seed),
		attribute.Int("sernet.workers", record.Workers),
	)

	r.Logger.Info("starting simulation",
		"run_id", record.ID, "dir", dir.Path, "nodes", record.Nodes, "steps", params.Steps, "seed", params.Seed)

	opts := []ser.Option{ser.WithWorkers(cfg.Engine.Workers), ser.WithObserver(events)}
	if r.Metrics != nil {
		opts = append(opts, ser.WithObserver(r.Metrics))
	}

	start := r.now()
	m, err := ser.Run(ctx, params, conn, opts...)
	if err == nil {
		meta := output.Metadata{
			"run_id":              record.ID,
			"connectome":          record.ConnectomePath,
			"connectome_checksum": record.ConnectomeChecksum,
			"t_max":               strconv.Itoa(params.Steps),
			"t_th":                strconv.Itoa(params.Transient),
			"ri":                  strconv.FormatFloat(params.SpontaneousProb, 'g', -1, 64),
			"rf":                  strconv.FormatFloat(params.RecoveryProb, 'g', -1, 64),
			"T":                   strconv.FormatFloat(params.Threshold, 'g', -1, 64),
			"seed":                strconv.FormatInt(params.Seed, 10),
			"workers":             strconv.Itoa(record.Workers),
		}
		record.Outputs, err = output.Save(dir.Path, output.Stem(cfg.Parameters.ConnectomeFile), m, cfg.Output.Formats, meta)
	}
	record.Duration = r.now().Sub(start)

	if err != nil {
		record.Status = store.StatusFailed
		record.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		events.Log("run_failed", map[string]any{"run_id": record.ID, "error": err.Error()})
		r.finish(ctx, record)
		return nil, fmt.Errorf("run %s: %w", record.Name, err)
	}

	record.Status = store.StatusCompleted
	record.Rows = m.Rows
	events.Log("run_completed", map[string]any{
		"run_id":      record.ID,
		"rows":        record.Rows,
		"duration_ms": record.Duration.Milliseconds(),
	})
	r.finish(ctx, record)

	return &Result{Record: record, Dir: dir, Matrix: m, Outputs: record.Outputs}, nil
}

// finish reports the outcome to metrics and the registry. A registry failure
// does not fail the run; the outputs are already on disk.
func (r *Runner) finish(ctx context.Context, record store.RunRecord) {
	r.Metrics.RunFinished(record.Status, record.Duration.Seconds())

	r.Logger.Info("simulation finished",
		"run_id", record.ID, "status", record.Status, "rows", record.Rows, "duration", record.Duration)

	if r.Store == nil {
		return
	}
	// The registry write must land even when ctx was cancelled mid-run.
	if err := r.Store.RecordRun(context.WithoutCancel(ctx), record); err != nil {
		r.Logger.Warn("failed to record run", "run_id", record.ID, "error", err)
	}
}
