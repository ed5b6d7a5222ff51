package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/sernet/internal/config"
	"github.com/nvandessel/sernet/internal/pathutil"
	"github.com/nvandessel/sernet/internal/ratelimit"
	"github.com/nvandessel/sernet/internal/store"
)

const defaultRunsLimit = 20

// registerTools registers all sernet MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ser_simulate",
		Description: "Run an SER cellular automaton simulation on a connectome and save the activation matrix",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ser_runs",
		Description: "List recorded simulation runs, newest first",
	}, s.handleRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ser_run",
		Description: "Show the full registry entry of one simulation run",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ser_config",
		Description: "Show the effective run configuration for a config file",
	}, s.handleConfig)
}

// resolve makes path absolute against the project root.
func (s *Server) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

// loadConfig loads the configuration file, if any, with environment
// overrides, and anchors its relative paths at the project root.
func (s *Server) loadConfig(configFile string) (*config.RunConfig, error) {
	path := s.resolve(configFile)
	if path != "" {
		if err := pathutil.CheckWithin(path, s.root); err != nil {
			return nil, fmt.Errorf("config_file: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Parameters.ConnectomeFile = s.resolve(cfg.Parameters.ConnectomeFile)
	cfg.Output.Dir = s.resolve(cfg.Output.Dir)
	return cfg, nil
}

// checkPaths keeps every file a run reads or writes inside the project root.
func (s *Server) checkPaths(cfg *config.RunConfig) error {
	if err := pathutil.CheckWithin(cfg.Parameters.ConnectomeFile, s.root); err != nil {
		return fmt.Errorf("connectome_file: %w", err)
	}
	if err := pathutil.CheckWithin(cfg.Output.Dir, s.root); err != nil {
		return fmt.Errorf("output_dir: %w", err)
	}
	return nil
}

// applySimulateInput overrides cfg with every field set in args.
func (s *Server) applySimulateInput(cfg *config.RunConfig, args SimulateInput) {
	p := &cfg.Parameters
	if args.ConnectomeFile != "" {
		p.ConnectomeFile = s.resolve(args.ConnectomeFile)
	}
	if args.RunName != "" {
		p.RunName = args.RunName
	}
	if args.OutputDir != "" {
		cfg.Output.Dir = s.resolve(args.OutputDir)
	}
	if args.TMax != nil {
		p.TMax = *args.TMax
	}
	if args.TTh != nil {
		p.TTh = *args.TTh
	}
	if args.RI != nil {
		p.RI = *args.RI
	}
	if args.RF != nil {
		p.RF = *args.RF
	}
	if args.Threshold != nil {
		p.T = *args.Threshold
	}
	if args.Seed != nil {
		p.Seed = *args.Seed
	}
	if args.FracInitActive != nil {
		p.FracInitActive = *args.FracInitActive
	}
	if args.Workers != nil {
		cfg.Engine.Workers = *args.Workers
	}
	if len(args.Formats) > 0 {
		cfg.Output.Formats = args.Formats
	}
	if args.Normalize != nil {
		cfg.Flags.ConnectomeNormalization = *args.Normalize
	}
	if args.RRocha != nil {
		cfg.Flags.RRocha = *args.RRocha
	}
}

// handleSimulate implements the ser_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("ser_simulate", start, retErr, sanitizeToolParams(map[string]any{
			"config_file": args.ConfigFile, "connectome_file": args.ConnectomeFile,
			"run_name": args.RunName, "output_dir": args.OutputDir,
			"t_max": args.TMax, "t_th": args.TTh, "ri": args.RI, "rf": args.RF,
			"threshold": args.Threshold, "seed": args.Seed, "frac_init_active": args.FracInitActive,
			"workers": args.Workers, "formats": args.Formats,
			"normalize": args.Normalize, "r_rocha": args.RRocha,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "ser_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	cfg, err := s.loadConfig(args.ConfigFile)
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	s.applySimulateInput(cfg, args)
	if err := s.checkPaths(cfg); err != nil {
		return nil, SimulateOutput{}, err
	}

	res, err := s.runner.Execute(ctx, cfg)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	rec := res.Record
	return nil, SimulateOutput{
		RunID:      rec.ID,
		Name:       rec.Name,
		Dir:        rec.Dir,
		Nodes:      rec.Nodes,
		Rows:       rec.Rows,
		Activity:   res.Matrix.Activity(),
		DurationMs: rec.Duration.Milliseconds(),
		Outputs:    res.Outputs,
		Message:    fmt.Sprintf("Simulated %d steps on %d nodes, recorded %d rows in %s", rec.Params.Steps, rec.Nodes, rec.Rows, rec.Name),
	}, nil
}

// handleRuns implements the ser_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("ser_runs", start, retErr, sanitizeToolParams(map[string]any{
			"limit": args.Limit, "status": args.Status,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "ser_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	switch args.Status {
	case "", store.StatusCompleted, store.StatusFailed:
	default:
		return nil, RunsOutput{}, fmt.Errorf("invalid status %q (valid: completed, failed)", args.Status)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}

	runs, err := s.store.ListRuns(ctx, store.ListOptions{Limit: limit, Status: args.Status})
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	items := make([]RunListItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, RunListItem{
			ID:         r.ID,
			Name:       r.Name,
			Status:     r.Status,
			Nodes:      r.Nodes,
			Rows:       r.Rows,
			Seed:       r.Params.Seed,
			DurationMs: r.Duration.Milliseconds(),
			CreatedAt:  r.CreatedAt,
		})
	}
	return nil, RunsOutput{Runs: items, Count: len(items)}, nil
}

// handleRun implements the ser_run tool.
func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("ser_run", start, retErr, sanitizeToolParams(map[string]any{"id": args.ID}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "ser_run"); err != nil {
		return nil, RunOutput{}, err
	}
	if args.ID == "" {
		return nil, RunOutput{}, fmt.Errorf("id is required")
	}

	run, err := s.store.GetRun(ctx, args.ID)
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("failed to get run: %w", err)
	}
	return nil, RunOutput{Run: *run}, nil
}

// handleConfig implements the ser_config tool.
func (s *Server) handleConfig(ctx context.Context, req *sdk.CallToolRequest, args ConfigInput) (_ *sdk.CallToolResult, _ ConfigOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("ser_config", start, retErr, sanitizeToolParams(map[string]any{"config_file": args.ConfigFile}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "ser_config"); err != nil {
		return nil, ConfigOutput{}, err
	}

	cfg, err := s.loadConfig(args.ConfigFile)
	if err != nil {
		return nil, ConfigOutput{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, ConfigOutput{}, fmt.Errorf("invalid config: %w", err)
	}
	return nil, ConfigOutput{Config: cfg}, nil
}
