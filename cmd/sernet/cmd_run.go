package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nvandessel/sernet/internal/config"
	"github.com/nvandessel/sernet/internal/logging"
	"github.com/nvandessel/sernet/internal/observability"
	"github.com/nvandessel/sernet/internal/runner"
	"github.com/nvandessel/sernet/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [config-file]",
		Short: "Run a simulation",
		Long: `Run an SER simulation described by an INI or YAML configuration file.

Without a file the built-in defaults are used. Environment variables
(SERNET_*) override the file, and flags override both.

Examples:
  sernet run config_file.ini
  sernet run --connectome net.dat --steps 5000 --seed 7
  sernet run run.yaml --workers 8 --format npy,arrow --metrics-addr :9090`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadRunConfig(cmd, args)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
				Enabled: cfg.Metrics.Trace,
				Writer:  cmd.ErrOrStderr(),
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

			collector, err := observability.NewCollector(prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("failed to create metrics: %w", err)
			}
			if cfg.Metrics.Addr != "" {
				stopMetrics, err := serveMetrics(cfg.Metrics.Addr, collector, logger)
				if err != nil {
					return err
				}
				defer stopMetrics()
			}

			runStore, err := store.NewSQLiteRunStore(root)
			if err != nil {
				return fmt.Errorf("failed to open run registry: %w", err)
			}
			defer runStore.Close()

			res, err := runner.New(runStore, collector, logger).Execute(ctx, cfg)
			if err != nil {
				return err
			}
			return printRunResult(cmd, res, jsonOut)
		},
	}

	cmd.Flags().String("connectome", "", "Connectome file (overrides connectome_file)")
	cmd.Flags().String("name", "", "Run directory name (overrides run_name)")
	cmd.Flags().Int("steps", 0, "Total simulated steps (overrides t_max)")
	cmd.Flags().Int("transient", 0, "Discarded leading steps (overrides t_th)")
	cmd.Flags().Int64("seed", 0, "Random seed")
	cmd.Flags().Int("workers", 0, "Parallel workers; 0 runs the sequential engine")
	cmd.Flags().StringSlice("format", nil, "Output formats: npy, arrow, csv")
	cmd.Flags().String("out", "", "Base directory for run directories")
	cmd.Flags().Bool("normalize", false, "Normalize connectome rows to sum 1")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	cmd.Flags().Bool("trace", false, "Write OpenTelemetry spans to stderr")

	return cmd
}

// loadRunConfig loads the optional config file and applies flag overrides.
// Only flags set on the command line override the file.
func loadRunConfig(cmd *cobra.Command, args []string) (*config.RunConfig, error) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	p := &cfg.Parameters
	if flags.Changed("connectome") {
		p.ConnectomeFile, _ = flags.GetString("connectome")
	}
	if flags.Changed("name") {
		p.RunName, _ = flags.GetString("name")
	}
	if flags.Changed("steps") {
		p.TMax, _ = flags.GetInt("steps")
	}
	if flags.Changed("transient") {
		p.TTh, _ = flags.GetInt("transient")
	}
	if flags.Changed("seed") {
		p.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("workers") {
		cfg.Engine.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("format") {
		cfg.Output.Formats, _ = flags.GetStringSlice("format")
	}
	if flags.Changed("out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("normalize") {
		cfg.Flags.ConnectomeNormalization, _ = flags.GetBool("normalize")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("trace") {
		cfg.Metrics.Trace, _ = flags.GetBool("trace")
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// newLogger writes operational logs to stderr so stdout stays parseable.
func newLogger(cmd *cobra.Command, cfg *config.RunConfig) *slog.Logger {
	level := cfg.Logging.Level
	if level == "" {
		level = "info"
	}
	return logging.NewLogger(level, cmd.ErrOrStderr())
}

// serveMetrics exposes the collector on addr until the returned function is
// called.
func serveMetrics(addr string, collector *observability.Collector, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printRunResult(cmd *cobra.Command, res *runner.Result, jsonOut bool) error {
	out := cmd.OutOrStdout()
	rec := res.Record

	if jsonOut {
		return json.NewEncoder(out).Encode(map[string]interface{}{
			"run":      rec,
			"activity": res.Matrix.Activity(),
		})
	}

	if res.Dir.Renamed {
		fmt.Fprintf(out, "Run directory existed, using %s\n", res.Dir.Name)
	}
	fmt.Fprintf(out, "Run %s completed in %s\n", rec.ID, rec.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Directory:  %s\n", rec.Dir)
	fmt.Fprintf(out, "  Connectome: %s (%s nodes)\n", rec.ConnectomePath, humanize.Comma(int64(rec.Nodes)))
	fmt.Fprintf(out, "  Recorded:   %s steps, %s cells\n",
		humanize.Comma(int64(rec.Rows)), humanize.Comma(int64(rec.Rows)*int64(rec.Nodes)))
	fmt.Fprintf(out, "  Activity:   %.4f\n", res.Matrix.Activity())
	for _, path := range res.Outputs {
		size := "?"
		if info, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(out, "  Output:     %s (%s)\n", path, size)
	}
	return nil
}
