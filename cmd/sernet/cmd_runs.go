package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/sernet/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run registry",
	}
	cmd.AddCommand(newRunsListCmd(), newRunsShowCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")
			status, _ := cmd.Flags().GetString("status")

			switch status {
			case "", store.StatusCompleted, store.StatusFailed:
			default:
				return fmt.Errorf("invalid --status %q (valid: completed, failed)", status)
			}

			runStore, err := store.NewSQLiteRunStore(root)
			if err != nil {
				return fmt.Errorf("failed to open run registry: %w", err)
			}
			defer runStore.Close()

			runs, err := runStore.ListRuns(cmd.Context(), store.ListOptions{Limit: limit, Status: status})
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tNODES\tROWS\tSEED\tDURATION\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					shortID(r.ID), r.Name, r.Status,
					humanize.Comma(int64(r.Nodes)), humanize.Comma(int64(r.Rows)),
					r.Params.Seed, r.Duration.Round(time.Millisecond), humanize.Time(r.CreatedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs (0 = all)")
	cmd.Flags().String("status", "", "Only runs with this status: completed, failed")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run; an unambiguous ID prefix is accepted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			runStore, err := store.NewSQLiteRunStore(root)
			if err != nil {
				return fmt.Errorf("failed to open run registry: %w", err)
			}
			defer runStore.Close()

			run, err := findRun(cmd, runStore, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(run)
			}

			p := run.Params
			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "  Name:       %s\n", run.Name)
			fmt.Fprintf(out, "  Status:     %s\n", run.Status)
			if run.Error != "" {
				fmt.Fprintf(out, "  Error:      %s\n", run.Error)
			}
			fmt.Fprintf(out, "  Created:    %s (%s)\n", run.CreatedAt.Format(time.RFC3339), humanize.Time(run.CreatedAt))
			fmt.Fprintf(out, "  Directory:  %s\n", run.Dir)
			fmt.Fprintf(out, "  Connectome: %s (%s nodes, sha256 %s)\n", run.ConnectomePath, humanize.Comma(int64(run.Nodes)), shortID(run.ConnectomeChecksum))
			fmt.Fprintf(out, "  Normalized: %v\n", run.Normalized)
			fmt.Fprintf(out, "  Parameters: t_max=%d t_th=%d ri=%g rf=%g T=%g frac=%g seed=%d\n",
				p.Steps, p.Transient, p.SpontaneousProb, p.RecoveryProb, p.Threshold, p.PropActive, p.Seed)
			fmt.Fprintf(out, "  Workers:    %d\n", run.Workers)
			fmt.Fprintf(out, "  Rows:       %s\n", humanize.Comma(int64(run.Rows)))
			fmt.Fprintf(out, "  Duration:   %s\n", run.Duration.Round(time.Millisecond))
			for _, o := range run.Outputs {
				fmt.Fprintf(out, "  Output:     %s\n", o)
			}
			return nil
		},
	}
}

// findRun resolves an exact ID or a unique prefix of one.
func findRun(cmd *cobra.Command, runStore store.RunStore, id string) (*store.RunRecord, error) {
	run, err := runStore.GetRun(cmd.Context(), id)
	if err == nil {
		return run, nil
	}

	runs, listErr := runStore.ListRuns(cmd.Context(), store.ListOptions{})
	if listErr != nil {
		return nil, fmt.Errorf("failed to list runs: %w", listErr)
	}
	var match *store.RunRecord
	for i := range runs {
		if !strings.HasPrefix(runs[i].ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("run ID prefix %q is ambiguous", id)
		}
		match = &runs[i]
	}
	if match == nil {
		return nil, fmt.Errorf("run %q: %w", id, store.ErrNotFound)
	}
	return match, nil
}

// shortID trims IDs and checksums for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
