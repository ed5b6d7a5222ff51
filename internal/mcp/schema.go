package mcp

import (
	"time"

	"github.com/nvandessel/sernet/internal/config"
	"github.com/nvandessel/sernet/internal/store"
)

// SimulateInput defines the input for the ser_simulate tool. Unset fields
// keep the value from the config file, or the defaults when none is given.
type SimulateInput struct {
	ConfigFile     string   `json:"config_file,omitempty" jsonschema:"description=INI or YAML run configuration (relative to project root)"`
	ConnectomeFile string   `json:"connectome_file,omitempty" jsonschema:"description=Connectome text file (relative to project root)"`
	RunName        string   `json:"run_name,omitempty" jsonschema:"description=Run directory name; a numeric postfix is added if it exists"`
	OutputDir      string   `json:"output_dir,omitempty" jsonschema:"description=Base directory for run directories (relative to project root)"`
	TMax           *int     `json:"t_max,omitempty" jsonschema:"description=Total simulated steps"`
	TTh            *int     `json:"t_th,omitempty" jsonschema:"description=Leading steps discarded before recording"`
	RI             *float64 `json:"ri,omitempty" jsonschema:"description=Spontaneous activation probability (0.0-1.0)"`
	RF             *float64 `json:"rf,omitempty" jsonschema:"description=Recovery probability (0.0-1.0)"`
	Threshold      *float64 `json:"threshold,omitempty" jsonschema:"description=Activation threshold on weighted excited input"`
	Seed           *int64   `json:"seed,omitempty" jsonschema:"description=Random seed"`
	FracInitActive *float64 `json:"frac_init_active,omitempty" jsonschema:"description=Fraction of nodes excited at t=0 (0.0-1.0)"`
	Workers        *int     `json:"workers,omitempty" jsonschema:"description=Parallel workers (0 = sequential)"`
	Formats        []string `json:"formats,omitempty" jsonschema:"description=Output formats: npy, arrow, csv"`
	Normalize      *bool    `json:"normalize,omitempty" jsonschema:"description=Divide each connectome row by its sum"`
	RRocha         *bool    `json:"r_rocha,omitempty" jsonschema:"description=Derive ri and rf from the network size"`
}

// SimulateOutput defines the output for the ser_simulate tool.
type SimulateOutput struct {
	RunID      string   `json:"run_id" jsonschema:"description=Registry ID of the run"`
	Name       string   `json:"name" jsonschema:"description=Final run directory name"`
	Dir        string   `json:"dir" jsonschema:"description=Run directory path"`
	Nodes      int      `json:"nodes" jsonschema:"description=Number of nodes in the connectome"`
	Rows       int      `json:"rows" jsonschema:"description=Recorded steps in the activation matrix"`
	Activity   float64  `json:"activity" jsonschema:"description=Mean fraction of excited cells over the recorded steps"`
	DurationMs int64    `json:"duration_ms" jsonschema:"description=Simulation wall time in milliseconds"`
	Outputs    []string `json:"outputs" jsonschema:"description=Written activation matrix files"`
	Message    string   `json:"message" jsonschema:"description=Human-readable result message"`
}

// RunsInput defines the input for the ser_runs tool.
type RunsInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of runs (default: 20)"`
	Status string `json:"status,omitempty" jsonschema:"description=Only runs with this status: 'completed' or 'failed'"`
}

// RunsOutput defines the output for the ser_runs tool.
type RunsOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"description=Runs, newest first"`
	Count int           `json:"count" jsonschema:"description=Number of runs returned"`
}

// RunListItem provides a list view of a registry entry.
type RunListItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Nodes      int       `json:"nodes"`
	Rows       int       `json:"rows"`
	Seed       int64     `json:"seed"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunInput defines the input for the ser_run tool.
type RunInput struct {
	ID string `json:"id" jsonschema:"description=Run ID as returned by ser_simulate or ser_runs,required"`
}

// RunOutput defines the output for the ser_run tool.
type RunOutput struct {
	Run store.RunRecord `json:"run" jsonschema:"description=Full registry entry"`
}

// ConfigInput defines the input for the ser_config tool.
type ConfigInput struct {
	ConfigFile string `json:"config_file,omitempty" jsonschema:"description=Configuration file to resolve (relative to project root); defaults only when empty"`
}

// ConfigOutput defines the output for the ser_config tool.
type ConfigOutput struct {
	Config *config.RunConfig `json:"config" jsonschema:"description=Effective configuration after file and environment overrides"`
}
