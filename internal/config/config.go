// Package config provides run configuration loading for sernet.
// It supports the INI layout of the original driver scripts
// ([Parameters] and [Flags] sections), YAML files, and environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/sernet/internal/ser"
)

// Supported output formats.
const (
	FormatNPY   = "npy"
	FormatArrow = "arrow"
	FormatCSV   = "csv"
)

// RunConfig contains all settings for a single simulation run.
type RunConfig struct {
	// Parameters holds the model parameters and input locations.
	Parameters ParametersConfig `json:"parameters" yaml:"parameters"`

	// Flags toggles optional preprocessing of the connectome and parameters.
	Flags FlagsConfig `json:"flags" yaml:"flags"`

	// Engine contains execution settings that do not change the model.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Output controls where and how the activation matrix is written.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint and tracing.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// ParametersConfig mirrors the [Parameters] section.
type ParametersConfig struct {
	// TMax is the total number of simulated steps.
	TMax int `json:"t_max" yaml:"t_max" ini:"t_max"`

	// TTh is the number of leading steps discarded (thermalization).
	TTh int `json:"t_th" yaml:"t_th" ini:"t_th"`

	// RI is the spontaneous activation probability.
	RI float64 `json:"ri" yaml:"ri" ini:"ri"`

	// RF is the recovery probability.
	RF float64 `json:"rf" yaml:"rf" ini:"rf"`

	// T is the activation threshold.
	T float64 `json:"T" yaml:"T" ini:"T"`

	Seed int64 `json:"seed" yaml:"seed" ini:"seed"`

	// FracInitActive is the fraction of nodes excited at t=0.
	FracInitActive float64 `json:"frac_init_active_neurons" yaml:"frac_init_active_neurons" ini:"frac_init_active_neurons"`

	// ConnectomeFile is the path of the text connectome, relative to the
	// working directory when not absolute.
	ConnectomeFile string `json:"connectome_file" yaml:"connectome_file" ini:"connectome_file"`

	// RunName names the run directory. A numeric postfix is added when the
	// directory already exists.
	RunName string `json:"run_name" yaml:"run_name" ini:"run_name"`
}

// FlagsConfig mirrors the [Flags] section.
type FlagsConfig struct {
	// RRocha replaces ri and rf with 2/N and (2/N)^0.2.
	RRocha bool `json:"r_rocha" yaml:"r_rocha" ini:"r_rocha"`

	// ConnectomeNormalization divides every connectome row by its sum.
	ConnectomeNormalization bool `json:"connectome_normalization" yaml:"connectome_normalization" ini:"connectome_normalization"`
}

// EngineConfig configures how the engine executes.
type EngineConfig struct {
	// Workers > 0 enables the parallel sub-stream stepping mode. Results are
	// reproducible for any worker count but differ from the sequential mode.
	Workers int `json:"workers" yaml:"workers"`
}

// OutputConfig configures output persistence.
type OutputConfig struct {
	// Dir is the base directory run directories are created in.
	Dir string `json:"dir" yaml:"dir"`

	// Formats lists the formats the activation matrix is written in:
	// "npy", "arrow", "csv".
	Formats []string `json:"formats" yaml:"formats"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the per-run event log (events.jsonl in the run directory).
	Level string `json:"level" yaml:"level"`
}

// MetricsConfig configures observability.
type MetricsConfig struct {
	// Addr serves Prometheus metrics on this address while a run executes
	// (e.g. ":9090"). Empty disables the endpoint.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// Trace writes OpenTelemetry spans for the run to stderr.
	Trace bool `json:"trace" yaml:"trace"`
}

// Default returns a RunConfig with the defaults of the original driver.
func Default() *RunConfig {
	return &RunConfig{
		Parameters: ParametersConfig{
			TMax:           2000,
			TTh:            200,
			RI:             0.001,
			RF:             0.2,
			T:              0.05,
			Seed:           124,
			FracInitActive: 0.01,
			ConnectomeFile: "sample.dat",
			RunName:        "test_run",
		},
		Output: OutputConfig{
			Dir:     ".",
			Formats: []string{FormatNPY},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from path (if non-empty) and applies environment
// variable overrides.
// Order: defaults -> file -> environment variables
func Load(path string) (*RunConfig, error) {
	config := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a file, choosing the decoder by
// extension: .ini and .cfg use the INI layout, .yaml and .yml use YAML.
func LoadFromFile(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		config := Default()
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		return config, nil
	case ".ini", ".cfg", ".conf", "":
		config, err := parseINI(data)
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		return config, nil
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (valid: .ini, .cfg, .yaml, .yml)", filepath.Ext(path))
	}
}

// Validate checks that the configuration is valid.
func (c *RunConfig) Validate() error {
	p := c.Parameters
	if p.TMax <= 0 {
		return fmt.Errorf("t_max must be positive, got %d: %w", p.TMax, ser.ErrConfig)
	}
	if p.TTh < 0 || p.TTh >= p.TMax {
		return fmt.Errorf("t_th must be in [0, t_max), got %d with t_max %d: %w", p.TTh, p.TMax, ser.ErrConfig)
	}
	if !c.Flags.RRocha {
		if p.RI < 0 || p.RI > 1 {
			return fmt.Errorf("ri must be between 0 and 1, got %f: %w", p.RI, ser.ErrConfig)
		}
		if p.RF < 0 || p.RF > 1 {
			return fmt.Errorf("rf must be between 0 and 1, got %f: %w", p.RF, ser.ErrConfig)
		}
	}
	if p.FracInitActive < 0 || p.FracInitActive > 1 {
		return fmt.Errorf("frac_init_active_neurons must be between 0 and 1, got %f: %w", p.FracInitActive, ser.ErrConfig)
	}
	if math.IsNaN(p.T) || math.IsInf(p.T, 0) {
		return fmt.Errorf("T must be finite, got %v: %w", p.T, ser.ErrConfig)
	}
	if p.ConnectomeFile == "" {
		return fmt.Errorf("connectome_file is required: %w", ser.ErrConfig)
	}
	if p.RunName == "" {
		return fmt.Errorf("run_name is required: %w", ser.ErrConfig)
	}
	if strings.ContainsAny(p.RunName, `/\`) || p.RunName == "." || p.RunName == ".." {
		return fmt.Errorf("run_name must be a plain directory name, got %q: %w", p.RunName, ser.ErrConfig)
	}

	if c.Engine.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d: %w", c.Engine.Workers, ser.ErrConfig)
	}

	if len(c.Output.Formats) == 0 {
		return fmt.Errorf("at least one output format is required: %w", ser.ErrConfig)
	}
	validFormats := map[string]bool{FormatNPY: true, FormatArrow: true, FormatCSV: true}
	for _, f := range c.Output.Formats {
		if !validFormats[f] {
			return fmt.Errorf("invalid output format: %s (valid: npy, arrow, csv): %w", f, ser.ErrConfig)
		}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default): %w", c.Logging.Level, ser.ErrConfig)
	}

	return nil
}

// Resolve turns the configuration into engine parameters for a connectome
// of n nodes. With r_rocha set, ri becomes 2/n and rf becomes ri^0.2.
func (c *RunConfig) Resolve(n int) ser.Params {
	p := c.Parameters
	ri, rf := p.RI, p.RF
	if c.Flags.RRocha && n > 0 {
		ri = 2.0 / float64(n)
		rf = math.Pow(ri, 0.2)
	}
	return ser.Params{
		Steps:           p.TMax,
		Transient:       p.TTh,
		SpontaneousProb: ri,
		RecoveryProb:    rf,
		PropActive:      p.FracInitActive,
		Threshold:       p.T,
		Seed:            p.Seed,
	}
}

// applyEnvOverrides applies SERNET_* environment variable overrides.
func applyEnvOverrides(config *RunConfig) error {
	ints := []struct {
		env string
		dst *int
	}{
		{"SERNET_T_MAX", &config.Parameters.TMax},
		{"SERNET_T_TH", &config.Parameters.TTh},
		{"SERNET_WORKERS", &config.Engine.Workers},
	}
	for _, o := range ints {
		if v := os.Getenv(o.env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", o.env, err)
			}
			*o.dst = n
		}
	}

	floats := []struct {
		env string
		dst *float64
	}{
		{"SERNET_RI", &config.Parameters.RI},
		{"SERNET_RF", &config.Parameters.RF},
		{"SERNET_T", &config.Parameters.T},
		{"SERNET_FRAC_INIT_ACTIVE", &config.Parameters.FracInitActive},
	}
	for _, o := range floats {
		if v := os.Getenv(o.env); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", o.env, err)
			}
			*o.dst = f
		}
	}

	if v := os.Getenv("SERNET_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SERNET_SEED: %w", err)
		}
		config.Parameters.Seed = n
	}

	if v := os.Getenv("SERNET_CONNECTOME_FILE"); v != "" {
		config.Parameters.ConnectomeFile = v
	}
	if v := os.Getenv("SERNET_RUN_NAME"); v != "" {
		config.Parameters.RunName = v
	}
	if v := os.Getenv("SERNET_R_ROCHA"); v != "" {
		config.Flags.RRocha = v == "true" || v == "1"
	}
	if v := os.Getenv("SERNET_CONNECTOME_NORMALIZATION"); v != "" {
		config.Flags.ConnectomeNormalization = v == "true" || v == "1"
	}
	if v := os.Getenv("SERNET_OUTPUT_DIR"); v != "" {
		config.Output.Dir = v
	}
	if v := os.Getenv("SERNET_FORMATS"); v != "" {
		config.Output.Formats = SplitFormats(v)
	}
	if v := os.Getenv("SERNET_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SERNET_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
	}
	return nil
}

// SplitFormats parses a comma-separated format list.
func SplitFormats(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}
