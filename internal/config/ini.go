package config

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
	"gopkg.in/yaml.v3"
)

// Section names of the INI layout. Matching is case-insensitive, as in the
// original driver's configparser files.
const (
	sectionParameters = "parameters"
	sectionFlags      = "flags"
	sectionEngine     = "engine"
	sectionOutput     = "output"
	sectionLogging    = "logging"
	sectionMetrics    = "metrics"
)

// parseINI decodes the INI layout on top of Default(). Keys that are absent
// keep their defaults; keys that are present but malformed are errors.
func parseINI(data []byte) (*RunConfig, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, data)
	if err != nil {
		return nil, err
	}

	config := Default()
	r := iniReader{f: f}

	p := &config.Parameters
	r.readInt(sectionParameters, "t_max", &p.TMax)
	r.readInt(sectionParameters, "t_th", &p.TTh)
	r.readFloat(sectionParameters, "ri", &p.RI)
	r.readFloat(sectionParameters, "rf", &p.RF)
	r.readFloat(sectionParameters, "t", &p.T)
	r.readInt64(sectionParameters, "seed", &p.Seed)
	r.readFloat(sectionParameters, "frac_init_active_neurons", &p.FracInitActive)
	r.readString(sectionParameters, "connectome_file", &p.ConnectomeFile)
	r.readString(sectionParameters, "run_name", &p.RunName)

	r.readBool(sectionFlags, "r_rocha", &config.Flags.RRocha)
	r.readBool(sectionFlags, "connectome_normalization", &config.Flags.ConnectomeNormalization)

	r.readInt(sectionEngine, "workers", &config.Engine.Workers)

	r.readString(sectionOutput, "dir", &config.Output.Dir)
	var formats string
	if r.readString(sectionOutput, "formats", &formats) {
		config.Output.Formats = SplitFormats(formats)
	}

	r.readString(sectionLogging, "level", &config.Logging.Level)
	r.readString(sectionMetrics, "addr", &config.Metrics.Addr)
	r.readBool(sectionMetrics, "trace", &config.Metrics.Trace)

	if r.err != nil {
		return nil, r.err
	}
	return config, nil
}

// iniReader reads typed keys and keeps the first error.
type iniReader struct {
	f   *ini.File
	err error
}

func (r *iniReader) key(section, name string) *ini.Key {
	if r.err != nil {
		return nil
	}
	sec, err := r.f.GetSection(section)
	if err != nil || !sec.HasKey(name) {
		return nil
	}
	return sec.Key(name)
}

func (r *iniReader) fail(section, name string, err error) {
	r.err = fmt.Errorf("[%s] %s: %w", section, name, err)
}

func (r *iniReader) readString(section, name string, dst *string) bool {
	k := r.key(section, name)
	if k == nil {
		return false
	}
	*dst = strings.TrimSpace(k.String())
	return true
}

func (r *iniReader) readInt(section, name string, dst *int) {
	if k := r.key(section, name); k != nil {
		v, err := k.Int()
		if err != nil {
			r.fail(section, name, err)
			return
		}
		*dst = v
	}
}

func (r *iniReader) readInt64(section, name string, dst *int64) {
	if k := r.key(section, name); k != nil {
		v, err := k.Int64()
		if err != nil {
			r.fail(section, name, err)
			return
		}
		*dst = v
	}
}

func (r *iniReader) readFloat(section, name string, dst *float64) {
	if k := r.key(section, name); k != nil {
		v, err := k.Float64()
		if err != nil {
			r.fail(section, name, err)
			return
		}
		*dst = v
	}
}

func (r *iniReader) readBool(section, name string, dst *bool) {
	if k := r.key(section, name); k != nil {
		v, err := k.Bool()
		if err != nil {
			r.fail(section, name, err)
			return
		}
		*dst = v
	}
}

// WriteINI writes the effective configuration in the INI layout. The result
// can be loaded again with LoadFromFile.
func (c *RunConfig) WriteINI(w io.Writer) error {
	f := ini.Empty()
	add := func(section string, kv ...string) error {
		sec, err := f.NewSection(section)
		if err != nil {
			return err
		}
		for i := 0; i+1 < len(kv); i += 2 {
			if _, err := sec.NewKey(kv[i], kv[i+1]); err != nil {
				return err
			}
		}
		return nil
	}

	p := c.Parameters
	ff := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	if err := add("Parameters",
		"t_max", strconv.Itoa(p.TMax),
		"t_th", strconv.Itoa(p.TTh),
		"ri", ff(p.RI),
		"rf", ff(p.RF),
		"T", ff(p.T),
		"seed", strconv.FormatInt(p.Seed, 10),
		"frac_init_active_neurons", ff(p.FracInitActive),
		"connectome_file", p.ConnectomeFile,
		"run_name", p.RunName,
	); err != nil {
		return fmt.Errorf("building INI: %w", err)
	}
	if err := add("Flags",
		"r_rocha", strconv.FormatBool(c.Flags.RRocha),
		"connectome_normalization", strconv.FormatBool(c.Flags.ConnectomeNormalization),
	); err != nil {
		return fmt.Errorf("building INI: %w", err)
	}
	if err := add("Engine", "workers", strconv.Itoa(c.Engine.Workers)); err != nil {
		return fmt.Errorf("building INI: %w", err)
	}
	if err := add("Output",
		"dir", c.Output.Dir,
		"formats", strings.Join(c.Output.Formats, ","),
	); err != nil {
		return fmt.Errorf("building INI: %w", err)
	}
	if err := add("Logging", "level", c.Logging.Level); err != nil {
		return fmt.Errorf("building INI: %w", err)
	}
	if err := add("Metrics",
		"addr", c.Metrics.Addr,
		"trace", strconv.FormatBool(c.Metrics.Trace),
	); err != nil {
		return fmt.Errorf("building INI: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing INI: %w", err)
	}
	return nil
}

// WriteYAML writes the effective configuration as YAML.
func (c *RunConfig) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("writing YAML: %w", err)
	}
	return enc.Close()
}
