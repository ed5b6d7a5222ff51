package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sernet/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create run configuration files",
		Long: `View and create sernet run configuration.

Run configuration is read from INI files ([Parameters] and [Flags]
sections) or YAML files, then overridden by SERNET_* environment variables.

Examples:
  sernet config show                  # Show defaults with env overrides
  sernet config show run.ini          # Show the effective config of a file
  sernet config show run.ini --as yaml
  sernet config init config_file.ini  # Write a default config file`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [config-file]",
		Short: "Show the effective configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			as, _ := cmd.Flags().GetString("as")

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			validationErr := cfg.Validate()

			out := cmd.OutOrStdout()
			if jsonOut {
				resp := map[string]interface{}{"config": cfg, "valid": validationErr == nil}
				if validationErr != nil {
					resp["error"] = validationErr.Error()
				}
				return json.NewEncoder(out).Encode(resp)
			}

			switch strings.ToLower(as) {
			case "ini":
				err = cfg.WriteINI(out)
			case "yaml", "yml":
				err = cfg.WriteYAML(out)
			default:
				return fmt.Errorf("invalid --as %q (valid: ini, yaml)", as)
			}
			if err != nil {
				return err
			}
			if validationErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", validationErr)
			}
			return nil
		},
	}
	cmd.Flags().String("as", "ini", "Output layout: ini or yaml")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <config-file>",
		Short: "Write a configuration file with the default values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			path := args[0]

			write := config.Default().WriteINI
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				write = config.Default().WriteYAML
			case ".ini", ".cfg", ".conf", "":
			default:
				return fmt.Errorf("unsupported config file extension %q (valid: .ini, .cfg, .yaml, .yml)", filepath.Ext(path))
			}

			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if !force {
				flags |= os.O_EXCL
			}
			f, err := os.OpenFile(path, flags, 0644)
			if err != nil {
				if os.IsExist(err) {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				return fmt.Errorf("failed to create config file: %w", err)
			}
			if err := write(f); err != nil {
				f.Close()
				return fmt.Errorf("failed to write config file: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}
