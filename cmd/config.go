package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/addonsync/pkg/config"
	"github.com/fulmenhq/addonsync/pkg/exitcode"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or validate the effective configuration",
		Long: `Print the configuration addonsync would use for --root: built-in defaults, the
project's .addonsync.yaml (or --config) and ADDONSYNC_* environment overrides.
With --validate the configuration file is checked against the embedded schema.`,
		Args: cobra.NoArgs,
		RunE: runConfig,
	}
	cmd.Flags().Bool("validate", false, "Validate the configuration file and exit")
	cmd.Flags().StringP("format", "f", "yaml", "Output format: yaml|json")
	return cmd
}

func runConfig(cmd *cobra.Command, _ []string) error {
	root, _ := cmd.Flags().GetString("root")
	cfgFile, _ := cmd.Flags().GetString("config")
	validateOnly, _ := cmd.Flags().GetBool("validate")
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	settings, used, err := config.Effective(root, cfgFile)
	if err != nil {
		return withExitCode(exitcode.ConfigError, err)
	}

	if validateOnly {
		if used == "" {
			_, _ = fmt.Fprintln(out, "No configuration file found; using defaults.")
			return nil
		}
		if _, err := config.Load(root, cfgFile); err != nil {
			return withExitCode(exitcode.ConfigError, err)
		}
		_, _ = fmt.Fprintf(out, "%s is valid (schema %s)\n", filepath.Base(used), config.SchemaVersion)
		return nil
	}

	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(data))
	case "yaml", "yml":
		if used != "" {
			_, _ = fmt.Fprintf(out, "# source: %s\n", used)
		} else {
			_, _ = fmt.Fprintln(out, "# source: defaults")
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(settings); err != nil {
			return fmt.Errorf("failed to format YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return err
		}
	default:
		return withExitCode(exitcode.ConfigError, fmt.Errorf("unsupported format %q", format))
	}
	return nil
}
