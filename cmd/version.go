/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fulmenhq/addonsync/pkg/buildinfo"
	"github.com/fulmenhq/addonsync/pkg/config"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show addonsync version",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().Bool("extended", false, "Show module and configuration schema versions")
	cmd.Flags().Bool("json", false, "Output version information in JSON format")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	info := buildinfo.Current()

	if jsonOutput {
		payload := map[string]interface{}{
			"version":   info.Version,
			"goVersion": info.GoVersion,
			"platform":  info.Platform,
			"arch":      info.Arch,
		}
		if info.ModuleVersion != "" {
			payload["moduleVersion"] = info.ModuleVersion
		}
		if extended {
			payload["configSchema"] = config.SchemaVersion
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(data))
		return nil
	}

	_, _ = fmt.Fprintf(out, "addonsync %s\n", info.Version)
	if extended {
		if info.ModuleVersion != "" {
			_, _ = fmt.Fprintf(out, "Module version: %s\n", info.ModuleVersion)
		}
		_, _ = fmt.Fprintf(out, "Config schema: %s\n", config.SchemaVersion)
	}
	_, _ = fmt.Fprintf(out, "Go version: %s\n", info.GoVersion)
	_, _ = fmt.Fprintf(out, "Platform: %s/%s\n", info.Platform, info.Arch)
	return nil
}
