package cmd

import (
	"fmt"

	"github.com/fulmenhq/addonsync/internal/audit"
	"github.com/fulmenhq/addonsync/pkg/exitcode"
	"github.com/fulmenhq/addonsync/pkg/logger"
	"github.com/spf13/cobra"
)

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare registries with the file tree",
		Long: `Scan the whole project once and report data files missing from their manifest,
manifest entries whose file is gone, malformed XML data files, and package index
imports that are missing or stale.

  --fix     register missing data files and imports
  --prune   also remove entries and imports whose target is gone
  --check   exit with status 10 when drift remains`,
		Args: cobra.NoArgs,
		RunE: runAudit,
	}
	cmd.Flags().Bool("fix", false, "Register unregistered data files and missing imports")
	cmd.Flags().Bool("prune", false, "Also remove stale entries and imports (implies --fix)")
	cmd.Flags().Bool("check", false, "Exit with a non-zero status when drift remains")
	cmd.Flags().StringP("format", "f", "text", "Report format: text|json|yaml|toml|markdown")
	cmd.Flags().Int("concurrency", 0, "Parallel checks (0 = default)")
	return cmd
}

func runAudit(cmd *cobra.Command, _ []string) error {
	fix, _ := cmd.Flags().GetBool("fix")
	prune, _ := cmd.Flags().GetBool("prune")
	check, _ := cmd.Flags().GetBool("check")
	formatName, _ := cmd.Flags().GetString("format")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	format, err := audit.ParseFormat(formatName)
	if err != nil {
		return withExitCode(exitcode.ConfigError, err)
	}

	p, err := loadProject(cmd)
	if err != nil {
		return err
	}

	report, scanErr := audit.New(p, audit.Options{
		Fix:         fix,
		Prune:       prune,
		Concurrency: concurrency,
	}).Scan(cmdContext(cmd))
	if report == nil {
		return withExitCode(exitcode.FileSystemError, scanErr)
	}

	if err := audit.Render(cmd.OutOrStdout(), report, format); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if scanErr != nil {
		return withExitCode(exitcode.FileSystemError, scanErr)
	}

	logger.Debug("Audit finished",
		logger.Int("findings", report.Summary.Findings),
		logger.Int("fixed", report.Summary.Fixed),
		logger.Int("remaining", report.Summary.Remaining))

	if check && report.Drift() {
		return withExitCode(exitcode.DriftDetected,
			fmt.Errorf("registry drift: %d unresolved findings", report.Summary.Remaining))
	}
	return nil
}
