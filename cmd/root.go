/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/addonsync/internal/project"
	"github.com/fulmenhq/addonsync/pkg/buildinfo"
	"github.com/fulmenhq/addonsync/pkg/config"
	"github.com/fulmenhq/addonsync/pkg/exitcode"
	"github.com/fulmenhq/addonsync/pkg/logger"
	"github.com/spf13/cobra"
)

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCodeFor maps a command error to the process exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitcode.GeneralError
}

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addonsync",
		Short: "Keep addon manifests and package indexes in sync with the file tree",
		Long: `addonsync keeps the generated registries of an Odoo-style addon project in step
with its files: the 'data' list of __manifest__.py and the 'from . import' lines of
__init__.py. Files created, renamed or deleted are registered or unregistered in
the nearest registry, and a project maintenance script runs once changes settle.

Examples:
   addonsync watch                           # Watch the current project
   addonsync apply create addon/views/a.xml  # Register one file
   addonsync audit --fix                     # Reconcile the whole tree
   addonsync config                          # Show effective configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().Bool("no-op", false, "Compute registry edits without writing them")
	cmd.PersistentFlags().StringP("root", "r", ".", "Project root directory")
	cmd.PersistentFlags().String("config", "", "Configuration file (default <root>/.addonsync.yaml)")

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("addonsync {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newWatchCommand())
	cmd.AddCommand(newApplyCommand())
	cmd.AddCommand(newAuditCommand())
	cmd.AddCommand(newConfigCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	code := exitCodeFor(err)
	if code == exitcode.DriftDetected {
		fmt.Fprintln(os.Stderr, err.Error())
	} else {
		logger.Error("Command execution failed", logger.Err(err))
	}
	os.Exit(code)
}

func init() {
	registerSubcommands(rootCmd)
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	noOp, _ := cmd.Flags().GetBool("no-op")

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "addonsync",
		NoOp:      noOp,
	}

	if err := logger.Initialize(config); err != nil {
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.ConfigError)
	}
	logger.SetOutput(cmd.ErrOrStderr())
}

// loadProject reads configuration for --root and wires the engine. With
// --no-op the document store keeps every edit in memory.
func loadProject(cmd *cobra.Command) (*project.Project, error) {
	root, _ := cmd.Flags().GetString("root")
	cfgFile, _ := cmd.Flags().GetString("config")
	noOp, _ := cmd.Flags().GetBool("no-op")

	cfg, err := config.Load(root, cfgFile)
	if err != nil {
		return nil, withExitCode(exitcode.ConfigError, err)
	}
	p, err := project.Open(root, cfg, nil)
	if err != nil {
		return nil, withExitCode(exitcode.FileSystemError, err)
	}
	if noOp {
		p.Store.SetDryRun(true)
		p.Config.Maintenance.Enabled = false
	}
	return p, nil
}
