package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/fulmenhq/addonsync/internal/maintenance"
	"github.com/fulmenhq/addonsync/internal/router"
	"github.com/fulmenhq/addonsync/pkg/exitcode"
	"github.com/spf13/cobra"
)

func newApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply one change to the registries without watching",
		Long: `Route a single create, delete or rename through the same editors the watcher
uses. Useful from editor hooks, git hooks and CI. Paths are relative to the current
directory or absolute; paths outside the project root are ignored.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().Bool("maintain", false, "Run the maintenance script after applying")

	cmd.AddCommand(&cobra.Command{
		Use:   "create <path>...",
		Short: "Register created files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, func(r *router.Router, paths []string) error {
				return r.Created(paths...)
			}, args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <path>...",
		Short: "Unregister deleted files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, func(r *router.Router, paths []string) error {
				return r.Deleted(paths...)
			}, args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Move a registration from an old path to a new one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, func(r *router.Router, paths []string) error {
				return r.Renamed(router.Rename{Old: paths[0], New: paths[1]})
			}, args)
		},
	})
	return cmd
}

// runApply resolves args to absolute paths and hands them to fn. Maintenance
// is run synchronously, and only when asked for.
func runApply(cmd *cobra.Command, fn func(*router.Router, []string) error, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return withExitCode(exitcode.FileSystemError, fmt.Errorf("failed to resolve %s: %w", a, err))
		}
		paths = append(paths, abs)
	}

	maintain, _ := cmd.Flags().GetBool("maintain")
	var trigger *maintenance.Trigger
	if maintain {
		trigger = p.Trigger(maintenance.LogNotifier{})
	}

	// No debounce here: one call, one maintenance run.
	if err := fn(p.Router(nil), paths); err != nil {
		return withExitCode(exitcode.FileSystemError, err)
	}
	if trigger != nil {
		trigger.Fire()
	}
	return nil
}
