package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/addonsync/internal/maintenance"
	"github.com/fulmenhq/addonsync/internal/router"
	"github.com/fulmenhq/addonsync/internal/watch"
	"github.com/fulmenhq/addonsync/pkg/exitcode"
	"github.com/fulmenhq/addonsync/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the project and keep registries in sync",
		Long: `Watch the project tree and update the nearest manifest and package index as files
are created, renamed or deleted. The maintenance script runs once changes have been
quiet for maintenance.delay. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	cmd.Flags().Duration("batch-window", 0, "Override watch.batch_window")
	cmd.Flags().Bool("no-maintenance", false, "Do not run the maintenance script")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	if noMaint, _ := cmd.Flags().GetBool("no-maintenance"); noMaint {
		p.Config.Maintenance.Enabled = false
	}
	window := p.Config.Watch.BatchWindow
	if w, _ := cmd.Flags().GetDuration("batch-window"); w > 0 {
		window = w
	}

	trigger := p.Trigger(maintenance.LogNotifier{})
	r := p.Router(trigger)

	feed, err := watch.New(watch.Options{Root: p.Root, BatchWindow: window, Ignore: p.Ignore})
	if err != nil {
		return withExitCode(exitcode.FileSystemError, err)
	}
	defer func() { _ = feed.Close() }()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Watching project",
		logger.String("root", p.Root),
		logger.Int("directories", feed.WatchedCount()),
		logger.Bool("maintenance", trigger != nil))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return feed.Run(gctx, func(batch []router.Event) {
			if err := r.Dispatch(batch); err != nil {
				logger.Warn("Registry update failed", logger.Err(err))
			}
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		return feed.Close()
	})
	err = g.Wait()

	if trigger != nil {
		trigger.Cancel()
	}
	logger.Info("Stopped watching", logger.String("root", p.Root))
	return err
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
