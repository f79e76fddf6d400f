// Package maintenance runs the project's maintenance script after registry
// changes settle: the script is located at the project root, made executable
// and run, followed by the optional restart command. The outcome is reported
// as a single notice and never stops the caller.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/addonsync/pkg/logger"
)

// Options configures a Runner.
type Options struct {
	Root           string
	Script         string
	Shell          string
	RestartCommand []string
	Timeout        time.Duration
}

// Step names the stage a notice refers to.
type Step string

const (
	StepScript  Step = "script"
	StepRestart Step = "restart"
)

// Notice is the outcome of one maintenance run.
type Notice struct {
	Success  bool
	Skipped  bool
	Step     Step
	Script   string
	ExitCode int
	Output   string
	Err      error
	Duration time.Duration
}

// Notifier surfaces maintenance outcomes to the user.
type Notifier interface {
	Notify(n Notice)
}

// LogNotifier reports notices through the structured logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(n Notice) {
	switch {
	case n.Skipped:
		logger.Debug("Maintenance script not present", logger.String("script", n.Script))
	case n.Success:
		logger.Info("Maintenance completed", logger.String("script", n.Script), logger.Duration("duration", n.Duration))
	default:
		fields := []logger.Field{
			logger.String("script", n.Script),
			logger.String("step", string(n.Step)),
			logger.Int("exit_code", n.ExitCode),
		}
		if n.Err != nil {
			fields = append(fields, logger.Err(n.Err))
		}
		if n.Output != "" {
			fields = append(fields, logger.String("output", n.Output))
		}
		logger.Error("Maintenance failed", fields...)
	}
}

// Runner executes the maintenance script and restart command.
type Runner struct {
	opts     Options
	exec     Executor
	notifier Notifier
}

// NewRunner creates a runner. A nil executor or notifier selects the local
// executor and the log notifier.
func NewRunner(opts Options, exec Executor, notifier Notifier) *Runner {
	if opts.Shell == "" {
		opts.Shell = "sh"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if exec == nil {
		exec = NewLocalExecutor()
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Runner{opts: opts, exec: exec, notifier: notifier}
}

// ScriptPath returns the absolute location of the maintenance script.
func (r *Runner) ScriptPath() string {
	return filepath.Join(r.opts.Root, filepath.FromSlash(r.opts.Script))
}

// Maintain runs once with the configured timeout and notifies the outcome.
// It is the action handed to the debouncer.
func (r *Runner) Maintain() {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()
	r.notifier.Notify(r.Run(ctx))
}

// Run executes the script and then the restart command, stopping at the first failure.
func (r *Runner) Run(ctx context.Context) Notice {
	start := time.Now()
	script := r.ScriptPath()
	n := Notice{Script: r.opts.Script, Step: StepScript}

	st, err := os.Stat(script)
	if err != nil || st.IsDir() {
		n.Skipped = true
		n.Success = true
		return n
	}

	if err := ensureExecutable(script, st.Mode()); err != nil {
		n.Err = err
		n.Duration = time.Since(start)
		return n
	}

	if !r.step(ctx, &n, ExecuteOptions{Command: r.opts.Shell, Args: []string{script}, WorkDir: r.opts.Root}) {
		n.Duration = time.Since(start)
		return n
	}

	if len(r.opts.RestartCommand) > 0 {
		n.Step = StepRestart
		restart := ExecuteOptions{
			Command: r.opts.RestartCommand[0],
			Args:    r.opts.RestartCommand[1:],
			WorkDir: r.opts.Root,
		}
		if !r.step(ctx, &n, restart) {
			n.Duration = time.Since(start)
			return n
		}
	}

	n.Success = true
	n.Duration = time.Since(start)
	return n
}

func (r *Runner) step(ctx context.Context, n *Notice, opts ExecuteOptions) bool {
	res, err := r.exec.Execute(ctx, opts)
	if err != nil {
		n.Err = err
		return false
	}
	n.ExitCode = res.ExitCode
	if res.ExitCode != 0 {
		n.Output = strings.TrimSpace(string(res.Stderr))
		if n.Output == "" {
			n.Output = strings.TrimSpace(string(res.Stdout))
		}
		n.Err = fmt.Errorf("%s exited with status %d", opts.Command, res.ExitCode)
		return false
	}
	return true
}

func ensureExecutable(p string, mode os.FileMode) error {
	if mode&0o111 == 0o111 {
		return nil
	}
	if err := os.Chmod(p, mode|0o111); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("cannot make %s executable: %w", p, err)
		}
		return fmt.Errorf("failed to chmod %s: %w", p, err)
	}
	return nil
}

// Trigger debounces maintenance runs; it satisfies the router's trigger.
type Trigger struct {
	*Debouncer
	runner *Runner
}

// NewTrigger wires a runner behind a debouncer with the given quiet period.
func NewTrigger(delay time.Duration, runner *Runner) *Trigger {
	return &Trigger{Debouncer: NewDebouncer(delay, runner.Maintain), runner: runner}
}

// Runner returns the wrapped runner.
func (t *Trigger) Runner() *Runner {
	return t.runner
}
