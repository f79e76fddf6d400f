/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package maintenance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ExecuteOptions configures one command execution
type ExecuteOptions struct {
	// Command name or path (e.g., "sh")
	Command string

	// Args to pass to the command
	Args []string

	// WorkDir is the working directory (defaults to current directory)
	WorkDir string

	// Env contains additional environment variables
	Env map[string]string
}

// ExecuteResult contains the outcome of a command
type ExecuteResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Executor runs external commands
type Executor interface {
	Execute(ctx context.Context, opts ExecuteOptions) (*ExecuteResult, error)
}

// LocalExecutor runs commands found on PATH
type LocalExecutor struct{}

// NewLocalExecutor creates a new LocalExecutor
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// Execute runs the command locally. A non-zero exit status is reported through
// ExitCode, not as an error.
func (e *LocalExecutor) Execute(ctx context.Context, opts ExecuteOptions) (*ExecuteResult, error) {
	cmdPath, err := exec.LookPath(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("command %s not found: %w", opts.Command, err)
	}

	// #nosec G204 - command comes from project configuration
	cmd := exec.CommandContext(ctx, cmdPath, opts.Args...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	result := &ExecuteResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s interrupted: %w", opts.Command, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to execute %s: %w", opts.Command, err)
	}

	return result, nil
}
