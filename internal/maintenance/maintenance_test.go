package maintenance

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/fulmenhq/addonsync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

type fakeExecutor struct {
	calls   []ExecuteOptions
	results []*ExecuteResult
	err     error
}

func (f *fakeExecutor) Execute(_ context.Context, opts ExecuteOptions) (*ExecuteResult, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &ExecuteResult{}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("maintenance scripts need a POSIX shell")
	}
}

func writeScript(t *testing.T, root, body string) string {
	t.Helper()
	p := filepath.Join(root, "set_permissions.sh")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRunMissingScriptIsSkipped(t *testing.T) {
	exec := &fakeExecutor{}
	r := NewRunner(Options{Root: t.TempDir(), Script: "set_permissions.sh"}, exec, nil)

	n := r.Run(context.Background())
	assert.True(t, n.Skipped)
	assert.True(t, n.Success)
	assert.Empty(t, exec.calls)
}

func TestRunScriptAndRestart(t *testing.T) {
	skipWithoutShell(t)
	root := t.TempDir()
	script := writeScript(t, root, "echo ok > ran.txt\n")

	r := NewRunner(Options{
		Root:           root,
		Script:         "set_permissions.sh",
		RestartCommand: []string{"sh", "-c", "echo restarted > restarted.txt"},
	}, nil, nil)

	n := r.Run(context.Background())
	require.NoError(t, n.Err)
	assert.True(t, n.Success)
	assert.False(t, n.Skipped)

	st, err := os.Stat(script)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), st.Mode().Perm())

	assert.FileExists(t, filepath.Join(root, "ran.txt"))
	assert.FileExists(t, filepath.Join(root, "restarted.txt"))
}

func TestRunScriptFailureStopsBeforeRestart(t *testing.T) {
	skipWithoutShell(t)
	root := t.TempDir()
	writeScript(t, root, "echo 'permission denied' >&2\nexit 3\n")

	r := NewRunner(Options{
		Root:           root,
		Script:         "set_permissions.sh",
		RestartCommand: []string{"sh", "-c", "touch restarted.txt"},
	}, nil, nil)

	n := r.Run(context.Background())
	assert.False(t, n.Success)
	assert.Equal(t, StepScript, n.Step)
	assert.Equal(t, 3, n.ExitCode)
	assert.Equal(t, "permission denied", n.Output)
	assert.Error(t, n.Err)
	assert.NoFileExists(t, filepath.Join(root, "restarted.txt"))
}

func TestRunRestartFailure(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "true\n")
	exec := &fakeExecutor{results: []*ExecuteResult{{}, {ExitCode: 1, Stdout: []byte("service unknown\n")}}}

	r := NewRunner(Options{Root: root, Script: "set_permissions.sh", RestartCommand: []string{"systemctl", "restart", "odoo"}}, exec, nil)
	n := r.Run(context.Background())

	assert.False(t, n.Success)
	assert.Equal(t, StepRestart, n.Step)
	assert.Equal(t, "service unknown", n.Output)
	require.Len(t, exec.calls, 2)
	assert.Equal(t, "sh", exec.calls[0].Command)
	assert.Equal(t, []string{filepath.Join(root, "set_permissions.sh")}, exec.calls[0].Args)
	assert.Equal(t, root, exec.calls[0].WorkDir)
	assert.Equal(t, "systemctl", exec.calls[1].Command)
	assert.Equal(t, []string{"restart", "odoo"}, exec.calls[1].Args)
}

func TestRunExecutorError(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "true\n")
	exec := &fakeExecutor{err: errors.New("command sh not found")}

	n := NewRunner(Options{Root: root, Script: "set_permissions.sh"}, exec, nil).Run(context.Background())
	assert.False(t, n.Success)
	assert.EqualError(t, n.Err, "command sh not found")
}

func TestLocalExecutorTimeout(t *testing.T) {
	skipWithoutShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewLocalExecutor().Execute(ctx, ExecuteOptions{Command: "sh", Args: []string{"-c", "sleep 5"}})
	assert.Error(t, err)
}

func TestLocalExecutorEnvAndExitCode(t *testing.T) {
	skipWithoutShell(t)
	res, err := NewLocalExecutor().Execute(context.Background(), ExecuteOptions{
		Command: "sh",
		Args:    []string{"-c", "echo $ADDONSYNC_TEST; exit 2"},
		Env:     map[string]string{"ADDONSYNC_TEST": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "hello\n", string(res.Stdout))
}

func TestTriggerNotifiesOncePerQuietPeriod(t *testing.T) {
	notifier := &recordingNotifier{}
	exec := &fakeExecutor{}
	root := t.TempDir()
	writeScript(t, root, "true\n")

	tr := NewTrigger(20*time.Millisecond, NewRunner(Options{Root: root, Script: "set_permissions.sh"}, exec, notifier))
	tr.Trigger()
	tr.Trigger()
	tr.Trigger()

	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, notifier.count())
	assert.True(t, notifier.notices[0].Success)
	assert.NotNil(t, tr.Runner())
}

func TestLogNotifier(t *testing.T) {
	require.NoError(t, logger.Initialize(logger.Config{Level: logger.DebugLevel, Component: "test"}))
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	LogNotifier{}.Notify(Notice{Success: true, Script: "set_permissions.sh"})
	LogNotifier{}.Notify(Notice{Step: StepRestart, Script: "set_permissions.sh", ExitCode: 1, Err: errors.New("boom"), Output: "nope"})
	LogNotifier{}.Notify(Notice{Skipped: true, Success: true, Script: "set_permissions.sh"})

	out := buf.String()
	assert.Contains(t, out, "Maintenance completed")
	assert.Contains(t, out, "Maintenance failed")
	assert.Contains(t, out, "step=restart")
	assert.Contains(t, out, "Maintenance script not present")
}
