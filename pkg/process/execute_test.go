//go:build !windows

package process

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func waitExited(t *testing.T, h Handle) int {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("process %d did not exit", h.PID())
	}
	exited, code := h.Exited()
	require.True(t, exited)
	return code
}

func TestExecLauncher_ReportsExitCode(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		expected int
	}{
		{"clean exit", "exit 0", 0},
		{"failure exit", "exit 3", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := NewExecLauncher(CommandTemplate{}, logging.NewNopLogger())

			handle, err := launcher.Launch(context.Background(), NewLaunchSpec("/bin/sh", "-c", tt.script))
			require.NoError(t, err)
			assert.Greater(t, handle.PID(), 0)

			assert.Equal(t, tt.expected, waitExited(t, handle))
		})
	}
}

func TestExecLauncher_RunningProcessNotExited(t *testing.T) {
	launcher := NewExecLauncher(CommandTemplate{}, logging.NewNopLogger())
	group := NewGroup(logging.NewNopLogger())

	handle, err := group.Launcher(launcher).Launch(context.Background(), NewLaunchSpec("/bin/sleep", "30"))
	require.NoError(t, err)

	exited, _ := handle.Exited()
	assert.False(t, exited)

	require.NoError(t, group.Terminate(context.Background(), 2*time.Second))
	assert.Equal(t, -1, waitExited(t, handle))
}

func TestExecLauncher_BinDirAndOutput(t *testing.T) {
	var stdout bytes.Buffer
	launcher := NewExecLauncher(CommandTemplate{BinDir: "/bin"}, logging.NewNopLogger())
	launcher.Stdout = &stdout

	handle, err := launcher.Launch(context.Background(), NewLaunchSpec("echo", "0.0.0.0:5000", "/tmp/consensus-registry"))
	require.NoError(t, err)
	require.Equal(t, 0, waitExited(t, handle))

	assert.Equal(t, []string{filepath.Join("/bin", "echo"), "0.0.0.0:5000", "/tmp/consensus-registry"}, handle.Command())
	assert.Equal(t, "0.0.0.0:5000 /tmp/consensus-registry\n", stdout.String())
}

func TestExecLauncher_StatusLineIgnoresLogLevel(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	launcher := NewExecLauncher(CommandTemplate{}, logging.NewZapLoggerFrom(zap.New(core)))
	var status bytes.Buffer
	launcher.Status = &status

	handle, err := launcher.Launch(context.Background(), NewLaunchSpec("/bin/sh", "-c", "exit 0", "0.0.0.0:5001", "0.0.0.0:5000"))
	require.NoError(t, err)
	waitExited(t, handle)

	assert.Equal(t, "starting /bin/sh with [-c exit 0 0.0.0.0:5001 0.0.0.0:5000]\n", status.String())
	assert.Zero(t, logs.Len())
}

func TestRestart_ReproducesArguments(t *testing.T) {
	launcher := NewExecLauncher(CommandTemplate{}, logging.NewNopLogger())
	spec := NewLaunchSpec("/bin/sh", "-c", "exit 0", "0.0.0.0:5004", "0.0.0.0:5000", "4")

	original, err := launcher.Launch(context.Background(), spec)
	require.NoError(t, err)
	waitExited(t, original)

	restarted, err := Restart(context.Background(), launcher, original)
	require.NoError(t, err)
	waitExited(t, restarted)

	assert.NotSame(t, original, restarted)
	assert.True(t, original.Spec().Equal(restarted.Spec()))
	assert.Equal(t, original.Command(), restarted.Command())
}

func TestExecLauncher_MissingProgram(t *testing.T) {
	launcher := NewExecLauncher(CommandTemplate{BinDir: t.TempDir()}, logging.NewNopLogger())

	handle, err := launcher.Launch(context.Background(), NewLaunchSpec("registry", "0.0.0.0:5000"))
	assert.Nil(t, handle)
	assert.True(t, errors.IsLaunchError(err), "expected launch error, got %v", err)
}

func TestExecLauncher_CancelledContext(t *testing.T) {
	launcher := NewExecLauncher(CommandTemplate{}, logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := launcher.Launch(ctx, NewLaunchSpec("/bin/true"))
	assert.True(t, errors.IsCancelledError(err))
}
