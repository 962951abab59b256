package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/logging"
)

// ExecLauncher launches services as child processes of the orchestrator
type ExecLauncher struct {
	template CommandTemplate
	logger   logging.Logger

	// Stdout and Stderr of children; nil inherits the orchestrator's.
	Stdout io.Writer
	Stderr io.Writer

	// Status receives the "starting <name> with [args]" line of every
	// launch whatever the log level; nil means os.Stdout.
	Status io.Writer
}

func NewExecLauncher(template CommandTemplate, logger logging.Logger) *ExecLauncher {
	return &ExecLauncher{
		template: template,
		logger:   logger,
	}
}

func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("launch was cancelled", err).WithContext("service", spec.Name())
	}

	command, err := l.template.Resolve(spec)
	if err != nil {
		return nil, err
	}

	status := l.Status
	if status == nil {
		status = os.Stdout
	}
	fmt.Fprintf(status, "starting %s with %v\n", spec.Name(), spec.Args())
	l.logger.Debugf("Resolved command, service: %s, command: %v", spec.Name(), command)

	// Not CommandContext: child lifetime is governed by Group, not by ctx.
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = l.template.WorkingDirectory
	if len(l.template.Environment) > 0 {
		cmd.Env = append(os.Environ(), l.template.Environment...)
	}
	cmd.Stdin = nil
	cmd.Stdout = l.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	setupProcessAttributes(cmd)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewLaunchError("failed to start the process", err).
			WithContext("service", spec.Name()).
			WithContext("command", command)
	}

	handle := &execHandle{
		spec:      spec,
		command:   command,
		cmd:       cmd,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
	go handle.wait()

	l.logger.Debugf("Process started, service: %s, PID: %d", spec.Name(), cmd.Process.Pid)
	return handle, nil
}

type execHandle struct {
	spec      LaunchSpec
	command   []string
	cmd       *exec.Cmd
	startTime time.Time

	done     chan struct{}
	exitCode int
}

// wait reaps the child; exitCode is written before done is closed.
func (h *execHandle) wait() {
	_ = h.cmd.Wait()
	h.exitCode = -1
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	close(h.done)
}

func (h *execHandle) Spec() LaunchSpec {
	return h.spec
}

func (h *execHandle) Command() []string {
	return append([]string(nil), h.command...)
}

func (h *execHandle) PID() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Exited() (bool, int) {
	select {
	case <-h.done:
		return true, h.exitCode
	default:
		return false, 0
	}
}

func (h *execHandle) Done() <-chan struct{} {
	return h.done
}
