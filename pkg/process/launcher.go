package process

import (
	"context"
)

// Handle is a live reference to one launched OS process. It carries the
// LaunchSpec it was created from so it can be relaunched verbatim.
type Handle interface {
	Spec() LaunchSpec

	// Command is the resolved argv the process was started with
	Command() []string

	PID() int

	// Exited reports, without blocking, whether the process has terminated
	// and with which exit code (-1 when killed by a signal).
	Exited() (exited bool, exitCode int)

	// Done is closed once the process has terminated
	Done() <-chan struct{}
}

// Launcher starts service processes. Launch must not wait for the process to
// become ready; it returns as soon as the OS has spawned it.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Handle, error)
}

// Restart launches a brand-new process from the spec captured by handle.
// The old handle is not queried again.
func Restart(ctx context.Context, launcher Launcher, handle Handle) (Handle, error) {
	return launcher.Launch(ctx, handle.Spec())
}
