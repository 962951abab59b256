// Package processtest provides in-memory launchers and handles for tests
// that must not spawn real processes.
package processtest

import (
	"context"
	"sync"

	"github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/process"
)

// FakeHandle is a process handle whose termination is driven by the test
type FakeHandle struct {
	spec     process.LaunchSpec
	pid      int
	done     chan struct{}
	once     sync.Once
	exitCode int
}

func NewFakeHandle(spec process.LaunchSpec, pid int) *FakeHandle {
	return &FakeHandle{
		spec: spec,
		pid:  pid,
		done: make(chan struct{}),
	}
}

// Exit marks the fake process as terminated with code
func (h *FakeHandle) Exit(code int) {
	h.once.Do(func() {
		h.exitCode = code
		close(h.done)
	})
}

func (h *FakeHandle) Spec() process.LaunchSpec {
	return h.spec
}

func (h *FakeHandle) Command() []string {
	return append([]string{h.spec.Name()}, h.spec.Args()...)
}

func (h *FakeHandle) PID() int {
	return h.pid
}

func (h *FakeHandle) Exited() (bool, int) {
	select {
	case <-h.done:
		return true, h.exitCode
	default:
		return false, 0
	}
}

func (h *FakeHandle) Done() <-chan struct{} {
	return h.done
}

// FakeLauncher records every launch and hands out FakeHandles. The handles
// report PID 0 so nothing ever signals a real process by accident.
type FakeLauncher struct {
	mutex    sync.Mutex
	launched []*FakeHandle
	failures map[string]error
}

func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{
		failures: make(map[string]error),
	}
}

// FailOn makes every subsequent launch of program fail with a launch error
func (l *FakeLauncher) FailOn(program string, cause error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.failures[program] = cause
}

func (l *FakeLauncher) Launch(ctx context.Context, spec process.LaunchSpec) (process.Handle, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if cause, ok := l.failures[spec.Name()]; ok {
		return nil, errors.NewLaunchError("failed to start the process", cause).WithContext("service", spec.Name())
	}

	handle := NewFakeHandle(spec, 0)
	l.launched = append(l.launched, handle)
	return handle, nil
}

// Launched returns all handles in launch order
func (l *FakeLauncher) Launched() []*FakeHandle {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]*FakeHandle(nil), l.launched...)
}

// LaunchedNamed returns the handles launched for program, in order
func (l *FakeLauncher) LaunchedNamed(program string) []*FakeHandle {
	var result []*FakeHandle
	for _, h := range l.Launched() {
		if h.Spec().Name() == program {
			result = append(result, h)
		}
	}
	return result
}
