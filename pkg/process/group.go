package process

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/logging"
)

const DefaultTerminateGracePeriod = 5 * time.Second

// Group remembers every process launched during one deployment so they can be
// torn down when the orchestrator is stopped. It plays no part in supervision:
// untracked services are recorded here too, but never restarted.
type Group struct {
	mutex   sync.Mutex
	handles []Handle
	logger  logging.Logger
}

func NewGroup(logger logging.Logger) *Group {
	return &Group{logger: logger}
}

// Launcher wraps inner so that every handle it produces joins the group
func (g *Group) Launcher(inner Launcher) Launcher {
	return &groupLauncher{group: g, inner: inner}
}

// Add records handle and forgets handles whose whole process group is gone.
// A group can outlive its leader, so an exited handle is kept while any
// member of its group is still around.
func (g *Group) Add(handle Handle) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	kept := g.handles[:0]
	for _, h := range g.handles {
		if groupRunning(h) {
			kept = append(kept, h)
		}
	}
	g.handles = append(kept, handle)
}

// Live returns the handles that have not exited yet
func (g *Group) Live() []Handle {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	var live []Handle
	for _, h := range g.handles {
		if exited, _ := h.Exited(); !exited {
			live = append(live, h)
		}
	}
	return live
}

// Terminate sends SIGTERM to every process group that still has members,
// waits up to grace for the groups to empty and then SIGKILLs every one of
// them, leaders and stragglers alike.
func (g *Group) Terminate(ctx context.Context, grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultTerminateGracePeriod
	}

	g.mutex.Lock()
	var targets []Handle
	for _, h := range g.handles {
		if h.PID() > 0 && groupRunning(h) {
			targets = append(targets, h)
		}
	}
	g.handles = nil
	g.mutex.Unlock()

	if len(targets) == 0 {
		return nil
	}
	g.logger.Infof("Terminating %d service process groups...", len(targets))

	errorCollection := errors.NewErrorCollection()
	for _, h := range targets {
		if err := sendTerminationSignal(h.PID()); err != nil {
			errorCollection.Add(errors.NewProcessError("failed to send termination signal", err).
				WithContext("service", h.Spec().Name()).WithContext("pid", h.PID()))
		}
	}

	if !waitGroupsGone(ctx, targets, grace) {
		for _, h := range targets {
			if groupRunning(h) {
				g.logger.Warnf("Process group did not exit in time, killing, service: %s, PID: %d", h.Spec().Name(), h.PID())
			}
		}
	}

	// ESRCH is ignored, so groups that already emptied are harmless here
	for _, h := range targets {
		if err := sendKillSignal(h.PID()); err != nil {
			errorCollection.Add(errors.NewProcessError("failed to send kill signal", err).
				WithContext("service", h.Spec().Name()).WithContext("pid", h.PID()))
		}
	}

	if errorCollection.HasErrors() {
		g.logger.Errorf("Some service processes failed to terminate: %v", errorCollection.Error())
	}
	return errorCollection.ToError()
}

const groupPollInterval = 50 * time.Millisecond

// waitGroupsGone polls until no target group has members left, grace expires
// or ctx is done. It reports whether every group emptied.
func waitGroupsGone(ctx context.Context, targets []Handle, grace time.Duration) bool {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	ticker := time.NewTicker(groupPollInterval)
	defer ticker.Stop()

	for {
		running := false
		for _, h := range targets {
			if groupRunning(h) {
				running = true
				break
			}
		}
		if !running {
			return true
		}

		select {
		case <-ticker.C:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// groupRunning reports whether the leader of h or any other member of its
// process group is still running
func groupRunning(h Handle) bool {
	if exited, _ := h.Exited(); !exited {
		return true
	}
	if h.PID() <= 0 {
		return false
	}
	return groupHasMembers(h.PID())
}

type groupLauncher struct {
	group *Group
	inner Launcher
}

func (l *groupLauncher) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	handle, err := l.inner.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}
	l.group.Add(handle)
	return handle, nil
}
