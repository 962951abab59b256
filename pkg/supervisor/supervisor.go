// Package supervisor keeps the registered services of a deployment alive.
package supervisor

import (
	"context"
	"time"

	"github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/logging"
	"github.com/core-tools/hsu-deploy/pkg/metrics"
	"github.com/core-tools/hsu-deploy/pkg/process"
	"github.com/core-tools/hsu-deploy/pkg/registry"
)

// SleepFunc pauses between ticks; it returns early with an error when ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

type LoopOptions struct {
	// Interval between the end of one tick and the start of the next
	Interval time.Duration

	// Policy defaults to ImmediateRestartPolicy
	Policy RestartPolicy

	Metrics metrics.Collector

	Sleep SleepFunc
	Now   func() time.Time
}

// IntervalFromHeartbeat derives the poll interval from the heartbeat timeout,
// so a crashed failure detector is replaced within its own timeout window.
func IntervalFromHeartbeat(heartbeatTimeout time.Duration) time.Duration {
	return heartbeatTimeout / 2
}

// Loop polls every service in the registry and relaunches the ones that
// exited, whatever their exit status. It never stops on its own.
type Loop struct {
	registry *registry.Registry
	launcher process.Launcher
	options  LoopOptions
	logger   logging.Logger

	// last exited handle reported per service, so deferred restarts are
	// logged and counted once
	reported map[string]process.Handle
}

func NewLoop(reg *registry.Registry, launcher process.Launcher, options LoopOptions, logger logging.Logger) (*Loop, error) {
	if reg == nil {
		return nil, errors.NewValidationError("registry cannot be nil", nil)
	}
	if launcher == nil {
		return nil, errors.NewValidationError("launcher cannot be nil", nil)
	}
	if options.Interval <= 0 {
		return nil, errors.NewValidationError("supervision interval must be positive", nil).
			WithContext("interval", options.Interval.String())
	}
	if options.Policy == nil {
		options.Policy = ImmediateRestartPolicy{}
	}
	if options.Metrics == nil {
		options.Metrics = metrics.NewNoopCollector()
	}
	if options.Sleep == nil {
		options.Sleep = sleepContext
	}
	if options.Now == nil {
		options.Now = time.Now
	}

	return &Loop{
		registry: reg,
		launcher: launcher,
		options:  options,
		logger:   logger,
		reported: make(map[string]process.Handle),
	}, nil
}

// Run ticks, then sleeps for the interval, forever. The sleep is not shortened
// by the time the tick took. Run only returns when ctx is done or a restart
// could not be launched.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Infof("Supervising services: %v, interval: %v", l.registry.Names(), l.options.Interval)

	for {
		if err := l.Tick(ctx); err != nil {
			return err
		}
		if err := l.options.Sleep(ctx, l.options.Interval); err != nil {
			return errors.NewCancelledError("supervision stopped", err)
		}
	}
}

// Tick checks every registered service once and synchronously restarts the
// ones that exited, in registry order.
func (l *Loop) Tick(ctx context.Context) error {
	start := l.options.Now()
	defer func() {
		l.options.Metrics.SupervisionTick(l.options.Now().Sub(start))
	}()
	l.options.Metrics.SupervisedServices(l.registry.Len())

	return l.registry.Each(func(name string, handle process.Handle) error {
		exited, exitCode := handle.Exited()
		if !exited {
			return nil
		}

		if l.reported[name] != handle {
			l.reported[name] = handle
			l.logger.Warnf("Service exited, id: %s, PID: %d, exit code: %d", name, handle.PID(), exitCode)
			l.options.Metrics.ServiceExited(name, exitCode)
		}

		now := l.options.Now()
		if allowed, wait := l.options.Policy.Allow(name, now); !allowed {
			l.logger.Infof("Restart deferred by backoff, id: %s, remaining: %v", name, wait)
			l.options.Metrics.RestartDeferred(name)
			return nil
		}

		restarted, err := process.Restart(ctx, l.launcher, handle)
		if err != nil {
			l.logger.Errorf("Failed to restart service, id: %s, error: %v", name, err)
			return errors.NewProcessError("failed to restart service", err).WithContext("service", name)
		}

		l.registry.Set(name, restarted)
		delete(l.reported, name)
		l.options.Policy.Restarted(name, now)
		l.options.Metrics.ServiceRestarted(name)

		l.logger.Infof("Service restarted, id: %s, PID: %d, command: %v", name, restarted.PID(), restarted.Command())
		return nil
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
