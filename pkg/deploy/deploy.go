// Package deploy wires the build step, address allocation, service launches
// and the supervision loop into one deployment run.
package deploy

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/core-tools/hsu-deploy/pkg/address"
	"github.com/core-tools/hsu-deploy/pkg/build"
	"github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/logging"
	"github.com/core-tools/hsu-deploy/pkg/metrics"
	"github.com/core-tools/hsu-deploy/pkg/process"
	"github.com/core-tools/hsu-deploy/pkg/registry"
	"github.com/core-tools/hsu-deploy/pkg/supervisor"
)

// Program names of the deployed services
const (
	ProgramRegistry        = "registry"
	ProgramAgent           = "agent"
	ProgramFailureDetector = "pfd"
)

type Builder interface {
	Build(ctx context.Context) error
}

// Options override the collaborators a Deployment would otherwise create
// from its Config
type Options struct {
	Launcher process.Launcher
	Builder  Builder
	Metrics  metrics.Collector
	Sleep    supervisor.SleepFunc
	Now      func() time.Time
}

type Deployment struct {
	config   Config
	runID    ulid.ULID
	logger   logging.Logger
	builder  Builder
	group    *process.Group
	launcher process.Launcher
	metrics  metrics.Collector
	sleep    supervisor.SleepFunc
	now      func() time.Time

	// services supervised for restart; owned by the supervision loop once it runs
	services *registry.Registry
}

// NewDeployment validates config and prepares a run. config is expected to
// have had SetConfigDefaults applied.
func NewDeployment(config Config, options Options, logger logging.Logger) (*Deployment, error) {
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	runID := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	logger = logging.WithPrefix(logger, "run: "+runID.String()+" , ")

	d := &Deployment{
		config:   config,
		runID:    runID,
		logger:   logger,
		builder:  options.Builder,
		metrics:  options.Metrics,
		sleep:    options.Sleep,
		now:      options.Now,
		services: registry.New(),
	}

	if d.builder == nil {
		d.builder = build.NewBuilder(config.Build, logger)
	}
	if d.metrics == nil {
		if config.Metrics.Port != 0 {
			d.metrics = metrics.NewPrometheusCollector("")
		} else {
			d.metrics = metrics.NewNoopCollector()
		}
	}
	if d.now == nil {
		d.now = time.Now
	}

	launcher := options.Launcher
	if launcher == nil {
		launcher = process.NewExecLauncher(config.Launch, logger)
	}
	d.group = process.NewGroup(logger)
	d.launcher = d.group.Launcher(&instrumentedLauncher{inner: launcher, metrics: d.metrics})

	return d, nil
}

func (d *Deployment) RunID() string {
	return d.runID.String()
}

// Services returns the supervised registry. Only read it once Run returned.
func (d *Deployment) Services() *registry.Registry {
	return d.services
}

// Run builds, launches every service and supervises them until ctx is done.
// A cancelled ctx is a normal stop and returns nil; build and launch failures
// are returned as they are.
func (d *Deployment) Run(ctx context.Context) error {
	d.logger.Infof("Deploying, num_agents: %d, heartbeat_timeout: %ds, base address: %s",
		d.config.NumAgents, d.config.HeartbeatTimeout, address.Address{Host: d.config.Host, Port: d.config.BasePort})

	if err := d.builder.Build(ctx); err != nil {
		return d.stopped(ctx, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsDone, err := d.serveMetrics(runCtx)
	if err != nil {
		return err
	}

	err = d.start(runCtx)
	if err == nil {
		err = d.supervise(runCtx)
	}

	cancel()
	if metricsDone != nil {
		if metricsErr := <-metricsDone; metricsErr != nil {
			d.logger.Errorf("Metrics server failed: %v", metricsErr)
		}
	}
	d.teardown()

	return d.stopped(ctx, err)
}

// stopped maps cancellation by the caller to a clean stop
func (d *Deployment) stopped(ctx context.Context, err error) error {
	if errors.IsCancelledError(err) && ctx.Err() != nil {
		d.logger.Infof("Deployment stopped")
		return nil
	}
	return err
}

// start resets the peers file and launches registry, agents and failure
// detector on consecutive addresses.
func (d *Deployment) start(ctx context.Context) error {
	addresses := address.Allocate(d.config.Host, d.config.BasePort)

	registryAddr := addresses.Next()
	if err := resetPeersFile(d.config.PeersFile); err != nil {
		return err
	}

	registryHandle, err := d.launcher.Launch(ctx, process.NewLaunchSpec(ProgramRegistry,
		registryAddr.String(), d.config.PeersFile))
	if err != nil {
		return err
	}
	d.services.Set(registry.ServiceRegistry, registryHandle)

	if err := d.pause(ctx, d.config.RegistryStartupDelay); err != nil {
		return err
	}

	for i := 0; i < d.config.NumAgents; i++ {
		agentHandle, err := d.launcher.Launch(ctx, process.NewLaunchSpec(ProgramAgent,
			addresses.Next().String(), registryAddr.String()))
		if err != nil {
			return err
		}
		if d.config.SuperviseAgents {
			d.services.Set(fmt.Sprintf("%s-%d", ProgramAgent, i), agentHandle)
		}
	}

	pfdHandle, err := d.launcher.Launch(ctx, process.NewLaunchSpec(ProgramFailureDetector,
		addresses.Next().String(), registryAddr.String(), strconv.Itoa(d.config.HeartbeatTimeout)))
	if err != nil {
		return err
	}
	d.services.Set(registry.ServiceFailureDetector, pfdHandle)

	if !d.config.SuperviseAgents && d.config.NumAgents > 0 {
		d.logger.Warnf("%d agents are not supervised and will stay down if they crash", d.config.NumAgents)
	}
	return nil
}

func (d *Deployment) supervise(ctx context.Context) error {
	var policy supervisor.RestartPolicy = supervisor.ImmediateRestartPolicy{}
	if d.config.RestartBackoff.Enabled {
		backoffPolicy, err := supervisor.NewBackoffRestartPolicy(d.config.RestartBackoff)
		if err != nil {
			return err
		}
		policy = backoffPolicy
	}

	loop, err := supervisor.NewLoop(d.services, d.launcher, supervisor.LoopOptions{
		Interval: supervisor.IntervalFromHeartbeat(d.config.HeartbeatTimeoutDuration()),
		Policy:   policy,
		Metrics:  d.metrics,
		Sleep:    d.sleep,
		Now:      d.now,
	}, d.logger)
	if err != nil {
		return err
	}

	return loop.Run(ctx)
}

func (d *Deployment) pause(ctx context.Context, delay time.Duration) error {
	if d.sleep != nil {
		if err := d.sleep(ctx, delay); err != nil {
			return errors.NewCancelledError("deployment was cancelled", err)
		}
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.NewCancelledError("deployment was cancelled", ctx.Err())
	}
}

func (d *Deployment) serveMetrics(ctx context.Context) (<-chan error, error) {
	collector, ok := d.metrics.(*metrics.PrometheusCollector)
	if !ok || d.config.Metrics.Port == 0 {
		return nil, nil
	}

	server, err := metrics.NewServer(d.config.Metrics.Host, d.config.Metrics.Port, collector.Handler(), d.logger)
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()
	return done, nil
}

func (d *Deployment) teardown() {
	live := d.group.Live()
	if d.config.KeepChildren {
		if len(live) > 0 {
			d.logger.Infof("Leaving %d service processes running", len(live))
		}
		return
	}
	if err := d.group.Terminate(context.Background(), d.config.TerminateGracePeriod); err != nil {
		d.logger.Errorf("Teardown incomplete: %v", err)
	}
}

// instrumentedLauncher counts launches per program
type instrumentedLauncher struct {
	inner   process.Launcher
	metrics metrics.Collector
}

func (l *instrumentedLauncher) Launch(ctx context.Context, spec process.LaunchSpec) (process.Handle, error) {
	handle, err := l.inner.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}
	l.metrics.ServiceLaunched(spec.Name())
	return handle, nil
}
