package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/logging"
	"github.com/core-tools/hsu-deploy/pkg/metrics"
	"github.com/core-tools/hsu-deploy/pkg/process"
	"github.com/core-tools/hsu-deploy/pkg/process/processtest"
	"github.com/core-tools/hsu-deploy/pkg/registry"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	launcher       *processtest.FakeLauncher
	registry       *registry.Registry
	registryHandle *processtest.FakeHandle
	pfdHandle      *processtest.FakeHandle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	launcher := processtest.NewFakeLauncher()
	reg := registry.New()

	registryHandle := launch(t, launcher, process.NewLaunchSpec("registry", "0.0.0.0:5000", "/tmp/consensus-registry"))
	pfdHandle := launch(t, launcher, process.NewLaunchSpec("pfd", "0.0.0.0:5004", "0.0.0.0:5000", "4"))
	reg.Set(registry.ServiceRegistry, registryHandle)
	reg.Set(registry.ServiceFailureDetector, pfdHandle)

	return &fixture{
		launcher:       launcher,
		registry:       reg,
		registryHandle: registryHandle,
		pfdHandle:      pfdHandle,
	}
}

func launch(t *testing.T, launcher *processtest.FakeLauncher, spec process.LaunchSpec) *processtest.FakeHandle {
	t.Helper()
	handle, err := launcher.Launch(context.Background(), spec)
	require.NoError(t, err)
	return handle.(*processtest.FakeHandle)
}

func newTestLoop(t *testing.T, f *fixture, options LoopOptions) *Loop {
	t.Helper()
	if options.Interval == 0 {
		options.Interval = 2 * time.Second
	}
	loop, err := NewLoop(f.registry, f.launcher, options, logging.NewNopLogger())
	require.NoError(t, err)
	return loop
}

func TestIntervalFromHeartbeat(t *testing.T) {
	assert.Equal(t, 2*time.Second, IntervalFromHeartbeat(4*time.Second))
	assert.Equal(t, 500*time.Millisecond, IntervalFromHeartbeat(time.Second))
}

func TestNewLoop_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewLoop(nil, f.launcher, LoopOptions{Interval: time.Second}, logging.NewNopLogger())
	assert.True(t, domainerrors.IsValidationError(err))

	_, err = NewLoop(f.registry, nil, LoopOptions{Interval: time.Second}, logging.NewNopLogger())
	assert.True(t, domainerrors.IsValidationError(err))

	_, err = NewLoop(f.registry, f.launcher, LoopOptions{}, logging.NewNopLogger())
	assert.True(t, domainerrors.IsValidationError(err))
}

func TestTick_RunningServicesUntouched(t *testing.T) {
	f := newFixture(t)
	loop := newTestLoop(t, f, LoopOptions{})

	require.NoError(t, loop.Tick(context.Background()))

	assert.Len(t, f.launcher.Launched(), 2)
	got, _ := f.registry.Get(registry.ServiceRegistry)
	assert.Same(t, f.registryHandle, got)
}

func TestTick_RestartsOnAnyExitCode(t *testing.T) {
	for _, exitCode := range []int{0, 1, -1, 101} {
		f := newFixture(t)
		loop := newTestLoop(t, f, LoopOptions{})

		f.pfdHandle.Exit(exitCode)
		require.NoError(t, loop.Tick(context.Background()))

		current, ok := f.registry.Get(registry.ServiceFailureDetector)
		require.True(t, ok)
		assert.NotSame(t, f.pfdHandle, current, "exit code %d", exitCode)

		exited, _ := current.Exited()
		assert.False(t, exited)
		assert.Len(t, f.launcher.LaunchedNamed("pfd"), 2)
	}
}

func TestTick_RestartReproducesArguments(t *testing.T) {
	f := newFixture(t)
	loop := newTestLoop(t, f, LoopOptions{})

	f.registryHandle.Exit(1)
	require.NoError(t, loop.Tick(context.Background()))

	launches := f.launcher.LaunchedNamed("registry")
	require.Len(t, launches, 2)
	assert.True(t, launches[0].Spec().Equal(launches[1].Spec()))
	assert.Equal(t, []string{"0.0.0.0:5000", "/tmp/consensus-registry"}, launches[1].Spec().Args())
	assert.Equal(t, launches[0].Command(), launches[1].Command())
}

func TestTick_RegistryIsolation(t *testing.T) {
	f := newFixture(t)
	loop := newTestLoop(t, f, LoopOptions{})

	f.pfdHandle.Exit(137)
	require.NoError(t, loop.Tick(context.Background()))

	got, _ := f.registry.Get(registry.ServiceRegistry)
	assert.Same(t, f.registryHandle, got)
	assert.Len(t, f.launcher.LaunchedNamed("registry"), 1)
}

func TestTick_UnregisteredServicesIgnored(t *testing.T) {
	f := newFixture(t)
	agent := launch(t, f.launcher, process.NewLaunchSpec("agent", "0.0.0.0:5001", "0.0.0.0:5000"))
	loop := newTestLoop(t, f, LoopOptions{})

	agent.Exit(1)
	require.NoError(t, loop.Tick(context.Background()))

	assert.Len(t, f.launcher.LaunchedNamed("agent"), 1)
}

func TestTick_CrashLoopRestartsEveryTick(t *testing.T) {
	f := newFixture(t)
	loop := newTestLoop(t, f, LoopOptions{})

	for i := 0; i < 5; i++ {
		current, _ := f.registry.Get(registry.ServiceFailureDetector)
		current.(*processtest.FakeHandle).Exit(1)
		require.NoError(t, loop.Tick(context.Background()))
	}

	assert.Len(t, f.launcher.LaunchedNamed("pfd"), 6)
}

func TestTick_LaunchFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	loop := newTestLoop(t, f, LoopOptions{})

	f.launcher.FailOn("pfd", errors.New("no such file or directory"))
	f.pfdHandle.Exit(1)

	err := loop.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, domainerrors.IsProcessError(err))
	assert.True(t, domainerrors.IsLaunchError(err))

	got, _ := f.registry.Get(registry.ServiceFailureDetector)
	assert.Same(t, f.pfdHandle, got)
}

func TestTick_Metrics(t *testing.T) {
	f := newFixture(t)
	collector := metrics.NewPrometheusCollector("")
	loop := newTestLoop(t, f, LoopOptions{Metrics: collector})

	f.pfdHandle.Exit(0)
	require.NoError(t, loop.Tick(context.Background()))
	require.NoError(t, loop.Tick(context.Background()))

	expected := `
# HELP hsu_deploy_restarts_total Total number of supervised service restarts
# TYPE hsu_deploy_restarts_total counter
hsu_deploy_restarts_total{service="pfd"} 1
# HELP hsu_deploy_supervised_services Number of services tracked for restart
# TYPE hsu_deploy_supervised_services gauge
hsu_deploy_supervised_services 2
# HELP hsu_deploy_supervision_ticks_total Total number of supervision loop ticks
# TYPE hsu_deploy_supervision_ticks_total counter
hsu_deploy_supervision_ticks_total 2
`
	err := testutil.GatherAndCompare(collector.Registry(), stringsReader(expected),
		"hsu_deploy_restarts_total", "hsu_deploy_supervised_services", "hsu_deploy_supervision_ticks_total")
	assert.NoError(t, err)
}

func TestRun_SleepsHalfHeartbeatBetweenTicks(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps []time.Duration
	loop := newTestLoop(t, f, LoopOptions{
		Interval: IntervalFromHeartbeat(4 * time.Second),
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			if len(sleeps) == 2 {
				// crash between ticks
				f.pfdHandle.Exit(1)
			}
			if len(sleeps) == 5 {
				cancel()
			}
			return ctx.Err()
		},
	})

	err := loop.Run(ctx)
	assert.True(t, domainerrors.IsCancelledError(err))

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, sleeps)
	assert.Len(t, f.launcher.LaunchedNamed("pfd"), 2)
}

func TestRun_StopsOnLaunchFailure(t *testing.T) {
	f := newFixture(t)
	f.launcher.FailOn("registry", errors.New("binary removed"))
	f.registryHandle.Exit(1)

	loop := newTestLoop(t, f, LoopOptions{
		Sleep: func(ctx context.Context, d time.Duration) error {
			t.Fatal("loop must stop before sleeping")
			return nil
		},
	})

	err := loop.Run(context.Background())
	assert.True(t, domainerrors.IsLaunchError(err))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
