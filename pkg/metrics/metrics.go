package metrics

import (
	"time"
)

// Collector receives supervision events
type Collector interface {
	// ServiceLaunched records a launch of program, initial or restart
	ServiceLaunched(program string)

	// ServiceExited records that a supervised service was seen terminated
	ServiceExited(service string, exitCode int)

	// ServiceRestarted records a successful restart of a supervised service
	ServiceRestarted(service string)

	// RestartDeferred records a restart postponed by the backoff policy
	RestartDeferred(service string)

	// SupervisionTick records one pass over the registry
	SupervisionTick(duration time.Duration)

	// SupervisedServices records how many services are tracked for restart
	SupervisedServices(count int)
}

type noopCollector struct{}

func (n *noopCollector) ServiceLaunched(program string)             {}
func (n *noopCollector) ServiceExited(service string, exitCode int) {}
func (n *noopCollector) ServiceRestarted(service string)            {}
func (n *noopCollector) RestartDeferred(service string)             {}
func (n *noopCollector) SupervisionTick(duration time.Duration)     {}
func (n *noopCollector) SupervisedServices(count int)               {}

func NewNoopCollector() Collector {
	return &noopCollector{}
}
