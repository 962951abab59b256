package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "hsu_deploy"

// PrometheusCollector implements Collector on a private Prometheus registry
type PrometheusCollector struct {
	launches     *prometheus.CounterVec
	exits        *prometheus.CounterVec
	restarts     *prometheus.CounterVec
	deferred     *prometheus.CounterVec
	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	supervised   prometheus.Gauge

	registry *prometheus.Registry
}

func NewPrometheusCollector(namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	pc := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
	}

	pc.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Total number of service process launches, including restarts",
		},
		[]string{"program"},
	)

	pc.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_total",
			Help:      "Total number of observed supervised service exits",
		},
		[]string{"service", "exit_code"},
	)

	pc.restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Total number of supervised service restarts",
		},
		[]string{"service"},
	)

	pc.deferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_deferred_total",
			Help:      "Total number of restarts postponed by the backoff policy",
		},
		[]string{"service"},
	)

	pc.ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervision_ticks_total",
			Help:      "Total number of supervision loop ticks",
		},
	)

	pc.tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "supervision_tick_duration_seconds",
			Help:      "Time spent checking and restarting services in one tick",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	pc.supervised = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "supervised_services",
			Help:      "Number of services tracked for restart",
		},
	)

	pc.registry.MustRegister(
		pc.launches,
		pc.exits,
		pc.restarts,
		pc.deferred,
		pc.ticks,
		pc.tickDuration,
		pc.supervised,
	)

	return pc
}

func (pc *PrometheusCollector) ServiceLaunched(program string) {
	pc.launches.WithLabelValues(program).Inc()
}

func (pc *PrometheusCollector) ServiceExited(service string, exitCode int) {
	pc.exits.WithLabelValues(service, strconv.Itoa(exitCode)).Inc()
}

func (pc *PrometheusCollector) ServiceRestarted(service string) {
	pc.restarts.WithLabelValues(service).Inc()
}

func (pc *PrometheusCollector) RestartDeferred(service string) {
	pc.deferred.WithLabelValues(service).Inc()
}

func (pc *PrometheusCollector) SupervisionTick(duration time.Duration) {
	pc.ticks.Inc()
	pc.tickDuration.Observe(duration.Seconds())
}

func (pc *PrometheusCollector) SupervisedServices(count int) {
	pc.supervised.Set(float64(count))
}

// Registry exposes the underlying registry, mainly for tests
func (pc *PrometheusCollector) Registry() *prometheus.Registry {
	return pc.registry
}

// Handler serves the collected metrics in the Prometheus text format
func (pc *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}
