package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/pkg/features/optimistic"
	"github.com/vango-dev/asyncstate/pkg/features/resource"
)

// Config configures a Collector.
type Config struct {
	// Namespace is the metrics namespace (default: "asyncstate").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for fetch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry registers the metrics and serves them from Handler.
	// Default: a fresh prometheus.Registry.
	Registry *prometheus.Registry
}

// Option configures a Collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the fetch duration histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "asyncstate",
		Buckets:   prometheus.DefBuckets,
	}
}

// Collector holds the Prometheus metrics for trackers and optimistic sets.
//
// Metrics collected:
//   - asyncstate_fetches_total: fetches started, by resource and mode
//   - asyncstate_fetches_suppressed_total: fetch requests suppressed while in flight
//   - asyncstate_fetch_duration_seconds: producer run time, by resource
//   - asyncstate_fetch_errors_total: failed fetches, by resource and error code
//   - asyncstate_results_discarded_total: results dropped after reset or abandonment
//   - asyncstate_fetches_in_flight: fetches currently running
//   - asyncstate_optimistic_entries_total: entries by set, kind and outcome
//   - asyncstate_optimistic_pending: pending entries, by set
//   - asyncstate_optimistic_unknown_total: resolve or reject calls with unknown temp ids
type Collector struct {
	registry *prometheus.Registry

	fetchesTotal     *prometheus.CounterVec
	fetchSuppressed  *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	fetchErrors      *prometheus.CounterVec
	resultsDiscarded *prometheus.CounterVec
	inFlight         *prometheus.GaugeVec

	entriesTotal *prometheus.CounterVec
	pending      *prometheus.GaugeVec
	unknownTotal *prometheus.CounterVec
}

// New creates a Collector and registers its metrics.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		registry: config.Registry,

		fetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetches_total",
			Help:        "Total number of fetches started",
			ConstLabels: config.ConstLabels,
		}, []string{"resource", "mode"}),

		fetchSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetches_suppressed_total",
			Help:        "Fetch requests ignored because a fetch for the key was in flight",
			ConstLabels: config.ConstLabels,
		}, []string{"resource"}),

		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetch_duration_seconds",
			Help:        "Producer run time in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"resource"}),

		fetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetch_errors_total",
			Help:        "Total number of failed fetches",
			ConstLabels: config.ConstLabels,
		}, []string{"resource", "code"}),

		resultsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "results_discarded_total",
			Help:        "Fetch results dropped because the key was reset or abandoned",
			ConstLabels: config.ConstLabels,
		}, []string{"resource"}),

		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetches_in_flight",
			Help:        "Number of fetches currently running",
			ConstLabels: config.ConstLabels,
		}, []string{"resource"}),

		entriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "optimistic_entries_total",
			Help:        "Optimistic entries by kind and outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"set", "kind", "outcome"}),

		pending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "optimistic_pending",
			Help:        "Number of pending optimistic entries",
			ConstLabels: config.ConstLabels,
		}, []string{"set"}),

		unknownTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "optimistic_unknown_total",
			Help:        "Resolve or reject calls for unknown temporary ids",
			ConstLabels: config.ConstLabels,
		}, []string{"set"}),
	}
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Resource returns tracker hooks that label every metric with name.
func (c *Collector) Resource(name string) resource.Hooks {
	return resourceHooks{c: c, name: name}
}

// Optimistic returns set hooks that label every metric with name.
func (c *Collector) Optimistic(name string) optimistic.Hooks {
	return optimisticHooks{c: c, name: name}
}

type resourceHooks struct {
	c    *Collector
	name string
}

func (h resourceHooks) FetchStarted(_ string, refetch bool) {
	mode := "fetch"
	if refetch {
		mode = "refetch"
	}
	h.c.fetchesTotal.WithLabelValues(h.name, mode).Inc()
	h.c.inFlight.WithLabelValues(h.name).Inc()
}

func (h resourceHooks) FetchSuppressed(string) {
	h.c.fetchSuppressed.WithLabelValues(h.name).Inc()
}

func (h resourceHooks) FetchFinished(_ string, _ bool, err error, elapsed time.Duration) {
	h.c.inFlight.WithLabelValues(h.name).Dec()
	h.c.fetchDuration.WithLabelValues(h.name).Observe(elapsed.Seconds())
	if err != nil {
		h.c.fetchErrors.WithLabelValues(h.name, errorCode(err)).Inc()
	}
}

func (h resourceHooks) ResultDiscarded(string) {
	h.c.resultsDiscarded.WithLabelValues(h.name).Inc()
}

// errorCode returns a low-cardinality label for err.
func errorCode(err error) string {
	if code := errors.Code(err); code != "" {
		return code
	}
	return errors.CodeProducerFailure
}

type optimisticHooks struct {
	c    *Collector
	name string
}

func (h optimisticHooks) Applied(kind optimistic.Kind) {
	h.c.entriesTotal.WithLabelValues(h.name, kind.String(), "applied").Inc()
	h.c.pending.WithLabelValues(h.name).Inc()
}

func (h optimisticHooks) Resolved(kind optimistic.Kind) {
	h.c.entriesTotal.WithLabelValues(h.name, kind.String(), "resolved").Inc()
	h.c.pending.WithLabelValues(h.name).Dec()
}

func (h optimisticHooks) Rejected(kind optimistic.Kind) {
	h.c.entriesTotal.WithLabelValues(h.name, kind.String(), "rejected").Inc()
	h.c.pending.WithLabelValues(h.name).Dec()
}

func (h optimisticHooks) UnknownTempID() {
	h.c.unknownTotal.WithLabelValues(h.name).Inc()
}
