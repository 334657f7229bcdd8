// Package asyncstate provides the public API for tracking asynchronous
// requests and applying optimistic changes.
//
// This is the recommended import for most applications:
//
//	import "github.com/vango-dev/asyncstate"
//
// Usage:
//
//	client := asyncstate.New(asyncstate.Options{Logger: logger})
//
//	todos := asyncstate.NewTracker[[]Todo](client, "todos")
//	state := todos.Fetch("todos", func(ctx context.Context) ([]Todo, error) {
//	    return store.List(ctx)
//	})
//
//	drafts := asyncstate.NewSet(client, "todos", func(t Todo) int64 { return t.ID })
//	drafts.Mutate(ctx, Todo{ID: -1, Title: "new"}, asyncstate.KindAdd, create)
package asyncstate

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/asyncstate/pkg/features/optimistic"
	"github.com/vango-dev/asyncstate/pkg/features/resource"
	"github.com/vango-dev/asyncstate/pkg/metrics"
)

// =============================================================================
// Client
// =============================================================================

// Options configures a Client. The zero value is usable.
type Options struct {
	// Logger receives records from every tracker and set. Default: slog.Default().
	Logger *slog.Logger

	// Metrics, when set, receives events from every tracker and set,
	// labelled with the name given to NewTracker or NewSet.
	Metrics *metrics.Collector

	// TracerProvider supplies the tracers for fetch and mutate spans.
	// Default: the global otel provider.
	TracerProvider trace.TracerProvider

	// StaleTime is the default stale time of new trackers.
	StaleTime time.Duration

	// TempIDPrefix prefixes temporary ids of new sets. Default: "tmp-".
	TempIDPrefix string
}

// Client holds the shared settings used to build trackers and sets.
// Unlike a process-wide singleton, any number of clients can coexist.
type Client struct {
	opts Options
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{opts: opts}
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.opts.Logger
}

// Metrics returns the client's collector, or nil.
func (c *Client) Metrics() *metrics.Collector {
	return c.opts.Metrics
}

// TracerProvider returns the configured provider, or the global one.
func (c *Client) TracerProvider() trace.TracerProvider {
	if c.opts.TracerProvider != nil {
		return c.opts.TracerProvider
	}
	return otel.GetTracerProvider()
}

// NewTracker creates a Tracker configured from c. name labels its logs
// and metrics.
func NewTracker[T any](c *Client, name string) *resource.Tracker[T] {
	cfg := resource.Config{
		StaleTime: c.opts.StaleTime,
		Logger:    c.opts.Logger.With("resource", name),
	}
	if c.opts.Metrics != nil {
		cfg.Hooks = c.opts.Metrics.Resource(name)
	}
	if c.opts.TracerProvider != nil {
		cfg.Tracer = c.opts.TracerProvider.Tracer(resource.DefaultTracerName)
	}
	return resource.NewTracker[T](cfg)
}

// NewSet creates an optimistic Set configured from c. name labels its
// logs and metrics; key identifies elements.
func NewSet[T any, K comparable](c *Client, name string, key func(T) K) *optimistic.Set[T, K] {
	cfg := optimistic.Config{
		TempIDPrefix: c.opts.TempIDPrefix,
		Logger:       c.opts.Logger.With("set", name),
	}
	if c.opts.Metrics != nil {
		cfg.Hooks = c.opts.Metrics.Optimistic(name)
	}
	if c.opts.TracerProvider != nil {
		cfg.Tracer = c.opts.TracerProvider.Tracer(optimistic.DefaultTracerName)
	}
	return optimistic.NewSet(key, cfg)
}

// =============================================================================
// Request Tracker
// =============================================================================

// Tracker tracks keyed asynchronous requests.
type Tracker[T any] = resource.Tracker[T]

// State is the snapshot of one key's request.
type State[T any] = resource.State[T]

// Producer performs one request.
type Producer[T any] = resource.Producer[T]

// Status is the lifecycle phase of a request.
type Status = resource.Status

// Status constants.
const (
	Idle    = resource.Idle    // Never fetched, or reset
	Loading = resource.Loading // Fetch in progress
	Success = resource.Success // Last fetch succeeded
	Error   = resource.Error   // Last fetch failed
)

// Handler handles one status in Match.
type Handler[T, R any] = resource.Handler[T, R]

// Match calls the first handler that accepts s.
func Match[T, R any](s State[T], handlers ...Handler[T, R]) (R, bool) {
	return resource.Match(s, handlers...)
}

// OnIdle handles the Idle status.
func OnIdle[T, R any](fn func() R) Handler[T, R] { return resource.OnIdle[T](fn) }

// OnLoading handles the Loading status, refetching or not.
func OnLoading[T, R any](fn func() R) Handler[T, R] { return resource.OnLoading[T](fn) }

// OnRefetching handles a reload that keeps the previous data visible.
func OnRefetching[T, R any](fn func(prev T) R) Handler[T, R] {
	return resource.OnRefetching[T](fn)
}

// OnError handles the Error status.
func OnError[T, R any](fn func(error) R) Handler[T, R] { return resource.OnError[T](fn) }

// OnSuccess handles the Success status.
func OnSuccess[T, R any](fn func(T) R) Handler[T, R] { return resource.OnSuccess(fn) }

// OnLoadingOrIdle handles both waiting statuses.
func OnLoadingOrIdle[T, R any](fn func() R) Handler[T, R] {
	return resource.OnLoadingOrIdle[T](fn)
}

// =============================================================================
// Optimistic Mutations
// =============================================================================

// Set overlays pending speculative entries on a confirmed collection.
type Set[T any, K comparable] = optimistic.Set[T, K]

// Kind is the type of a speculative change.
type Kind = optimistic.Kind

// Kind constants.
const (
	KindAdd    = optimistic.KindAdd
	KindUpdate = optimistic.KindUpdate
	KindRemove = optimistic.KindRemove
)

// TempID identifies a pending entry.
type TempID = optimistic.TempID

// Entry is one pending speculative change.
type Entry[T any] = optimistic.Entry[T]
