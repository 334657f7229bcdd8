package resource

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/pkg/reactive"
)

// DefaultTracerName is the tracer used when Config.Tracer is nil.
const DefaultTracerName = "asyncstate/resource"

// Producer loads the value for a key. It runs on its own goroutine.
type Producer[T any] func(ctx context.Context) (T, error)

// Hooks receives lifecycle events from a Tracker. FetchFinished is called
// for every producer run, ResultDiscarded in addition when the result is
// dropped. Implementations must be safe for concurrent use.
type Hooks interface {
	FetchStarted(key string, refetch bool)
	FetchSuppressed(key string)
	FetchFinished(key string, refetch bool, err error, elapsed time.Duration)
	ResultDiscarded(key string)
}

// Config configures a Tracker. The zero value is usable.
type Config struct {
	// StaleTime is how long a Success state is served by Fetch without
	// calling the producer again. Zero means every Fetch calls it.
	StaleTime time.Duration

	// Logger receives debug and warning records. Default: slog.Default().
	Logger *slog.Logger

	// Hooks receives lifecycle events (metrics). Default: none.
	Hooks Hooks

	// Tracer starts one span per producer run.
	// Default: otel.Tracer(DefaultTracerName).
	Tracer trace.Tracer

	// BaseContext returns the context producers run under.
	// Default: context.Background. It is never cancelled by Reset or by
	// observers going away; only the state update is suppressed.
	BaseContext func() context.Context
}

// entry is the tracked state of one key.
type entry[T any] struct {
	// current is the authoritative state; signal converges to it.
	current  State[T]
	signal   *reactive.Signal[State[T]]
	producer Producer[T]

	inflight  bool
	gen       uint64
	observers int

	// delivering is set while publish notifies observers; dirty asks it
	// to deliver once more.
	delivering bool
	dirty      bool

	// done is closed when the in-flight run ends or is invalidated.
	done chan struct{}
}

// Tracker runs at most one producer per key at a time and exposes each
// key's lifecycle as a State.
type Tracker[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	gen     uint64

	staleTime   time.Duration
	onSuccess   func(key string, data T)
	onError     func(key string, err error)
	logger      *slog.Logger
	hooks       Hooks
	tracer      trace.Tracer
	baseContext func() context.Context
}

// NewTracker creates a Tracker with the given configuration.
func NewTracker[T any](cfg Config) *Tracker[T] {
	t := &Tracker[T]{
		entries:     make(map[string]*entry[T]),
		staleTime:   cfg.StaleTime,
		logger:      cfg.Logger,
		hooks:       cfg.Hooks,
		tracer:      cfg.Tracer,
		baseContext: cfg.BaseContext,
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "resource")
	if t.hooks == nil {
		t.hooks = noopHooks{}
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(DefaultTracerName)
	}
	if t.baseContext == nil {
		t.baseContext = context.Background
	}
	return t
}

// Fetch starts producer for key unless a fetch for key is already in
// flight, in which case the in-flight state is returned and producer is
// not called. A fresh fetch clears the previous data and error.
//
// Fetch never blocks on the producer: it returns the Loading state and
// observers are notified when the result lands.
func (t *Tracker[T]) Fetch(key string, producer Producer[T]) State[T] {
	return t.start(key, producer, false)
}

// Refetch re-runs the producer remembered from the last Fetch of key,
// keeping the previous data and error visible while IsRefetching is set.
// A key that was never fetched stays Idle.
func (t *Tracker[T]) Refetch(key string) State[T] {
	return t.start(key, nil, true)
}

func (t *Tracker[T]) start(key string, producer Producer[T], refetch bool) State[T] {
	t.mu.Lock()
	e := t.entries[key]
	if e == nil && refetch {
		t.mu.Unlock()
		t.logger.Debug("refetch ignored", "key", key, "code", errors.CodeNoProducer)
		return State[T]{}
	}
	if e == nil {
		e = t.newEntry()
		t.entries[key] = e
	}

	if e.inflight {
		current := e.current
		t.mu.Unlock()
		t.hooks.FetchSuppressed(key)
		t.logger.Debug("fetch suppressed", "key", key, "code", errors.CodeFetchSuppressed)
		return current
	}

	if producer == nil {
		producer = e.producer
	}
	if producer == nil {
		current := e.current
		t.mu.Unlock()
		t.logger.Debug("fetch ignored", "key", key, "code", errors.CodeNoProducer)
		return current
	}

	if !refetch && t.staleTime > 0 && e.current.Status == Success &&
		time.Since(e.current.UpdatedAt) < t.staleTime {
		current := e.current
		t.mu.Unlock()
		return current
	}

	t.gen++
	gen := t.gen
	done := make(chan struct{})

	e.producer = producer
	e.current = e.current.loading(refetch)
	e.inflight = true
	e.gen = gen
	e.done = done
	next := e.current
	t.mu.Unlock()

	t.hooks.FetchStarted(key, refetch)
	t.publish(e)

	go t.run(key, e, gen, producer, refetch, done)
	return next
}

func (t *Tracker[T]) run(key string, e *entry[T], gen uint64, producer Producer[T], refetch bool, done chan struct{}) {
	ctx, span := t.tracer.Start(t.baseContext(), "resource.fetch",
		trace.WithAttributes(
			attribute.String("resource.key", key),
			attribute.Bool("resource.refetch", refetch),
		))

	started := time.Now()
	data, err := call(ctx, producer)
	elapsed := time.Since(started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	t.hooks.FetchFinished(key, refetch, err, elapsed)

	t.mu.Lock()
	if t.entries[key] != e || e.gen != gen {
		t.mu.Unlock()
		t.hooks.ResultDiscarded(key)
		t.logger.Debug("fetch result discarded", "key", key, "code", errors.CodeResultDiscarded)
		return
	}
	e.current = e.current.settled(data, err, refetch, time.Now())
	e.inflight = false
	e.done = nil
	onSuccess, onError := t.onSuccess, t.onError
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("fetch failed",
			"key", key,
			"refetch", refetch,
			"code", errors.CodeProducerFailure,
			"error", err,
			"elapsed", elapsed,
		)
	} else {
		t.logger.Debug("fetch succeeded", "key", key, "refetch", refetch, "elapsed", elapsed)
	}

	t.publish(e)

	if err != nil && onError != nil {
		onError(key, err)
	}
	if err == nil && onSuccess != nil {
		onSuccess(key, data)
	}
	close(done)
}

// call runs producer, turning a panic into an error.
func call[T any](ctx context.Context, producer Producer[T]) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panicked: %v", r)
		}
	}()
	return producer(ctx)
}

// Reset discards all state for key and returns it to Idle. A fetch in
// flight keeps running but its result is discarded.
func (t *Tracker[T]) Reset(key string) {
	t.mu.Lock()
	e := t.entries[key]
	if e == nil {
		t.mu.Unlock()
		return
	}
	done := t.invalidate(e)
	e.producer = nil
	e.current = State[T]{}
	if e.observers == 0 {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if done != nil {
		close(done)
	}
	t.publish(e)
}

// invalidate makes any in-flight run of e stale and hands back the done
// channel the caller must close. t.mu must be held.
func (t *Tracker[T]) invalidate(e *entry[T]) chan struct{} {
	t.gen++
	e.gen = t.gen
	e.inflight = false
	done := e.done
	e.done = nil
	return done
}

// State returns the current state of key (Idle when unknown).
func (t *Tracker[T]) State(key string) State[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.entries[key]; e != nil {
		return e.current
	}
	return State[T]{}
}

// InFlight reports whether a fetch for key is running.
func (t *Tracker[T]) InFlight(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[key]
	return e != nil && e.inflight
}

// Subscribe registers fn to receive every new state of key. Subscribing
// to an unknown key tracks it as Idle.
//
// When the last observer of a key cancels while a fetch is in flight, the
// key is abandoned: its state is dropped and the late result discarded.
func (t *Tracker[T]) Subscribe(key string, fn func(State[T])) (cancel func()) {
	t.mu.Lock()
	e := t.entries[key]
	if e == nil {
		e = t.newEntry()
		t.entries[key] = e
	}
	e.observers++
	t.mu.Unlock()

	unsubscribe := e.signal.Subscribe(fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			t.release(key, e)
		})
	}
}

func (t *Tracker[T]) release(key string, e *entry[T]) {
	t.mu.Lock()
	e.observers--
	if e.observers > 0 || t.entries[key] != e || !e.inflight {
		t.mu.Unlock()
		return
	}
	done := t.invalidate(e)
	delete(t.entries, key)
	t.mu.Unlock()

	t.logger.Debug("key abandoned while fetching", "key", key)
	if done != nil {
		close(done)
	}
}

// Wait blocks until no fetch for key is in flight or ctx is done, then
// returns the state of key.
func (t *Tracker[T]) Wait(ctx context.Context, key string) (State[T], error) {
	t.mu.Lock()
	var done chan struct{}
	if e := t.entries[key]; e != nil {
		done = e.done
	}
	t.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return t.State(key), ctx.Err()
		}
	}
	return t.State(key), nil
}

// Keys returns the tracked keys in sorted order.
func (t *Tracker[T]) Keys() []string {
	t.mu.Lock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	t.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (t *Tracker[T]) newEntry() *entry[T] {
	return &entry[T]{signal: reactive.NewSignal(State[T]{})}
}

// publish delivers e.current to e's observers. Deliveries for one entry
// never overlap: a publish that arrives during a delivery, including one
// made by an observer, marks the entry dirty and the running delivery
// sends the latest state again. Observers always end on e.current.
func (t *Tracker[T]) publish(e *entry[T]) {
	t.mu.Lock()
	if e.delivering {
		e.dirty = true
		t.mu.Unlock()
		return
	}
	e.delivering = true
	defer func() {
		// An observer panicked while t.mu was released.
		if r := recover(); r != nil {
			t.mu.Lock()
			e.delivering = false
			t.mu.Unlock()
			panic(r)
		}
	}()
	for {
		e.dirty = false
		st := e.current
		t.mu.Unlock()

		e.signal.Set(st)

		t.mu.Lock()
		if !e.dirty {
			e.delivering = false
			t.mu.Unlock()
			return
		}
	}
}

type noopHooks struct{}

func (noopHooks) FetchStarted(string, bool)                        {}
func (noopHooks) FetchSuppressed(string)                           {}
func (noopHooks) FetchFinished(string, bool, error, time.Duration) {}
func (noopHooks) ResultDiscarded(string)                           {}
