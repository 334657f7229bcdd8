package optimistic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/asyncstate/internal/errors"
	"github.com/vango-dev/asyncstate/pkg/reactive"
)

const (
	// DefaultTempIDPrefix prefixes generated temporary ids.
	DefaultTempIDPrefix = "tmp-"

	// DefaultTracerName is the tracer used when Config.Tracer is nil.
	DefaultTracerName = "asyncstate/optimistic"
)

// Hooks receives reconciliation events from a Set.
// Implementations must be safe for concurrent use.
type Hooks interface {
	Applied(kind Kind)
	Resolved(kind Kind)
	Rejected(kind Kind)
	UnknownTempID()
}

// Config configures a Set. The zero value is usable.
type Config struct {
	// TempIDPrefix prefixes generated temporary ids. Default: "tmp-".
	TempIDPrefix string

	// Logger receives debug and warning records. Default: slog.Default().
	Logger *slog.Logger

	// Hooks receives reconciliation events (metrics). Default: none.
	Hooks Hooks

	// Tracer starts one span per Mutate operation.
	// Default: otel.Tracer(DefaultTracerName).
	Tracer trace.Tracer
}

// Set overlays pending speculative entries on a confirmed base collection.
// Elements are identified by the key function given to NewSet.
type Set[T any, K comparable] struct {
	mu      sync.Mutex
	base    []T
	pending []pendingEntry[T]
	seq     uint64
	key     func(T) K

	// folded holds, per element key, the sequence of the latest entry
	// whose confirmed value is in base. Older pending entries for that
	// key no longer apply.
	folded map[K]uint64

	prefix string
	logger *slog.Logger
	hooks  Hooks
	tracer trace.Tracer

	signal *reactive.Signal[[]T]
	ops    sync.WaitGroup

	// delivering is set while publish notifies subscribers; dirty asks
	// it to deliver once more.
	delivering bool
	dirty      bool
}

// NewSet creates an empty Set whose elements are identified by key.
func NewSet[T any, K comparable](key func(T) K, cfg Config) *Set[T, K] {
	s := &Set[T, K]{
		key:    key,
		folded: make(map[K]uint64),
		prefix: cfg.TempIDPrefix,
		logger: cfg.Logger,
		hooks:  cfg.Hooks,
		tracer: cfg.Tracer,
		// Resolving can leave the view unchanged while pending shrinks.
		signal: reactive.NewSignal[[]T](nil).WithEquals(reactive.NeverEqual[[]T]),
	}
	if s.prefix == "" {
		s.prefix = DefaultTempIDPrefix
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "optimistic")
	if s.hooks == nil {
		s.hooks = noopHooks{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(DefaultTracerName)
	}
	return s
}

// Apply appends a pending entry and returns its temporary id. The merged
// view reflects the entry immediately.
func (s *Set[T, K]) Apply(payload T, kind Kind) TempID {
	s.mu.Lock()
	s.seq++
	id := TempID(fmt.Sprintf("%s%d", s.prefix, s.seq))
	s.pending = append(s.pending, pendingEntry[T]{
		Entry: Entry[T]{TempID: id, Payload: payload, Kind: kind},
		seq:   s.seq,
	})
	s.mu.Unlock()

	s.hooks.Applied(kind)
	s.publish()
	return id
}

// Resolve removes the pending entry id and folds confirmed into the base:
// Add and Update replace the element with the same key or append it,
// Remove deletes it. A confirmed value older than one already folded for
// the same element is dropped, so the later insertion wins whatever the
// resolution order. Unknown ids are ignored; the result reports whether
// the entry was found.
func (s *Set[T, K]) Resolve(id TempID, confirmed T) bool {
	s.mu.Lock()
	e, ok := s.take(id)
	if ok {
		k := s.key(confirmed)
		if s.folded[k] < e.seq {
			s.base = s.fold(s.base, e.Kind, confirmed, true)
			s.folded[k] = e.seq
		}
		s.prune()
	}
	s.mu.Unlock()

	if !ok {
		s.unknown("resolve", id)
		return false
	}
	s.hooks.Resolved(e.Kind)
	s.publish()
	return true
}

// Reject removes the pending entry id without touching the base, so the
// view reverts to the last confirmed state. Unknown ids are ignored.
func (s *Set[T, K]) Reject(id TempID) bool {
	s.mu.Lock()
	e, ok := s.take(id)
	if ok {
		s.prune()
	}
	s.mu.Unlock()

	if !ok {
		s.unknown("reject", id)
		return false
	}
	s.hooks.Rejected(e.Kind)
	s.publish()
	return true
}

func (s *Set[T, K]) unknown(op string, id TempID) {
	s.hooks.UnknownTempID()
	s.logger.Debug("unknown temp id ignored", "op", op, "temp_id", id, "code", errors.CodeUnknownTempID)
}

// take removes and returns the pending entry id. s.mu must be held.
func (s *Set[T, K]) take(id TempID) (pendingEntry[T], bool) {
	for i, e := range s.pending {
		if e.TempID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return e, true
		}
	}
	return pendingEntry[T]{}, false
}

// prune forgets folded sequences of keys no pending entry refers to.
// s.mu must be held.
func (s *Set[T, K]) prune() {
	if len(s.folded) == 0 {
		return
	}
	live := make(map[K]bool, len(s.pending))
	for _, e := range s.pending {
		live[s.key(e.Payload)] = true
	}
	for k := range s.folded {
		if !live[k] {
			delete(s.folded, k)
		}
	}
}

// MergedView returns the base with every pending entry applied in
// insertion order. It is computed on each call and never mutates the set.
func (s *Set[T, K]) MergedView() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merged()
}

func (s *Set[T, K]) merged() []T {
	view := make([]T, len(s.base), len(s.base)+len(s.pending))
	copy(view, s.base)
	for _, e := range s.pending {
		if s.folded[s.key(e.Payload)] > e.seq {
			continue
		}
		view = s.fold(view, e.Kind, e.Payload, false)
	}
	return view
}

// fold applies one change to items. Updates of missing elements are
// appended only when appendMissing is set (confirmed values).
func (s *Set[T, K]) fold(items []T, kind Kind, item T, appendMissing bool) []T {
	id := s.key(item)
	idx := -1
	for i := range items {
		if s.key(items[i]) == id {
			idx = i
			break
		}
	}

	switch kind {
	case KindAdd:
		if idx >= 0 {
			items[idx] = item
			return items
		}
		return append(items, item)
	case KindUpdate:
		if idx >= 0 {
			items[idx] = item
			return items
		}
		if appendMissing {
			return append(items, item)
		}
	case KindRemove:
		if idx >= 0 {
			return append(items[:idx], items[idx+1:]...)
		}
	}
	return items
}

// Base returns a copy of the confirmed collection.
func (s *Set[T, K]) Base() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.base))
	copy(out, s.base)
	return out
}

// SetBase replaces the confirmed collection, e.g. after a fetch. Pending
// entries are kept and stay applied on top of the new base.
func (s *Set[T, K]) SetBase(items []T) {
	base := make([]T, len(items))
	copy(base, items)

	s.mu.Lock()
	s.base = base
	s.mu.Unlock()

	s.publish()
}

// Pending returns a copy of the pending entries in insertion order.
func (s *Set[T, K]) Pending() []Entry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry[T], len(s.pending))
	for i, e := range s.pending {
		out[i] = e.Entry
	}
	return out
}

// Subscribe registers fn to receive the merged view after every change.
func (s *Set[T, K]) Subscribe(fn func([]T)) (cancel func()) {
	return s.signal.Subscribe(fn)
}

// Mutate applies payload speculatively and runs op on its own goroutine.
// The entry is resolved with op's result, or rejected when op fails.
// Mutate returns at once with the entry's temporary id.
func (s *Set[T, K]) Mutate(ctx context.Context, payload T, kind Kind, op func(ctx context.Context) (T, error)) TempID {
	id := s.Apply(payload, kind)

	s.ops.Add(1)
	go func() {
		defer s.ops.Done()

		ctx, span := s.tracer.Start(ctx, "optimistic.mutate",
			trace.WithAttributes(
				attribute.String("optimistic.kind", kind.String()),
				attribute.String("optimistic.temp_id", string(id)),
			))
		defer span.End()

		confirmed, err := runOp(ctx, op)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn("optimistic change rolled back",
				"kind", kind,
				"temp_id", id,
				"code", errors.CodeMutationFailure,
				"error", err,
			)
			s.Reject(id)
			return
		}
		span.SetStatus(codes.Ok, "")
		s.Resolve(id, confirmed)
	}()
	return id
}

func runOp[T any](ctx context.Context, op func(context.Context) (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx)
}

// Wait blocks until every operation started by Mutate has finished or
// ctx is done.
func (s *Set[T, K]) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.ops.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish delivers the current merged view to subscribers. Deliveries
// never overlap: a publish during a delivery marks the set dirty and the
// running delivery sends the latest view again.
func (s *Set[T, K]) publish() {
	s.mu.Lock()
	if s.delivering {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.delivering = true
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
			panic(r)
		}
	}()
	for {
		s.dirty = false
		view := s.merged()
		s.mu.Unlock()

		s.signal.Set(view)

		s.mu.Lock()
		if !s.dirty {
			s.delivering = false
			s.mu.Unlock()
			return
		}
	}
}

type noopHooks struct{}

func (noopHooks) Applied(Kind)   {}
func (noopHooks) Resolved(Kind)  {}
func (noopHooks) Rejected(Kind)  {}
func (noopHooks) UnknownTempID() {}
