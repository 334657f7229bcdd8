package reactive

import (
	"reflect"
	"sync"
)

// subscription pairs a listener with the ID used to remove it.
type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Signal is an observable value container. Set and Update notify every
// subscriber with the new value when it differs from the old one.
type Signal[T any] struct {
	id uint64

	// value is the current signal value.
	value T

	// mu protects value and subs.
	mu sync.RWMutex

	// subs are the listeners subscribed to this signal, in subscription order.
	subs []subscription[T]

	// equal is the equality function used to determine if the value changed.
	// If nil, uses default equality checking.
	equal func(T, T) bool
}

// NewSignal creates a new signal with the given initial value.
func NewSignal[T any](initial T) *Signal[T] {
	return &Signal[T]{
		id:    nextID(),
		value: initial,
	}
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set updates the signal's value and notifies subscribers if the value
// changed. It reports whether a notification was sent.
func (s *Signal[T]) Set(value T) bool {
	return s.Update(func(T) T { return value })
}

// Update atomically reads and updates the signal's value.
// The function receives the current value and returns the new value.
func (s *Signal[T]) Update(fn func(T) T) bool {
	s.mu.Lock()
	oldValue := s.value
	newValue := fn(oldValue)
	if s.equals(oldValue, newValue) {
		s.mu.Unlock()
		return false
	}
	s.value = newValue
	subs := make([]subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	// Listeners run without the lock so they may read or set the signal.
	for _, sub := range subs {
		sub.fn(newValue)
	}
	return true
}

// Subscribe registers fn to be called with every new value. The returned
// function removes the subscription; calling it more than once is safe.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	id := nextID()

	s.mu.Lock()
	s.subs = append(s.subs, subscription[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Signal[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Signal[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// WithEquals returns the signal configured with a custom equality function.
// This is useful for custom types where reflect.DeepEqual is too expensive
// or has incorrect semantics.
func (s *Signal[T]) WithEquals(fn func(T, T) bool) *Signal[T] {
	s.mu.Lock()
	s.equal = fn
	s.mu.Unlock()
	return s
}

// ID returns the unique identifier for this signal.
func (s *Signal[T]) ID() uint64 {
	return s.id
}

func (s *Signal[T]) equals(a, b T) bool {
	if s.equal != nil {
		return s.equal(a, b)
	}
	return defaultEquals(a, b)
}

// defaultEquals uses == for common comparable types and
// reflect.DeepEqual for everything else.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int64:
		return av == any(b).(int64)
	case uint64:
		return av == any(b).(uint64)
	case float64:
		return av == any(b).(float64)
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	default:
		return reflect.DeepEqual(a, b)
	}
}

// NeverEqual is an equality function that treats every Set as a change.
func NeverEqual[T any](T, T) bool { return false }
