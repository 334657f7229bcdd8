package resource

import "time"

// StaleTime sets the duration a Success state is served by Fetch without
// calling the producer again.
func (t *Tracker[T]) StaleTime(d time.Duration) *Tracker[T] {
	t.mu.Lock()
	t.staleTime = d
	t.mu.Unlock()
	return t
}

// OnSuccess registers a callback called after a fetch succeeds.
func (t *Tracker[T]) OnSuccess(fn func(key string, data T)) *Tracker[T] {
	t.mu.Lock()
	t.onSuccess = fn
	t.mu.Unlock()
	return t
}

// OnError registers a callback called after a fetch fails.
func (t *Tracker[T]) OnError(fn func(key string, err error)) *Tracker[T] {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
	return t
}
