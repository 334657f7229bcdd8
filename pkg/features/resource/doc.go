// Package resource tracks asynchronous reads by key.
//
// A Tracker runs at most one producer per key at a time and exposes the
// key's lifecycle as a State:
//
//	Idle -> Loading -> Success | Error
//	Success | Error -> Loading (refetch, previous data kept) -> Success | Error
//
// A second Fetch while one is in flight attaches to the running fetch and
// returns its state. Producers run on their own goroutine; callers that
// need the result block in Wait, views subscribe instead.
//
// Basic usage:
//
//	todos := resource.NewTracker[[]Todo](resource.Config{})
//	stop := todos.Subscribe("todos", func(s resource.State[[]Todo]) { render(s) })
//	defer stop()
//
//	todos.Fetch("todos", func(ctx context.Context) ([]Todo, error) {
//	    return store.List(ctx)
//	})
//
// Failures are never retried automatically and never panic across the
// API: they land in State.Err and the caller decides whether to Refetch.
package resource
