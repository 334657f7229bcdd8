// Package metrics exports Prometheus metrics for request trackers and
// optimistic sets.
//
// A Collector owns a registry. Trackers and sets report to it through
// hooks, one labelled hook value per named tracker or set:
//
//	m := metrics.New(metrics.WithNamespace("todos"))
//
//	tracker := resource.NewTracker[[]Todo](resource.Config{
//	    Hooks: m.Resource("todos"),
//	})
//	set := optimistic.NewSet(keyOf, optimistic.Config{
//	    Hooks: m.Optimistic("todos"),
//	})
//
//	mux.Handle("/metrics", m.Handler())
//
// Keys are never used as labels.
package metrics
