// Package optimistic shows the effect of a change before its real result
// is known, then reconciles.
//
// A Set holds a confirmed base collection and an ordered list of pending
// speculative entries. The merged view is the base with each pending
// entry applied in insertion order; it is recomputed on every read.
//
// # How It Works
//
//  1. The view calls Apply (or Mutate) before the real operation starts
//     and renders MergedView immediately.
//  2. When the operation succeeds, Resolve folds the confirmed value into
//     the base and drops the pending entry.
//  3. When it fails, Reject drops the pending entry; the base is untouched
//     and the view reverts to the last confirmed state.
//
// Entries may resolve out of order. Two entries for the same element are
// applied in insertion order, so the later one wins in the merged view.
// Resolving or rejecting an unknown temporary id is a no-op, which makes
// reconciliation safe under duplicate delivery.
//
// # Example Usage
//
//	todos := optimistic.NewSet(func(t Todo) int64 { return t.ID }, optimistic.Config{})
//	todos.SetBase(fetched)
//
//	todos.Mutate(ctx, Todo{ID: -1, Title: "draft"}, optimistic.KindAdd,
//	    func(ctx context.Context) (Todo, error) {
//	        return store.Create(ctx, Todo{Title: "draft"})
//	    })
//
//	render(todos.MergedView()) // includes the draft right away
package optimistic
