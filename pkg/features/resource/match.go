package resource

// Handler renders one kind of state in Match.
type Handler[T, R any] interface {
	handle(State[T]) (R, bool)
}

type handlerFunc[T, R any] func(State[T]) (R, bool)

func (f handlerFunc[T, R]) handle(s State[T]) (R, bool) { return f(s) }

// Match returns the result of the first handler that accepts s. The
// boolean is false when no handler matched.
//
//	text, _ := resource.Match(state,
//	    resource.OnRefetching[[]Todo](func(prev []Todo) string { return "refreshing" }),
//	    resource.OnLoading[[]Todo](func() string { return "loading" }),
//	    resource.OnError[[]Todo](func(err error) string { return err.Error() }),
//	    resource.OnSuccess(func(todos []Todo) string { return fmt.Sprint(len(todos)) }),
//	)
func Match[T, R any](s State[T], handlers ...Handler[T, R]) (R, bool) {
	for _, h := range handlers {
		if out, ok := h.handle(s); ok {
			return out, true
		}
	}
	var zero R
	return zero, false
}

// OnIdle handles the Idle state.
func OnIdle[T, R any](fn func() R) Handler[T, R] {
	return handlerFunc[T, R](func(s State[T]) (R, bool) {
		if s.Status != Idle {
			var zero R
			return zero, false
		}
		return fn(), true
	})
}

// OnLoading handles the Loading state, refetching or not.
func OnLoading[T, R any](fn func() R) Handler[T, R] {
	return handlerFunc[T, R](func(s State[T]) (R, bool) {
		if s.Status != Loading {
			var zero R
			return zero, false
		}
		return fn(), true
	})
}

// OnRefetching handles a Loading state entered by Refetch, passing the
// data still on display.
func OnRefetching[T, R any](fn func(prev T) R) Handler[T, R] {
	return handlerFunc[T, R](func(s State[T]) (R, bool) {
		if s.Status != Loading || !s.IsRefetching {
			var zero R
			return zero, false
		}
		return fn(s.Data), true
	})
}

// OnError handles the Error state.
func OnError[T, R any](fn func(error) R) Handler[T, R] {
	return handlerFunc[T, R](func(s State[T]) (R, bool) {
		if s.Status != Error {
			var zero R
			return zero, false
		}
		return fn(s.Err), true
	})
}

// OnSuccess handles the Success state.
func OnSuccess[T, R any](fn func(T) R) Handler[T, R] {
	return handlerFunc[T, R](func(s State[T]) (R, bool) {
		if s.Status != Success {
			var zero R
			return zero, false
		}
		return fn(s.Data), true
	})
}

// OnLoadingOrIdle handles both Loading and Idle states.
func OnLoadingOrIdle[T, R any](fn func() R) Handler[T, R] {
	return handlerFunc[T, R](func(s State[T]) (R, bool) {
		if s.Status != Loading && s.Status != Idle {
			var zero R
			return zero, false
		}
		return fn(), true
	})
}
