// Package reactive provides the observable value used to notify views of
// state changes.
//
// A Signal holds one value. Views subscribe with a callback and receive
// every new value; Set is a no-op when the new value equals the old one.
//
//	state := reactive.NewSignal(0)
//	stop := state.Subscribe(func(n int) { fmt.Println("now", n) })
//	defer stop()
//	state.Set(1) // prints "now 1"
//
// Listeners are called synchronously on the goroutine that called Set,
// after the signal's lock is released.
package reactive
