// Package workerpool runs blocking calls on a fixed set of goroutines.
//
// The pool size is the admission control for retrieval and upload work:
// submissions beyond the number of workers wait in a FIFO queue instead of
// spawning more goroutines. Submit never blocks the caller; results come back
// through a typed Future.
package workerpool
