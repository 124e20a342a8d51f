package executor

import (
	"time"
)

// OnTimeout returns a future that completes with the result of fut, or, if
// timer fires first, with the result of onTimeout. fut is polled before the
// timer, so a future that is ready at the deadline wins. The timer is
// cancelled once fut completes.
func OnTimeout[T any](fut Future[T], timer *Timer, onTimeout func() T) Future[T] {
	var (
		value T
		done  bool
	)
	return FutureFunc[T](func(cx *Context) (T, bool) {
		if done {
			return value, true
		}
		if v, ok := fut.Poll(cx); ok {
			timer.Cancel()
			value, done = v, true
			return value, true
		}
		if _, ok := timer.Poll(cx); ok {
			value, done = onTimeout(), true
			return value, true
		}
		var zero T
		return zero, false
	})
}

// TimeoutResult is the result of a future raced against a deadline by
// [Timeout].
type TimeoutResult[T any] struct {
	Value    T
	TimedOut bool
}

// Timeout races fut against a monotonic timer firing d from now.
func Timeout[T any](h *EHandle, d time.Duration, fut Future[T]) Future[TimeoutResult[T]] {
	return OnTimeout(
		FutureFunc[TimeoutResult[T]](func(cx *Context) (TimeoutResult[T], bool) {
			v, ok := fut.Poll(cx)
			return TimeoutResult[T]{Value: v}, ok
		}),
		After(h, d),
		func() TimeoutResult[T] { return TimeoutResult[T]{TimedOut: true} },
	)
}

// JoinAll returns a future that completes once every one of futs completed,
// with their results in order. Incomplete futures are polled in order, on
// every poll.
func JoinAll[T any](futs ...Future[T]) Future[[]T] {
	results := make([]T, len(futs))
	pending := make([]bool, len(futs))
	for i := range pending {
		pending[i] = true
	}
	remaining := len(futs)
	return FutureFunc[[]T](func(cx *Context) ([]T, bool) {
		for i, fut := range futs {
			if !pending[i] {
				continue
			}
			if v, ok := fut.Poll(cx); ok {
				results[i] = v
				pending[i] = false
				remaining--
			}
		}
		if remaining != 0 {
			return nil, false
		}
		return results, true
	})
}
