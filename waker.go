package executor

import (
	"weak"
)

// Waker reschedules a task. It references its task weakly, so a task that
// stores its own waker (directly or through the things it waits on) does not
// keep itself alive past the lifetime granted by its [Scope].
//
// Wake is safe to call from any goroutine, any number of times.
type Waker struct {
	task weak.Pointer[task]
	fn   func()
}

func newTaskWaker(t *task) *Waker {
	return &Waker{task: weak.Make(t)}
}

// WakerFunc returns a waker that calls fn, for integration with code that is
// not driven by an executor.
func WakerFunc(fn func()) *Waker {
	return &Waker{fn: fn}
}

// NoopWaker returns a waker that does nothing.
func NoopWaker() *Waker {
	return &Waker{}
}

// Wake marks the task as ready. Waking a task that is queued is a no-op,
// waking a task mid-poll makes the poll yield, and waking a finished or
// collected task is ignored.
func (w *Waker) Wake() {
	if w == nil {
		return
	}
	if w.fn != nil {
		w.fn()
		return
	}
	if t := w.task.Value(); t != nil {
		t.wake()
	}
}
