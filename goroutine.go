package executor

import (
	"runtime"
	"sync"
)

// binding associates a goroutine with the executor it is running on behalf
// of. Worker bindings belong to goroutines started (or taken over) by a run
// function, foreign bindings to goroutines inside EHandle.PollTasks.
type binding struct {
	ex *Executor

	// current is the task being polled, valid while polling is set
	current TaskID
	polling bool

	worker bool
	owner  bool // the goroutine that owns a single-threaded executor
}

// bindings maps goroutine IDs to their *binding.
var bindings sync.Map

// getGoroutineID parses the current goroutine's ID out of its stack header.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// bindGoroutine binds the calling goroutine to ex, returning the binding and
// a func to release it. Panics if the goroutine is already bound, to any
// executor.
func bindGoroutine(ex *Executor, worker, owner bool) (*binding, func()) {
	gid := getGoroutineID()
	b := &binding{ex: ex, worker: worker, owner: owner}
	if _, loaded := bindings.LoadOrStore(gid, b); loaded {
		logicPanic(nil, "nested executors on goroutine %d", gid)
	}
	return b, func() { bindings.CompareAndDelete(gid, b) }
}

func currentBinding() (*binding, bool) {
	v, ok := bindings.Load(getGoroutineID())
	if !ok {
		return nil, false
	}
	return v.(*binding), true
}

// enterTask records id as the task being polled, returning a func that
// restores the previous value. Intended for use with defer.
func (b *binding) enterTask(id TaskID) func() {
	prev, prevPolling := b.current, b.polling
	b.current, b.polling = id, true
	return func() {
		b.current, b.polling = prev, prevPolling
	}
}

// Current returns the handle of the executor the calling goroutine is
// running on behalf of. It panics with a *LogicError if there is none.
// Prefer [Context.Handle], which makes the dependency explicit.
func Current() *EHandle {
	b, ok := currentBinding()
	if !ok {
		logicPanic(nil, "no executor is running on the calling goroutine")
	}
	return b.ex.handle
}

// TryCurrent is like [Current], but reports false instead of panicking.
func TryCurrent() (*EHandle, bool) {
	b, ok := currentBinding()
	if !ok {
		return nil, false
	}
	return b.ex.handle, true
}

// CurrentTaskID returns the ID of the task being polled by the calling
// goroutine, if any.
func CurrentTaskID() (TaskID, bool) {
	b, ok := currentBinding()
	if !ok || !b.polling {
		return 0, false
	}
	return b.current, true
}
