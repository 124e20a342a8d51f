package executor

import (
	"sync/atomic"
)

// TaskID identifies a task within its executor.
type TaskID uint64

// MainTaskID is reserved for the future passed to a run function.
const MainTaskID TaskID = 0

// PollResult is the outcome of a single attempt to poll a task.
type PollResult uint8

const (
	// Pending indicates the future was polled and is waiting for a wake.
	Pending PollResult = iota
	// Yielded indicates the task was woken during its own poll, and has been
	// marked queued again; the caller must push it to the back of the ready
	// queue.
	Yielded
	// Finished indicates the future completed.
	Finished
	// Cancelled indicates the task was cancelled, either before this attempt
	// or while it was being polled.
	Cancelled
)

// String returns a human-readable representation of the result.
func (r PollResult) String() string {
	switch r {
	case Pending:
		return "Pending"
	case Yielded:
		return "Yielded"
	case Finished:
		return "Finished"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Task state bits.
//
// State Machine:
//
//	idle -> queued                 [wake, spawn]
//	queued -> running              [TryPoll]
//	running -> running|woken       [wake during poll]
//	running|woken -> queued        [poll pending, Yielded]
//	running -> idle                [poll pending, Pending]
//	running -> done                [poll complete, Finished]
//	idle|queued -> cancelled       [cancel, finalized by the canceller]
//	running -> running|cancelled   [cancel during poll, finalized by the poller]
//
// done and cancelled are terminal, and mutually exclusive.
const (
	taskQueued    uint32 = 1 << iota // present in the ready queue
	taskRunning                      // being polled
	taskWoken                        // woken while running
	taskDone                         // finished
	taskCancelled                    // cancelled, or cancellation requested while running
)

// task is the reference-counted (by the garbage collector), atomically
// stateful wrapper around a future.
type task struct {
	ex    *Executor
	scope *Scope
	waker *Waker

	// body polls the future, returning true once it completed. Written only
	// by the goroutine that holds the running bit, or during finalization.
	body func(cx *Context) bool

	// onDone receives nil, ErrCancelled, or a *PanicError, exactly once.
	onDone func(err error)

	cx Context

	state     atomic.Uint32
	finalized atomic.Bool

	id    TaskID
	local bool
}

func newTask(ex *Executor, scope *Scope, id TaskID, local bool, body func(cx *Context) bool, onDone func(error)) *task {
	t := &task{
		ex:     ex,
		scope:  scope,
		body:   body,
		onDone: onDone,
		id:     id,
		local:  local,
	}
	t.waker = newTaskWaker(t)
	t.cx = Context{waker: t.waker, handle: ex.handle, scope: scope, id: id}
	return t
}

// wake transitions the task to queued, pushing it to the ready queue, unless
// it is already queued, running (sets woken instead), or terminal.
func (t *task) wake() {
	for {
		s := t.state.Load()
		switch {
		case s&(taskDone|taskCancelled) != 0:
			return
		case s&taskRunning != 0:
			if s&taskWoken != 0 || t.state.CompareAndSwap(s, s|taskWoken) {
				return
			}
		case s&taskQueued != 0:
			return
		default:
			if t.state.CompareAndSwap(s, s|taskQueued) {
				t.ex.schedule(t)
				return
			}
		}
	}
}

// tryPoll attempts to poll the task once. The caller must hold the queue
// entry for the task (i.e. it popped it from the ready queue).
func (t *task) tryPoll() PollResult {
	for {
		s := t.state.Load()
		if s&(taskDone|taskCancelled) != 0 {
			t.finalize(ErrCancelled)
			return Cancelled
		}
		if t.state.CompareAndSwap(s, s&^taskQueued|taskRunning) {
			break
		}
	}

	finished, panicErr := t.poll()

	for {
		s := t.state.Load()
		switch {
		case finished:
			if t.state.CompareAndSwap(s, s&^(taskRunning|taskWoken|taskCancelled)|taskDone) {
				t.body = nil
				t.finalize(panicErr)
				return Finished
			}
		case s&taskCancelled != 0:
			if t.state.CompareAndSwap(s, s&^(taskRunning|taskWoken)) {
				t.body = nil
				t.finalize(ErrCancelled)
				return Cancelled
			}
		case s&taskWoken != 0:
			if t.state.CompareAndSwap(s, s&^(taskRunning|taskWoken)|taskQueued) {
				return Yielded
			}
		default:
			if t.state.CompareAndSwap(s, s&^taskRunning) {
				return Pending
			}
		}
	}
}

// poll runs the body, recovering panics at the task boundary.
func (t *task) poll() (finished bool, panicErr error) {
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Value: r, TaskID: t.id}
			finished, panicErr = true, err
			t.ex.onTaskPanic(err)
		}
	}()
	return t.body(&t.cx), nil
}

// cancel requests cancellation, returning false if the task already reached
// a terminal state. Safe to call concurrently with tryPoll.
func (t *task) cancel() bool {
	for {
		s := t.state.Load()
		if s&(taskDone|taskCancelled) != 0 {
			return false
		}
		if t.state.CompareAndSwap(s, s|taskCancelled) {
			if s&taskRunning == 0 {
				// a queued entry, if any, is skipped by whoever pops it
				t.body = nil
				t.finalize(ErrCancelled)
			}
			return true
		}
	}
}

// finalize reports the outcome and releases the task from its scope, once.
func (t *task) finalize(err error) {
	if !t.finalized.CompareAndSwap(false, true) {
		return
	}
	if t.scope != nil {
		t.scope.release(t)
	}
	t.ex.stats.recordOutcome(err)
	if t.onDone != nil {
		t.onDone(err)
	}
}

// isTerminal reports whether the task finished or was cancelled.
func (t *task) isTerminal() bool {
	return t.state.Load()&(taskDone|taskCancelled) != 0
}
