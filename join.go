package executor

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Spawner is implemented by [*EHandle] (spawning onto the root scope) and
// [*Scope].
type Spawner interface {
	spawnScope() *Scope
}

// Spawn wraps fut in a task owned by the spawner's scope and pushes it to the
// ready queue. Safe to call from any goroutine.
func Spawn[T any](sp Spawner, fut Future[T]) *JoinHandle[T] {
	return spawn(sp.spawnScope(), fut, false)
}

// SpawnLocal is like [Spawn], but the task is tied to the goroutine that owns
// the executor and is never polled by a foreign goroutine. It panics unless
// the executor is single-threaded and the caller is its owning goroutine.
func SpawnLocal[T any](sp Spawner, fut Future[T]) *JoinHandle[T] {
	scope := sp.spawnScope()
	scope.ex.checkLocalSpawn()
	return spawn(scope, fut, true)
}

func spawn[T any](scope *Scope, fut Future[T], local bool) *JoinHandle[T] {
	ex := scope.ex
	ex.checkOpen()
	return spawnTask(ex, scope, ex.nextTaskID(), fut, local, nil)
}

// spawnTask creates and schedules a task, calling done (if non-nil) after the
// handle completes.
func spawnTask[T any](ex *Executor, scope *Scope, id TaskID, fut Future[T], local bool, done func()) *JoinHandle[T] {
	jh := &JoinHandle[T]{}
	onDone := jh.complete
	if done != nil {
		onDone = func(err error) {
			jh.complete(err)
			done()
		}
	}
	t := newTask(ex, scope, id, local, func(cx *Context) bool {
		v, ok := fut.Poll(cx)
		if ok {
			jh.value = v
		}
		return ok
	}, onDone)
	jh.task = t
	ex.stats.spawned.Add(1)
	if !scope.adopt(t) {
		t.cancel()
		return jh
	}
	t.wake()
	return jh
}

// JoinHandle is the result of spawning a future. It is itself a [Future],
// completing with the task's result once the task finishes. If the task was
// cancelled or panicked, the handle completes with the zero value and Err
// reports why.
type JoinHandle[T any] struct {
	task  *task
	value T
	err   error

	mu     sync.Mutex
	wakers []*Waker
	done   atomic.Bool
}

// ID returns the task ID.
func (x *JoinHandle[T]) ID() TaskID {
	return x.task.id
}

// Poll implements [Future].
func (x *JoinHandle[T]) Poll(cx *Context) (T, bool) {
	if x.done.Load() {
		return x.value, true
	}
	x.mu.Lock()
	if x.done.Load() {
		x.mu.Unlock()
		return x.value, true
	}
	if w := cx.Waker(); !slices.Contains(x.wakers, w) {
		x.wakers = append(x.wakers, w)
	}
	x.mu.Unlock()
	var zero T
	return zero, false
}

// Done reports whether the task reached a terminal state.
func (x *JoinHandle[T]) Done() bool {
	return x.done.Load()
}

// Result returns the task's result, and whether it is available yet.
func (x *JoinHandle[T]) Result() (T, bool) {
	if !x.done.Load() {
		var zero T
		return zero, false
	}
	return x.value, true
}

// Err returns nil if the task finished normally (or is still live),
// [ErrCancelled] if it was cancelled, or a *[PanicError].
func (x *JoinHandle[T]) Err() error {
	if !x.done.Load() {
		return nil
	}
	return x.err
}

// Cancel cancels the task, returning false if it had already finished or
// been cancelled. A task mid-poll is cancelled once the poll returns.
func (x *JoinHandle[T]) Cancel() bool {
	return x.task.cancel()
}

func (x *JoinHandle[T]) complete(err error) {
	x.mu.Lock()
	x.err = err
	if err != nil {
		var zero T
		x.value = zero
	}
	x.done.Store(true)
	wakers := x.wakers
	x.wakers = nil
	x.mu.Unlock()
	for _, w := range wakers {
		w.Wake()
	}
}
