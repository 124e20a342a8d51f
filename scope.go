package executor

import (
	"sync"
	"sync/atomic"
)

// Scope owns the lifetimes of a group of tasks. Cancelling a scope cancels
// every task it owns, and every child scope, and rejects further spawns:
// futures spawned onto a cancelled scope are dropped without being polled.
//
// Each executor has a root scope, cancelled by [Executor.Close].
type Scope struct {
	ex     *Executor
	parent *Scope

	mu       sync.Mutex
	tasks    map[TaskID]*task
	children map[*Scope]struct{}

	cancelled atomic.Bool
}

func newScope(ex *Executor, parent *Scope) *Scope {
	return &Scope{
		ex:       ex,
		parent:   parent,
		tasks:    make(map[TaskID]*task),
		children: make(map[*Scope]struct{}),
	}
}

// NewChild creates a scope owned by x. If x is already cancelled, the child
// is returned cancelled.
func (x *Scope) NewChild() *Scope {
	child := newScope(x.ex, x)
	x.mu.Lock()
	if x.cancelled.Load() {
		x.mu.Unlock()
		child.cancelled.Store(true)
		return child
	}
	x.children[child] = struct{}{}
	x.mu.Unlock()
	return child
}

// Cancel cancels every task and child scope owned by x. Tasks mid-poll are
// finalized by their poller once the poll returns. Cancel is idempotent.
func (x *Scope) Cancel() {
	x.mu.Lock()
	if !x.cancelled.CompareAndSwap(false, true) {
		x.mu.Unlock()
		return
	}
	tasks := make([]*task, 0, len(x.tasks))
	for _, t := range x.tasks {
		tasks = append(tasks, t)
	}
	children := make([]*Scope, 0, len(x.children))
	for c := range x.children {
		children = append(children, c)
	}
	clear(x.children)
	x.mu.Unlock()

	for _, c := range children {
		c.Cancel()
	}
	for _, t := range tasks {
		t.cancel()
	}

	if x.parent != nil {
		x.parent.mu.Lock()
		delete(x.parent.children, x)
		x.parent.mu.Unlock()
	}
}

// Cancelled reports whether x was cancelled.
func (x *Scope) Cancelled() bool {
	return x.cancelled.Load()
}

// Len returns the number of live tasks owned directly by x.
func (x *Scope) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.tasks)
}

// Handle returns the handle of the executor the scope belongs to.
func (x *Scope) Handle() *EHandle {
	return x.ex.handle
}

func (x *Scope) spawnScope() *Scope { return x }

// adopt registers t, returning false if the scope is cancelled.
func (x *Scope) adopt(t *task) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.cancelled.Load() {
		return false
	}
	x.tasks[t.id] = t
	return true
}

// release is called once a task reaches a terminal state.
func (x *Scope) release(t *task) {
	x.mu.Lock()
	if x.tasks[t.id] == t {
		delete(x.tasks, t.id)
	}
	x.mu.Unlock()
}
