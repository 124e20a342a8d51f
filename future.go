package executor

// Future is a unit of cooperative, poll-driven work.
//
// Poll is called by the executor whenever the owning task is ready. It
// returns ok=true exactly once, with the result. Otherwise, before returning
// ok=false, it must arrange for cx.Waker() to be woken once progress is
// possible again. Wakers handed out by earlier polls may be stale, so
// implementations should store the waker from the most recent poll.
//
// A Future is polled by at most one goroutine at a time, but not necessarily
// the same goroutine each time (unless spawned with [SpawnLocal]).
type Future[T any] interface {
	Poll(cx *Context) (T, bool)
}

// FutureFunc adapts a function to the [Future] interface.
type FutureFunc[T any] func(cx *Context) (T, bool)

// Poll implements [Future].
func (f FutureFunc[T]) Poll(cx *Context) (T, bool) {
	return f(cx)
}

// Ready returns a future that completes immediately with v.
func Ready[T any](v T) Future[T] {
	return FutureFunc[T](func(*Context) (T, bool) { return v, true })
}

// Yield returns a future that returns pending once, waking itself, so the
// task is requeued to the back of the ready queue.
func Yield() Future[struct{}] {
	var yielded bool
	return FutureFunc[struct{}](func(cx *Context) (struct{}, bool) {
		if yielded {
			return struct{}{}, true
		}
		yielded = true
		cx.Waker().Wake()
		return struct{}{}, false
	})
}

// Context is passed to [Future.Poll]. It identifies the polled task and
// provides explicit access to its executor.
type Context struct {
	waker  *Waker
	handle *EHandle
	scope  *Scope
	id     TaskID
}

// NewContext returns a Context that is not bound to any task, for polling
// futures by hand (e.g. in tests, or to integrate with another scheduler).
// The handle may be nil.
func NewContext(waker *Waker, handle *EHandle) *Context {
	cx := &Context{waker: waker, handle: handle}
	if handle != nil {
		cx.scope = handle.scope
	}
	return cx
}

// Waker returns the waker of the polled task.
func (cx *Context) Waker() *Waker { return cx.waker }

// Handle returns the handle to the executor polling the task.
func (cx *Context) Handle() *EHandle { return cx.handle }

// Scope returns the scope owning the polled task.
func (cx *Context) Scope() *Scope { return cx.scope }

// TaskID returns the ID of the polled task.
func (cx *Context) TaskID() TaskID { return cx.id }
