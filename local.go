package executor

import (
	"runtime"
)

// LocalExecutor is a single-threaded executor, driven by the goroutine that
// created it. Futures spawned with [SpawnLocal] are only ever polled by that
// goroutine.
type LocalExecutor struct {
	*Executor
}

// NewLocalExecutor creates a single-threaded executor owned by the calling
// goroutine.
func NewLocalExecutor(opts ...ExecutorOption) (*LocalExecutor, error) {
	ex, err := newExecutor(kindLocal, 1, opts)
	if err != nil {
		return nil, err
	}
	return &LocalExecutor{ex}, nil
}

// RunSingleThreaded runs fut to completion on the calling goroutine, which
// must be the executor's owner, polling any other ready tasks along the way.
// Tasks still pending when fut completes remain owned by the root scope, and
// are polled by later runs.
//
// The error is a *PanicError if fut panicked, ErrCancelled if it was
// cancelled (e.g. via the root scope), or ErrExecutorClosed if the run was
// interrupted by Close.
func RunSingleThreaded[T any](x *LocalExecutor, fut Future[T]) (T, error) {
	v, _, err := runLocal(x.Executor, fut, false)
	return v, err
}

// runLocal drives a single-threaded run on the calling goroutine.
func runLocal[T any](ex *Executor, fut Future[T], untilStalled bool) (T, bool, error) {
	end := ex.beginRun()
	defer end()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	b, unbind := bindGoroutine(ex, true, true)
	defer unbind()

	run := &mainRun{}
	jh := spawnMain(ex, fut, run)
	stalled := ex.workerLifecycle(b, run, untilStalled)
	return runResult(ex, jh, stalled)
}
