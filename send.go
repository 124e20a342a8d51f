package executor

import (
	"fmt"
	"runtime"
	"sync"
)

// SendExecutor is a multi-threaded executor. Each run starts the configured
// number of worker goroutines, each locked to its own OS thread, sharing one
// ready queue.
type SendExecutor struct {
	*Executor
}

// NewSendExecutor creates a multi-threaded executor with numThreads workers.
func NewSendExecutor(numThreads int, opts ...ExecutorOption) (*SendExecutor, error) {
	if numThreads < 1 || numThreads > MaxThreads {
		return nil, fmt.Errorf("executor: invalid thread count %d", numThreads)
	}
	ex, err := newExecutor(kindSend, numThreads, opts)
	if err != nil {
		return nil, err
	}
	return &SendExecutor{ex}, nil
}

// Run runs fut to completion on the executor's workers, blocking the calling
// goroutine until it completes. Once fut completes, shutdown is requested
// and Run returns after every worker has exited. A SendExecutor can only be
// run once.
//
// The error is a *PanicError if fut panicked, ErrCancelled if it was
// cancelled, or ErrExecutorClosed if the run was interrupted by Close.
func Run[T any](x *SendExecutor, fut Future[T]) (T, error) {
	ex := x.Executor
	end := ex.beginRun()
	defer end()

	if !ex.started.CompareAndSwap(false, true) {
		logicPanic(ErrAlreadyRunning, "multi-threaded executor run more than once")
	}

	run := &mainRun{}
	jh := spawnMain(ex, fut, run)

	var wg sync.WaitGroup
	for i := range ex.workers {
		wg.Go(func() {
			ex.runWorker(i, run)
		})
	}
	wg.Wait()

	v, _, err := runResult(ex, jh, false)
	return v, err
}

func (ex *Executor) runWorker(i int, run *mainRun) {
	runtime.LockOSThread()
	pinned := false
	if len(ex.affinity) != 0 {
		cpu := ex.affinity[i%len(ex.affinity)]
		if err := setThreadAffinity(cpu); err != nil {
			ex.logAffinityFailure(i, cpu, err)
		} else {
			pinned = true
		}
	}
	if !pinned {
		// a pinned thread is discarded when the goroutine exits
		defer runtime.UnlockOSThread()
	}

	b, unbind := bindGoroutine(ex, true, false)
	defer unbind()

	ex.workerLifecycle(b, run, false)
}
