package executor

// TestExecutor is a single-threaded executor for deterministic tests. In
// addition to running futures to completion, it can run them until no more
// progress is possible without outside events, and (with WithFakeTime) runs
// on a fake clock that only advances when told to.
type TestExecutor struct {
	*Executor
}

// NewTestExecutor creates a test executor owned by the calling goroutine.
func NewTestExecutor(opts ...ExecutorOption) (*TestExecutor, error) {
	ex, err := newExecutor(kindTest, 1, opts)
	if err != nil {
		return nil, err
	}
	return &TestExecutor{ex}, nil
}

// RunSingleThreadedTest is [RunSingleThreaded], for a test executor.
func RunSingleThreadedTest[T any](x *TestExecutor, fut Future[T]) (T, error) {
	v, _, err := runLocal(x.Executor, fut, false)
	return v, err
}

// RunUntilStalled polls fut, and every other ready task, until either fut
// completes or the executor stalls: no task is ready and no packet is
// pending. Timers and other events are not waited for. The value is only
// valid if ok, which reports that fut completed without error.
//
// A stalled fut is retained. Calling RunUntilStalled (or any other run) again
// resumes polling fut from where it left off, provided the same fut is
// passed; the stalled task itself is cancelled.
func RunUntilStalled[T any](x *TestExecutor, fut Future[T]) (value T, ok bool, err error) {
	v, stalled, err := runLocal(x.Executor, fut, true)
	return v, !stalled && err == nil, err
}
