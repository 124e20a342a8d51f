// Package executor provides a cooperative, poll-based task executor, in
// single-threaded and multi-threaded flavors, with timers, a fake clock for
// deterministic tests, and an event port that multiplexes wake notifications,
// timer expiry and I/O readiness.
//
// # Architecture
//
// Every executor is built around one [Executor] core, which owns:
//   - a lock-free MPMC ready queue of tasks
//   - a packed atomic [ThreadsState] word, counting sleeping workers, pending
//     notifications and foreign pollers
//   - a [Port], the only place a worker blocks
//   - a map of [PacketReceiver] values, keyed by port key
//   - per-clock timer heaps, on a real or fake clock
//   - the root [Scope], owning every task spawned onto the [EHandle]
//
// Three flavors share that core: [LocalExecutor] ([RunSingleThreaded]),
// [SendExecutor] ([Run]) and [TestExecutor] ([RunUntilStalled]).
//
// # Tasks and Wakers
//
// A [Future] is polled by the executor whenever its task is ready. A future
// that cannot make progress returns pending, after arranging for the waker
// from its [Context] to be woken. Waking queues the task at most once; a wake
// that arrives while the task is being polled makes the poll yield, and the
// task is re-queued at the back of the ready queue. Panics are recovered at
// the task boundary, and reported as a *[PanicError] via the [JoinHandle].
//
// # Thread Safety
//
//   - [Spawn], [Waker.Wake], [JoinHandle.Cancel] and [Registration.Post] are
//     safe to call from any goroutine
//   - [SpawnLocal] is restricted to the goroutine that owns a single-threaded
//     executor
//   - [EHandle.PollTasks] lets goroutines outside a multi-threaded executor
//     drain one batch of ready tasks
//
// # Usage
//
//	ex, err := executor.NewSendExecutor(4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ex.Close()
//
//	h := ex.Handle()
//	jobs := make([]executor.Future[int], 10)
//	for i := range jobs {
//	    jobs[i] = executor.Spawn[int](h, executor.Ready(i))
//	}
//	results, err := executor.Run(ex, executor.JoinAll(jobs...))
package executor
