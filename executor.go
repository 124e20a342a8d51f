package executor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

type executorKind uint8

const (
	kindLocal executorKind = iota
	kindSend
	kindTest
)

// String returns a human-readable representation of the kind.
func (k executorKind) String() string {
	switch k {
	case kindLocal:
		return "local"
	case kindSend:
		return "send"
	case kindTest:
		return "test"
	default:
		return "unknown"
	}
}

// Executor is the scheduler shared by [LocalExecutor], [SendExecutor] and
// [TestExecutor]. It owns the ready queue, the threads-state word, the port,
// the receiver map, the timers and the root scope.
//
// Workers follow a check-then-sleep protocol: a worker that drained the ready
// queue announces itself as sleeping, re-checks the queue, and only then
// blocks on the port. Whoever makes a task ready pushes it first, and then
// notifies a sleeper if no worker is running, so one of the two always
// observes the other.
type Executor struct {
	queue     *readyQueue
	port      *Port
	receivers *receiverMap
	timers    *timers
	root      *Scope
	handle    *EHandle

	logger       *logiface.Logger[logiface.Event]
	logLimiter   *catrate.Limiter
	panicHandler func(err *PanicError)
	affinity     []int

	// stalledMain is the main task of the last run that stalled, cancelled
	// by the next run. Only accessed by the run owner.
	stalledMain *task

	// activity is held for reading by runs and PollTasks, and for writing by
	// Close.
	activity sync.RWMutex

	threads threadsCoordinator
	stats   stats
	clock   clock

	lastID    atomic.Uint64
	owner     uint64 // goroutine ID, single-threaded kinds only
	timersKey uint64 // zero on fake clocks
	batchSize int
	workers   int

	running   atomic.Bool
	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	kind executorKind
}

// mainRun is the state of a single run.
type mainRun struct {
	finished atomic.Bool
}

func newExecutor(kind executorKind, workers int, opts []ExecutorOption) (*Executor, error) {
	cfg, err := resolveExecutorOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.fakeTime && kind != kindTest {
		return nil, errFakeTimeUnsupported
	}

	ex := &Executor{
		queue:        newReadyQueue(cfg.readyQueueSize),
		port:         NewPort(),
		receivers:    newReceiverMap(),
		logger:       cfg.logger,
		logLimiter:   newLogLimiter(),
		panicHandler: cfg.panicHandler,
		affinity:     cfg.affinity,
		batchSize:    cfg.batchSize,
		workers:      workers,
		kind:         kind,
	}
	ex.threads.notify = ex.notifyWorker
	ex.clock.fake = cfg.fakeTime
	if cfg.metricsEnabled {
		ex.stats.latency = &LatencyMetrics{}
	}
	ex.root = newScope(ex, nil)
	ex.handle = &EHandle{ex: ex, scope: ex.root}
	if kind != kindSend {
		ex.owner = getGoroutineID()
	}

	if ex.clock.fake {
		ex.timers = newTimers(&ex.clock, nil)
	} else {
		ex.timers = newTimers(&ex.clock, ex.postTimers)
		ex.timersKey = ex.receivers.register(ex.timers)
	}

	return ex, nil
}

// Handle returns the handle for spawning onto the root scope.
func (ex *Executor) Handle() *EHandle {
	return ex.handle
}

// RootScope returns the scope that owns tasks spawned onto the handle.
func (ex *Executor) RootScope() *Scope {
	return ex.root
}

func (ex *Executor) postTimers(kind ClockKind) {
	// the port only rejects packets after teardown
	_ = ex.port.Queue(Packet{Key: ex.timersKey, Data: uint64(kind)})
}

// notifyWorker queues a task-ready packet, after a successful notified
// increment.
func (ex *Executor) notifyWorker() {
	ex.stats.notifications.Add(1)
	_ = ex.port.Queue(Packet{Key: TaskReadyKey})
}

// schedule pushes a task that just became ready, then wakes a worker if none
// is running.
func (ex *Executor) schedule(t *task) {
	ex.queue.Push(t)
	ex.threads.notifyIfIdle(ex.workers)
}

func (ex *Executor) nextTaskID() TaskID {
	return TaskID(ex.lastID.Add(1))
}

func (ex *Executor) checkOpen() {
	if ex.closed.Load() {
		logicPanic(ErrExecutorClosed, "executor used after teardown")
	}
}

func (ex *Executor) checkLocalSpawn() {
	if ex.kind == kindSend {
		logicPanic(nil, "SpawnLocal called on a multi-threaded executor")
	}
	if getGoroutineID() != ex.owner {
		logicPanic(nil, "SpawnLocal called off the executor's owning goroutine")
	}
}

func (ex *Executor) onTaskPanic(err *PanicError) {
	ex.logTaskPanic(err.TaskID, err.Value)
	if ex.panicHandler != nil {
		ex.panicHandler(err)
	}
}

// beginRun marks the start of a run, returning a func that marks its end.
func (ex *Executor) beginRun() func() {
	if b, ok := currentBinding(); ok {
		if b.ex == ex {
			logicPanic(ErrAlreadyRunning, "run called from one of the executor's own goroutines")
		}
		logicPanic(nil, "nested executors on goroutine %d", getGoroutineID())
	}
	if ex.kind != kindSend && getGoroutineID() != ex.owner {
		logicPanic(nil, "single-threaded executor run off its owning goroutine")
	}
	ex.activity.RLock()
	if ex.closed.Load() {
		ex.activity.RUnlock()
		logicPanic(ErrExecutorClosed, "executor used after teardown")
	}
	if !ex.running.CompareAndSwap(false, true) {
		ex.activity.RUnlock()
		logicPanic(ErrAlreadyRunning, "concurrent runs")
	}
	return func() {
		ex.running.Store(false)
		ex.activity.RUnlock()
	}
}

// spawnMain spawns the main future of a run, cancelling the main task left
// behind by a previous run that stalled.
func spawnMain[T any](ex *Executor, fut Future[T], run *mainRun) *JoinHandle[T] {
	if prev := ex.stalledMain; prev != nil {
		ex.stalledMain = nil
		prev.cancel()
	}
	return spawnTask(ex, ex.root, MainTaskID, fut, false, func() {
		ex.mainFinished(run)
	})
}

// mainFinished is called once the main task of run reaches a terminal state,
// on whichever goroutine finalized it.
func (ex *Executor) mainFinished(run *mainRun) {
	run.finished.Store(true)
	if ex.kind == kindSend {
		ex.threads.markDone()
		return
	}
	// the main task may have been cancelled while the worker slept
	ex.threads.notifyUnnotified()
}

// runResult resolves the outcome of a run.
func runResult[T any](ex *Executor, jh *JoinHandle[T], stalled bool) (T, bool, error) {
	if v, ok := jh.Result(); ok {
		return v, false, jh.Err()
	}
	var zero T
	if stalled {
		ex.stalledMain = jh.task
		return zero, true, nil
	}
	return zero, false, ErrExecutorClosed
}

// workerLifecycle is the loop every worker runs, until the main task of run
// finishes or shutdown is requested. In until-stalled mode it also returns,
// with stalled true, once no task is ready and no packet is pending.
func (ex *Executor) workerLifecycle(b *binding, run *mainRun, untilStalled bool) (stalled bool) {
	for {
		if run.finished.Load() || ex.threads.load().Done() {
			return false
		}

		polled := 0
		for polled < ex.batchSize {
			t, ok := ex.queue.Pop()
			if !ok {
				break
			}
			polled++
			ex.pollTask(b, t)
			if run.finished.Load() {
				return false
			}
		}

		if polled == ex.batchSize {
			if !ex.queue.IsEmpty() {
				// more than a batch is ready, bring in one more worker
				ex.threads.notifyUnnotified()
			}
			continue
		}

		timeout := time.Duration(-1)
		if untilStalled {
			timeout = 0
		}

		ex.threads.markSleeping()
		if !ex.queue.IsEmpty() || run.finished.Load() || ex.threads.load().Done() {
			if ex.threads.cancelSleep() {
				continue
			}
			// a notification is already addressed to the sleepers
			timeout = -1
		}

		if ex.park(timeout) {
			return true
		}
	}
}

// park blocks on the port, as a worker already counted as sleeping, until it
// receives a packet. Returns true if the wait timed out without any
// notification in flight.
func (ex *Executor) park(timeout time.Duration) (stalled bool) {
	for {
		pkt, err := ex.port.Wait(timeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrTimedOut):
			if ex.threads.cancelSleep() {
				return true
			}
			// lost the race with a notifier, the packet is on its way
			timeout = -1
			continue
		default:
			ex.logPortFailure(err)
			panic(&LogicError{Cause: err, Message: "port wait failed"})
		}

		if pkt.Key == TaskReadyKey {
			ex.threads.consumeNotification()
		} else {
			ex.threads.clearSleeping()
			ex.dispatch(pkt)
		}
		return false
	}
}

// dispatch routes a receiver packet. Packets for keys that are no longer
// registered are dropped.
func (ex *Executor) dispatch(pkt Packet) {
	if e, ok := ex.receivers.lookup(pkt.Key); ok && e.deliver(pkt) {
		ex.stats.packetsDispatched.Add(1)
		return
	}
	ex.stats.packetsDropped.Add(1)
	ex.logDroppedPacket(pkt)
}

// pollTask polls a task popped from the ready queue, re-pushing it to the
// back of the queue if it yielded.
func (ex *Executor) pollTask(b *binding, t *task) {
	if t.local && !b.owner {
		logicPanic(nil, "local task %d polled off its owning goroutine", t.id)
	}
	ex.stats.polls.Add(1)

	var start time.Time
	if ex.stats.latency != nil {
		start = time.Now()
	}

	result := ex.tryPoll(b, t)

	if ex.stats.latency != nil {
		ex.stats.latency.Record(time.Since(start))
	}

	if result == Yielded {
		ex.stats.yields.Add(1)
		ex.queue.Push(t)
	}
}

func (ex *Executor) tryPoll(b *binding, t *task) PollResult {
	defer b.enterTask(t.id)()
	return t.tryPoll()
}

// Close tears the executor down: it requests shutdown, waits for any active
// run or PollTasks call to return, cancels the root scope (and so every task
// spawned onto it), stops the timers and closes the port. Using the executor
// afterward is a logic error. Close is idempotent, and must not be called
// from a goroutine the executor is running on.
func (ex *Executor) Close() error {
	if b, ok := currentBinding(); ok && b.ex == ex {
		logicPanic(nil, "executor closed from one of its own goroutines")
	}
	ex.closeOnce.Do(func() {
		ex.closed.Store(true)
		ex.threads.markDone()

		ex.activity.Lock()
		defer ex.activity.Unlock()

		tasks := ex.root.Len()
		ex.stalledMain = nil
		ex.root.Cancel()
		ex.timers.close()
		if ex.timersKey != 0 {
			ex.receivers.deregister(ex.timersKey)
		}
		receivers := ex.receivers.close()
		ex.port.Close()
		ex.logTeardown(receivers, tasks)
	})
	return nil
}

func (ex *Executor) requireFakeTime() {
	if !ex.clock.fake {
		logicPanic(nil, "fake time is not enabled")
	}
}

// SetFakeTime sets the fake monotonic clock, firing every timer, on either
// clock, whose deadline has now passed. The woken tasks are queued before
// SetFakeTime returns. Panics unless fake time is enabled.
func (ex *Executor) SetFakeTime(t MonotonicInstant) {
	ex.requireFakeTime()
	ex.clock.fakeMono.Store(int64(t))
	ex.timers.fire(MonotonicClock)
	ex.timers.fire(BootClock)
}

// SetFakeBootToMonoOffset sets the difference between the fake boot and
// monotonic clocks, firing boot timers whose deadline has now passed. Panics
// unless fake time is enabled.
func (ex *Executor) SetFakeBootToMonoOffset(offset time.Duration) {
	ex.requireFakeTime()
	ex.clock.fakeOffset.Store(int64(offset))
	ex.timers.fire(BootClock)
}

// WakeExpiredTimers fires every timer whose deadline has passed, returning
// true if any fired.
func (ex *Executor) WakeExpiredTimers() bool {
	n := ex.timers.fire(MonotonicClock)
	n += ex.timers.fire(BootClock)
	return n != 0
}

// WakeNextTimer advances the fake clock to the earliest scheduled deadline
// (unless it already passed), firing the timers that then expired. Returns
// the deadline, or false if no timer is scheduled. Panics unless fake time is
// enabled.
func (ex *Executor) WakeNextTimer() (MonotonicInstant, bool) {
	ex.requireFakeTime()
	next, ok := ex.timers.next()
	if !ok {
		return 0, false
	}
	if next > ex.clock.now() {
		ex.SetFakeTime(next)
	} else {
		ex.WakeExpiredTimers()
	}
	return next, true
}

// Now returns the current reading of the executor's monotonic clock.
func (ex *Executor) Now() MonotonicInstant {
	return ex.clock.now()
}

// BootNow returns the current reading of the executor's boot clock.
func (ex *Executor) BootNow() BootInstant {
	return ex.clock.bootNow()
}
