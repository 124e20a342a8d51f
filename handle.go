package executor

// EHandle is a handle to an executor, scoped to its root scope. It is safe to
// copy the pointer between goroutines. Tasks normally reach it via
// [Context.Handle].
type EHandle struct {
	ex    *Executor
	scope *Scope
}

func (h *EHandle) spawnScope() *Scope { return h.scope }

// RootScope returns the scope futures spawned via the handle are owned by.
func (h *EHandle) RootScope() *Scope {
	return h.scope
}

// RegisterReceiver allocates a port key for r. Packets posted for the key
// (see [Registration.Post]) are dispatched to r on a worker goroutine, until
// the registration is closed. Panics after teardown.
func (h *EHandle) RegisterReceiver(r PacketReceiver) *Registration {
	return &Registration{ex: h.ex, key: h.ex.receivers.register(r)}
}

// Now returns the current reading of the executor's monotonic clock.
func (h *EHandle) Now() MonotonicInstant {
	return h.ex.clock.now()
}

// BootNow returns the current reading of the executor's boot clock.
func (h *EHandle) BootNow() BootInstant {
	return h.ex.clock.bootNow()
}

// Workers returns the number of worker threads.
func (h *EHandle) Workers() int {
	return h.ex.workers
}

// PollTasks lets a goroutine that does not belong to the executor contribute
// to draining the ready queue: it runs cb (if non-nil), then polls at most
// one batch of ready tasks. While inside, the goroutine is counted in the
// foreign field of the threads state, and [Current] returns h.
//
// Panics if called on a single-threaded executor, or from a goroutine that
// is already running on behalf of any executor.
func (h *EHandle) PollTasks(cb func(h *EHandle)) {
	ex := h.ex
	if ex.kind != kindSend {
		logicPanic(nil, "PollTasks called on a single-threaded executor")
	}
	if b, ok := currentBinding(); ok {
		if b.worker {
			logicPanic(nil, "PollTasks called from an executor worker goroutine")
		}
		logicPanic(nil, "nested PollTasks")
	}

	ex.activity.RLock()
	defer ex.activity.RUnlock()
	ex.checkOpen()

	ex.threads.addForeign()
	defer ex.threads.removeForeign()
	ex.stats.foreignPolls.Add(1)

	b, unbind := bindGoroutine(ex, false, false)
	defer unbind()

	if cb != nil {
		cb(h)
	}

	for range ex.batchSize {
		t, ok := ex.queue.Pop()
		if !ok {
			return
		}
		ex.pollTask(b, t)
	}
	if !ex.queue.IsEmpty() {
		ex.threads.notifyUnnotified()
	}
}

// Stats returns a snapshot of the executor's counters.
func (h *EHandle) Stats() Stats {
	ex := h.ex
	s := Stats{
		Threads:           ex.threads.load(),
		ForeignPollers:    ex.threads.foreignCount(),
		Spawned:           ex.stats.spawned.Load(),
		Completed:         ex.stats.completed.Load(),
		Cancelled:         ex.stats.cancelled.Load(),
		Panicked:          ex.stats.panicked.Load(),
		Polls:             ex.stats.polls.Load(),
		Yields:            ex.stats.yields.Load(),
		Notifications:     ex.stats.notifications.Load(),
		PacketsDispatched: ex.stats.packetsDispatched.Load(),
		PacketsDropped:    ex.stats.packetsDropped.Load(),
		ForeignPolls:      ex.stats.foreignPolls.Load(),
		ReadyTasks:        ex.queue.Len(),
		Receivers:         ex.receivers.Len(),
		Timers:            ex.timers.Len(),
	}
	if ex.stats.latency != nil {
		v := ex.stats.latency.Sample()
		s.PollLatency = &v
	}
	return s
}
