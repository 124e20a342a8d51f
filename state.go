package executor

import (
	"fmt"
	"sync/atomic"
)

// ThreadsState is the packed word coordinating worker sleep and wake.
//
// Layout (single source of truth, see the shift and mask constants):
//
//	bits  0-7   sleeping  workers announced as (about to be) blocked on the port
//	bits  8-15  notified  task-ready packets queued for sleepers, not yet consumed
//	bits 16-23  foreign   non-worker goroutines inside EHandle.PollTasks
//	bit  31     done      shutdown requested, terminal
//
// The target steady state is notified <= sleeping. It may transiently invert
// when a sleeper leaves the port for a receiver packet while a notification
// meant for the sleepers is still queued; that packet is consumed by the next
// thread to sleep.
type ThreadsState uint32

const (
	threadsFieldBits = 8
	threadsFieldMask = 1<<threadsFieldBits - 1

	sleepingShift = 0
	notifiedShift = 8
	foreignShift  = 16
	doneBit       = ThreadsState(1) << 31

	// MaxThreads is the largest number of threads a single field can count.
	MaxThreads = threadsFieldMask
)

func (s ThreadsState) field(shift uint) int {
	return int(uint32(s)>>shift) & threadsFieldMask
}

func (s ThreadsState) withField(shift uint, v int) ThreadsState {
	if v < 0 || v > threadsFieldMask {
		panic(fmt.Sprintf("executor: threads state field overflow: %d", v))
	}
	return s&^(ThreadsState(threadsFieldMask)<<shift) | ThreadsState(v)<<shift
}

// Sleeping returns the sleeping field.
func (s ThreadsState) Sleeping() int { return s.field(sleepingShift) }

// Notified returns the notified field.
func (s ThreadsState) Notified() int { return s.field(notifiedShift) }

// Foreign returns the foreign field.
func (s ThreadsState) Foreign() int { return s.field(foreignShift) }

// Done reports whether shutdown was requested.
func (s ThreadsState) Done() bool { return s&doneBit != 0 }

// WithSleeping returns a copy with the sleeping field replaced.
func (s ThreadsState) WithSleeping(v int) ThreadsState { return s.withField(sleepingShift, v) }

// WithNotified returns a copy with the notified field replaced.
func (s ThreadsState) WithNotified(v int) ThreadsState { return s.withField(notifiedShift, v) }

// WithForeign returns a copy with the foreign field replaced.
func (s ThreadsState) WithForeign(v int) ThreadsState { return s.withField(foreignShift, v) }

// WithDone returns a copy with the done flag set.
func (s ThreadsState) WithDone() ThreadsState { return s | doneBit }

// String returns a human-readable representation of the state.
func (s ThreadsState) String() string {
	return fmt.Sprintf("ThreadsState{sleeping:%d notified:%d foreign:%d done:%t}",
		s.Sleeping(), s.Notified(), s.Foreign(), s.Done())
}

// threadsCoordinator owns the atomic ThreadsState word.
//
// Every transition is a CAS loop; Go's atomics are sequentially consistent,
// which the sleep announcement / ready queue recheck pair depends on.
type threadsCoordinator struct { // betteralign:ignore
	_ [64]byte      // Cache line padding //nolint:unused
	v atomic.Uint32 // ThreadsState
	_ [60]byte      // Pad to complete cache line //nolint:unused

	// notify queues a single task-ready packet, called after a successful
	// notified increment.
	notify func()

	// foreignOverflow counts foreign pollers beyond what the packed field
	// holds. The field saturates at MaxThreads.
	foreignOverflow atomic.Int64
}

func (c *threadsCoordinator) load() ThreadsState {
	return ThreadsState(c.v.Load())
}

func (c *threadsCoordinator) cas(old, new ThreadsState) bool {
	return c.v.CompareAndSwap(uint32(old), uint32(new))
}

// update applies fn until the CAS succeeds, returning the new value.
func (c *threadsCoordinator) update(fn func(ThreadsState) ThreadsState) ThreadsState {
	for {
		old := c.load()
		next := fn(old)
		if c.cas(old, next) {
			return next
		}
	}
}

// tryNotify increments notified, given the expected current value, and
// queues a task-ready packet on success. On failure the observed state is
// returned so the caller can re-evaluate.
func (c *threadsCoordinator) tryNotify(expected ThreadsState) (ThreadsState, bool) {
	next := expected.WithNotified(expected.Notified() + 1)
	if !c.cas(expected, next) {
		return c.load(), false
	}
	c.notify()
	return next, true
}

// notifyUnnotified issues at most one notification, if some sleeper has not
// been notified yet. Returns true if a notification was sent.
func (c *threadsCoordinator) notifyUnnotified() bool {
	s := c.load()
	for {
		if s.Done() || s.Notified() >= s.Sleeping() {
			return false
		}
		var ok bool
		if s, ok = c.tryNotify(s); ok {
			return true
		}
	}
}

// notifyIfIdle issues a notification only when no worker is actively
// running, out of workers total. A worker is running unless it is counted as
// sleeping without a pending notification.
func (c *threadsCoordinator) notifyIfIdle(workers int) bool {
	s := c.load()
	for {
		if s.Done() || s.Notified() >= s.Sleeping() {
			return false
		}
		if running := workers - s.Sleeping() + s.Notified(); running > 0 {
			return false
		}
		var ok bool
		if s, ok = c.tryNotify(s); ok {
			return true
		}
	}
}

// markSleeping announces the calling worker's intent to block.
func (c *threadsCoordinator) markSleeping() ThreadsState {
	return c.update(func(s ThreadsState) ThreadsState {
		return s.WithSleeping(s.Sleeping() + 1)
	})
}

// cancelSleep retracts a sleep announcement, which is only possible while
// notified < sleeping. On false, a notification addressed to the sleepers is
// in flight and the caller must consume it from the port.
func (c *threadsCoordinator) cancelSleep() bool {
	for {
		s := c.load()
		if s.Notified() >= s.Sleeping() {
			return false
		}
		if c.cas(s, s.WithSleeping(s.Sleeping()-1)) {
			return true
		}
	}
}

// clearSleeping is called by a sleeper that left the port for a reason other
// than a task-ready packet.
func (c *threadsCoordinator) clearSleeping() ThreadsState {
	return c.update(func(s ThreadsState) ThreadsState {
		return s.WithSleeping(s.Sleeping() - 1)
	})
}

// consumeNotification is called by a sleeper that received a task-ready
// packet.
func (c *threadsCoordinator) consumeNotification() ThreadsState {
	return c.update(func(s ThreadsState) ThreadsState {
		return s.WithSleeping(s.Sleeping() - 1).WithNotified(s.Notified() - 1)
	})
}

// addForeign registers a goroutine entering EHandle.PollTasks. The packed
// field saturates at MaxThreads, the remainder spills into foreignOverflow.
func (c *threadsCoordinator) addForeign() ThreadsState {
	for {
		s := c.load()
		if s.Foreign() == threadsFieldMask {
			c.foreignOverflow.Add(1)
			return s
		}
		next := s.WithForeign(s.Foreign() + 1)
		if c.cas(s, next) {
			return next
		}
	}
}

// removeForeign is the inverse of addForeign, draining the overflow first.
func (c *threadsCoordinator) removeForeign() ThreadsState {
	for {
		if n := c.foreignOverflow.Load(); n > 0 {
			if c.foreignOverflow.CompareAndSwap(n, n-1) {
				return c.load()
			}
			continue
		}
		s := c.load()
		if s.Foreign() == 0 {
			// the matching add spilled into the overflow, which a concurrent
			// remove has since drained into the field
			continue
		}
		next := s.WithForeign(s.Foreign() - 1)
		if c.cas(s, next) {
			return next
		}
	}
}

// foreignCount returns the exact number of foreign pollers.
func (c *threadsCoordinator) foreignCount() int {
	return c.load().Foreign() + int(c.foreignOverflow.Load())
}

// markDone sets the done flag, then notifies every sleeper that has not yet
// been notified, so no worker stays parked. Returns false if already done.
func (c *threadsCoordinator) markDone() bool {
	var first bool
	c.update(func(s ThreadsState) ThreadsState {
		first = !s.Done()
		return s.WithDone()
	})
	for {
		s := c.load()
		if s.Notified() >= s.Sleeping() {
			break
		}
		c.tryNotify(s)
	}
	return first
}
