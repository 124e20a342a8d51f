package executor

import (
	"slices"
	"sync"
	"sync/atomic"
)

const (
	sizeOfCacheLine = 64

	// defaultReadyQueueCapacity is the default ring size of the readyQueue.
	// It must be a power of 2.
	defaultReadyQueueCapacity = 4096

	// overflowCompactThreshold is the threshold for compacting the overflow
	// slice, once more than this many items were read from its head.
	overflowCompactThreshold = 512
)

// readyQueue is the shared queue of runnable tasks.
//
// Concurrency Model: MPMC (Multiple Producers, Multiple Consumers)
//   - Push: any goroutine
//   - Pop: any worker, or a foreign goroutine via EHandle.PollTasks
//
// The ring is a bounded Vyukov queue: each cell carries a sequence number that
// tells producers and consumers whether the slot is free or published. When
// the ring is full, tasks spill to a mutex-protected overflow slice. While the
// overflow holds items, pushes also go to the overflow, so ring items are
// always older than overflow items (FIFO).
//
// Waking sleepers is NOT the queue's responsibility.
type readyQueue struct { // betteralign:ignore
	_     [sizeOfCacheLine]byte
	head  atomic.Uint64
	_     [sizeOfCacheLine - 8]byte
	tail  atomic.Uint64
	_     [sizeOfCacheLine - 8]byte
	mask  uint64
	cells []readyCell

	overflowMu      sync.Mutex
	overflow        []*task
	overflowHead    int
	overflowLen     atomic.Int64 // tracks len(overflow)-overflowHead
	overflowPending atomic.Bool
}

type readyCell struct {
	sequence atomic.Uint64
	task     *task
}

// newReadyQueue creates a queue, with the ring capacity rounded up to a power
// of two.
func newReadyQueue(capacity int) *readyQueue {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &readyQueue{
		mask:  uint64(size - 1),
		cells: make([]readyCell, size),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Push adds a task to the back of the queue. Never blocks.
func (q *readyQueue) Push(t *task) {
	if q.overflowPending.Load() {
		q.overflowMu.Lock()
		if len(q.overflow)-q.overflowHead > 0 {
			q.overflow = append(q.overflow, t)
			q.overflowLen.Add(1)
			q.overflowMu.Unlock()
			return
		}
		q.overflowMu.Unlock()
	}

	if q.pushRing(t) {
		return
	}

	q.overflowMu.Lock()
	q.overflow = append(q.overflow, t)
	q.overflowLen.Add(1)
	q.overflowPending.Store(true)
	q.overflowMu.Unlock()
}

func (q *readyQueue) pushRing(t *task) bool {
	for {
		tail := q.tail.Load()
		c := &q.cells[tail&q.mask]
		seq := c.sequence.Load()
		switch dif := int64(seq) - int64(tail); {
		case dif == 0:
			if q.tail.CompareAndSwap(tail, tail+1) {
				c.task = t
				c.sequence.Store(tail + 1) // publish
				return true
			}
		case dif < 0:
			return false // full
		}
		// tail moved, retry
	}
}

// Pop removes the task at the front of the queue, returning false if empty.
// Never blocks.
func (q *readyQueue) Pop() (*task, bool) {
	if t, ok := q.popRing(); ok {
		return t, true
	}

	if !q.overflowPending.Load() {
		return nil, false
	}

	q.overflowMu.Lock()
	defer q.overflowMu.Unlock()

	if len(q.overflow)-q.overflowHead == 0 {
		q.overflowPending.Store(false)
		return nil, false
	}

	t := q.overflow[q.overflowHead]
	q.overflow[q.overflowHead] = nil // Zero out for GC
	q.overflowHead++
	q.overflowLen.Add(-1)

	if q.overflowHead > len(q.overflow)/2 && q.overflowHead > overflowCompactThreshold {
		n := copy(q.overflow, q.overflow[q.overflowHead:])
		q.overflow = slices.Delete(q.overflow, n, len(q.overflow))
		q.overflowHead = 0
	}

	if q.overflowHead >= len(q.overflow) {
		q.overflow = q.overflow[:0]
		q.overflowHead = 0
		q.overflowPending.Store(false)
	}

	return t, true
}

func (q *readyQueue) popRing() (*task, bool) {
	for {
		head := q.head.Load()
		c := &q.cells[head&q.mask]
		seq := c.sequence.Load()
		switch dif := int64(seq) - int64(head+1); {
		case dif == 0:
			if q.head.CompareAndSwap(head, head+1) {
				t := c.task
				c.task = nil
				c.sequence.Store(head + q.mask + 1) // free for the next lap
				return t, true
			}
		case dif < 0:
			return nil, false // empty, or the producer has not published yet
		}
		// head moved, retry
	}
}

// IsEmpty reports whether the queue holds no tasks. A task claimed by a
// producer but not yet published counts as present, which is what the sleep
// recheck needs.
func (q *readyQueue) IsEmpty() bool {
	if q.tail.Load() != q.head.Load() {
		return false
	}
	return q.overflowLen.Load() == 0
}

// Len returns the approximate number of queued tasks.
func (q *readyQueue) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	n := 0
	if tail > head {
		n = int(tail - head)
	}
	return n + int(q.overflowLen.Load())
}
