package executor

import (
	"container/heap"
	"sync"
	"time"
)

// ClockKind selects the clock a timer is measured against.
type ClockKind uint8

const (
	// MonotonicClock does not advance while the system is suspended.
	MonotonicClock ClockKind = iota
	// BootClock includes time spent suspended.
	BootClock

	numClocks
)

// String returns a human-readable representation of the clock kind.
func (k ClockKind) String() string {
	switch k {
	case MonotonicClock:
		return "monotonic"
	case BootClock:
		return "boot"
	default:
		return "unknown"
	}
}

type timerEntry struct {
	waker    *Waker
	deadline int64
	seq      uint64
	index    int // position in its heap, -1 while unscheduled
	kind     ClockKind
	fired    bool
}

// timerHeap is a min-heap of timer entries, ordered by deadline, then by
// insertion order
type timerHeap []*timerEntry

// Implement heap.Interface for timerHeap
func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timers holds one heap per clock. On real clocks, a runtime timer armed
// for the earliest deadline posts a packet to the executor's port, and the
// packet's receiver fires the expired entries. On fake clocks entries fire
// synchronously whenever the clock is changed.
type timers struct {
	clock *clock

	// post queues a timer packet for the given clock, real clocks only
	post func(kind ClockKind)

	mu     sync.Mutex
	heaps  [numClocks]timerHeap
	armed  [numClocks]*time.Timer
	seq    uint64
	closed bool
}

func newTimers(c *clock, post func(kind ClockKind)) *timers {
	return &timers{clock: c, post: post}
}

// ReceivePacket implements [PacketReceiver], for the packets queued by post.
func (x *timers) ReceivePacket(pkt Packet) {
	if kind := ClockKind(pkt.Data); kind < numClocks {
		x.fire(kind)
	}
}

// poll reports whether e fired, otherwise (re)scheduling it to wake w.
func (x *timers) poll(e *timerEntry, w *Waker) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e.fired {
		return true
	}
	if e.deadline <= x.clock.read(e.kind) {
		if e.index >= 0 {
			heap.Remove(&x.heaps[e.kind], e.index)
		}
		e.fired = true
		e.waker = nil
		return true
	}
	e.waker = w
	if e.index < 0 && !x.closed {
		x.push(e)
	}
	return false
}

// push schedules e, which must not be scheduled. Must hold mu.
func (x *timers) push(e *timerEntry) {
	x.seq++
	e.seq = x.seq
	h := &x.heaps[e.kind]
	heap.Push(h, e)
	if (*h)[0] == e {
		x.arm(e.kind)
	}
}

// cancel unschedules e, if it is scheduled.
func (x *timers) cancel(e *timerEntry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e.index >= 0 {
		heap.Remove(&x.heaps[e.kind], e.index)
	}
	e.waker = nil
}

// reset moves e to a new deadline. An entry with a pending waker stays
// scheduled.
func (x *timers) reset(e *timerEntry, deadline int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	scheduled := e.index >= 0
	if scheduled {
		heap.Remove(&x.heaps[e.kind], e.index)
	}
	e.deadline = deadline
	e.fired = false
	if scheduled && !x.closed {
		x.push(e)
	}
}

// fire wakes every entry of the given clock whose deadline passed, and
// re-arms. Returns the number of entries fired. Never blocks.
func (x *timers) fire(kind ClockKind) int {
	x.mu.Lock()
	now := x.clock.read(kind)
	h := &x.heaps[kind]
	var wakers []*Waker
	for h.Len() != 0 && (*h)[0].deadline <= now {
		e := heap.Pop(h).(*timerEntry)
		e.fired = true
		wakers = append(wakers, e.waker)
		e.waker = nil
	}
	x.arm(kind)
	x.mu.Unlock()
	for _, w := range wakers {
		w.Wake()
	}
	return len(wakers)
}

// arm points the runtime timer for kind at the earliest deadline. Must hold
// mu.
func (x *timers) arm(kind ClockKind) {
	if x.clock.fake || x.post == nil || x.closed {
		return
	}
	h := x.heaps[kind]
	if len(h) == 0 {
		if x.armed[kind] != nil {
			x.armed[kind].Stop()
		}
		return
	}
	d := time.Duration(h[0].deadline - x.clock.read(kind))
	if d < 0 {
		d = 0
	}
	if x.armed[kind] == nil {
		x.armed[kind] = time.AfterFunc(d, func() { x.post(kind) })
		return
	}
	x.armed[kind].Reset(d)
}

// next returns the earliest deadline across both clocks, expressed on the
// monotonic clock.
func (x *timers) next() (MonotonicInstant, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var (
		best MonotonicInstant
		ok   bool
	)
	if h := x.heaps[MonotonicClock]; len(h) != 0 {
		best, ok = MonotonicInstant(h[0].deadline), true
	}
	if h := x.heaps[BootClock]; len(h) != 0 {
		offset := int64(x.clock.bootNow()) - int64(x.clock.now())
		if v := MonotonicInstant(h[0].deadline - offset); !ok || v < best {
			best, ok = v, true
		}
	}
	return best, ok
}

// Len returns the number of scheduled timers.
func (x *timers) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.heaps[MonotonicClock]) + len(x.heaps[BootClock])
}

func (x *timers) close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	x.closed = true
	for kind := range x.heaps {
		if x.armed[kind] != nil {
			x.armed[kind].Stop()
		}
		for _, e := range x.heaps[kind] {
			e.index = -1
			e.waker = nil
		}
		x.heaps[kind] = nil
	}
}

// Timer is a [Future] that completes once its deadline has passed on its
// clock. It is scheduled on first poll, and fires exactly once per deadline.
type Timer struct {
	timers *timers
	entry  timerEntry
}

// NewTimer returns a timer for a deadline on the monotonic clock.
func NewTimer(h *EHandle, deadline MonotonicInstant) *Timer {
	return newTimer(h, MonotonicClock, int64(deadline))
}

// NewBootTimer returns a timer for a deadline on the boot clock.
func NewBootTimer(h *EHandle, deadline BootInstant) *Timer {
	return newTimer(h, BootClock, int64(deadline))
}

// After returns a monotonic timer that fires d from now.
func After(h *EHandle, d time.Duration) *Timer {
	return NewTimer(h, h.Now().Add(d))
}

func newTimer(h *EHandle, kind ClockKind, deadline int64) *Timer {
	return &Timer{
		timers: h.ex.timers,
		entry:  timerEntry{deadline: deadline, index: -1, kind: kind},
	}
}

// Poll implements [Future].
func (x *Timer) Poll(cx *Context) (struct{}, bool) {
	return struct{}{}, x.timers.poll(&x.entry, cx.Waker())
}

// Cancel unschedules the timer. A cancelled timer is rescheduled if polled
// again.
func (x *Timer) Cancel() {
	x.timers.cancel(&x.entry)
}

// Reset moves the deadline to d from now, on the timer's clock, re-arming a
// timer that already fired.
func (x *Timer) Reset(d time.Duration) {
	x.timers.reset(&x.entry, x.timers.clock.read(x.entry.kind)+int64(d))
}

// Kind returns the clock the timer is measured against.
func (x *Timer) Kind() ClockKind {
	return x.entry.kind
}
