package executor

import (
	"runtime"
	"slices"
	"sync"
	"time"
)

// TaskReadyKey is the sentinel packet key used for worker wake
// notifications. It is never allocated to a receiver.
const TaskReadyKey uint64 = 0

// Packet is the unit of delivery on a [Port].
type Packet struct {
	// Key routes the packet, either TaskReadyKey or a receiver key.
	Key uint64
	// Data is an opaque receiver-defined payload.
	Data uint64
}

// Port is the wait/wake primitive shared by the workers of an executor. Each
// queued packet is delivered to exactly one waiter. Waiters are served in
// FIFO order, and a packet queued while a goroutine is blocked in Wait is
// handed to it directly.
//
// The packet buffer and the waiter list share a mutex: ports see one
// operation per sleep/wake or receiver event, not per task poll. A blocked
// waiter parks on its own wake signal (an eventfd on Linux), which is only
// ever notified under mu.
type Port struct {
	mu      sync.Mutex
	packets packetQueue
	waiters []*portWaiter
	idle    []*portWaiter // reusable, each owns an open signal
	closed  bool
}

type portWaiterState uint8

const (
	waiterPending portWaiterState = iota
	waiterDelivered
	waiterClosed
)

// portWaiter is a parked Wait call. Fields other than signal are guarded by
// the port's mu. A waiter removed from the list by Queue or Close has been
// notified exactly once, and must consume that notification before reuse.
type portWaiter struct {
	signal  portSignal
	cleanup runtime.Cleanup // closes signal if the port is dropped unclosed
	pkt     Packet
	state   portWaiterState
}

func (w *portWaiter) close() {
	w.cleanup.Stop()
	w.signal.close()
}

// NewPort creates an empty port.
func NewPort() *Port {
	return &Port{}
}

// Queue delivers a packet, never blocking. Returns ErrPortClosed after Close.
func (p *Port) Queue(pkt Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPortClosed
	}
	if len(p.waiters) != 0 {
		w := p.waiters[0]
		p.waiters[0] = nil
		p.waiters = p.waiters[1:]
		w.pkt = pkt
		w.state = waiterDelivered
		w.signal.notify()
		return nil
	}
	p.packets.Push(pkt)
	return nil
}

// Wait blocks until a packet is available, returning it. A negative timeout
// waits indefinitely, zero polls without blocking. Returns ErrTimedOut if the
// timeout elapsed, ErrPortClosed, or the error of the underlying wake signal.
func (p *Port) Wait(timeout time.Duration) (Packet, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Packet{}, ErrPortClosed
	}
	if pkt, ok := p.packets.Pop(); ok {
		p.mu.Unlock()
		return pkt, nil
	}
	if timeout == 0 {
		p.mu.Unlock()
		return Packet{}, ErrTimedOut
	}
	w, err := p.acquireWaiterLocked()
	if err != nil {
		p.mu.Unlock()
		return Packet{}, err
	}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	signalled, err := w.signal.wait(timeout)
	if !signalled {
		p.mu.Lock()
		if i := slices.Index(p.waiters, w); i >= 0 {
			p.waiters = slices.Delete(p.waiters, i, i+1)
			if err != nil {
				w.close()
			} else {
				p.releaseWaiterLocked(w)
			}
			p.mu.Unlock()
			if err == nil {
				err = ErrTimedOut
			}
			return Packet{}, err
		}
		p.mu.Unlock()

		// lost the race with Queue or Close, which already notified w
		if err == nil {
			_, err = w.signal.wait(-1)
		}
	}

	p.mu.Lock()
	pkt, state := w.pkt, w.state
	if err != nil {
		// the notification may be unconsumed
		w.close()
	} else {
		p.releaseWaiterLocked(w)
	}
	p.mu.Unlock()

	if state == waiterClosed {
		return Packet{}, ErrPortClosed
	}
	return pkt, nil
}

// acquireWaiterLocked reuses an idle waiter, or creates one.
func (p *Port) acquireWaiterLocked() (*portWaiter, error) {
	if n := len(p.idle); n != 0 {
		w := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		return w, nil
	}
	signal, err := newPortSignal()
	if err != nil {
		return nil, err
	}
	w := &portWaiter{signal: signal}
	w.cleanup = runtime.AddCleanup(w, portSignal.close, signal)
	return w, nil
}

// releaseWaiterLocked returns w to the idle list, or closes its signal once
// the port is closed.
func (p *Port) releaseWaiterLocked(w *portWaiter) {
	if p.closed {
		w.close()
		return
	}
	w.pkt = Packet{}
	w.state = waiterPending
	p.idle = append(p.idle, w)
}

// Len returns the number of buffered packets.
func (p *Port) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.packets.Len()
}

// Close wakes every waiter with ErrPortClosed, and drops buffered packets.
// Idempotent.
func (p *Port) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, w := range p.waiters {
		w.state = waiterClosed
		w.signal.notify()
	}
	p.waiters = nil
	for _, w := range p.idle {
		w.close()
	}
	p.idle = nil
	for {
		if _, ok := p.packets.Pop(); !ok {
			break
		}
	}
}
