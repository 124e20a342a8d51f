package executor

import (
	"sync"
	"sync/atomic"
)

// PacketReceiver handles packets delivered to the key it was registered
// under. ReceivePacket runs on a worker goroutine and must not block; it is
// responsible for waking any tasks the packet makes ready.
type PacketReceiver interface {
	ReceivePacket(pkt Packet)
}

// PacketReceiverFunc adapts a function to the [PacketReceiver] interface.
type PacketReceiverFunc func(pkt Packet)

// ReceivePacket implements [PacketReceiver].
func (f PacketReceiverFunc) ReceivePacket(pkt Packet) {
	f(pkt)
}

// receiverMap routes packets by key.
//
// Keys pack a slot index (low 32 bits, never 0) and the slot's generation
// (high 32 bits). Slots are reused only after deregistration, with the
// generation bumped, so a packet still in flight for the previous occupant
// misses and is dropped.
type receiverMap struct {
	mu     sync.Mutex
	slots  []receiverSlot // slots[0] is unused, so no key is TaskReadyKey
	free   []uint32
	live   int
	closed bool
}

type receiverSlot struct {
	entry      *receiverEntry
	generation uint32
}

// receiverEntry is shared with in-flight dispatches. Once deregister
// returns, lookup misses and deliver refuses an entry fetched earlier. A
// delivery that already passed the closed check may still be running, and
// deregister does not wait for it, so a receiver may deregister itself from
// ReceivePacket.
type receiverEntry struct {
	receiver PacketReceiver
	closed   atomic.Bool
}

func (e *receiverEntry) deliver(pkt Packet) bool {
	if e.closed.Load() {
		return false
	}
	e.receiver.ReceivePacket(pkt)
	return true
}

func makeReceiverKey(slot, generation uint32) uint64 {
	return uint64(generation)<<32 | uint64(slot)
}

func splitReceiverKey(key uint64) (slot, generation uint32) {
	return uint32(key), uint32(key >> 32)
}

func newReceiverMap() *receiverMap {
	return &receiverMap{slots: make([]receiverSlot, 1)}
}

// register allocates a key for r. Panics after teardown.
func (m *receiverMap) register(r PacketReceiver) uint64 {
	if r == nil {
		panic("executor: nil packet receiver")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		logicPanic(ErrExecutorClosed, "receiver registered after teardown")
	}
	var slot uint32
	if n := len(m.free); n != 0 {
		slot = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		slot = uint32(len(m.slots))
		m.slots = append(m.slots, receiverSlot{})
	}
	s := &m.slots[slot]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.entry = &receiverEntry{receiver: r}
	m.live++
	return makeReceiverKey(slot, s.generation)
}

// lookup returns the entry for key, if it is still registered.
func (m *receiverMap) lookup(key uint64) (*receiverEntry, bool) {
	slot, generation := splitReceiverKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot == 0 || int(slot) >= len(m.slots) {
		return nil, false
	}
	s := &m.slots[slot]
	if s.entry == nil || s.generation != generation {
		return nil, false
	}
	return s.entry, true
}

// deregister frees key. It is a no-op after teardown, and panics for a key
// that is not registered on a live map.
func (m *receiverMap) deregister(key uint64) {
	slot, generation := splitReceiverKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if slot == 0 || int(slot) >= len(m.slots) || m.slots[slot].entry == nil || m.slots[slot].generation != generation {
		logicPanic(nil, "deregistered unknown receiver key %#x", key)
	}
	m.slots[slot].entry.closed.Store(true)
	m.slots[slot].entry = nil
	m.free = append(m.free, slot)
	m.live--
}

// Len returns the number of registered receivers.
func (m *receiverMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// close tears the map down, returning the number of receivers that were
// still registered.
func (m *receiverMap) close() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	m.closed = true
	n := m.live
	for _, s := range m.slots {
		if s.entry != nil {
			s.entry.closed.Store(true)
		}
	}
	m.slots = m.slots[:1]
	m.free = nil
	m.live = 0
	return n
}

// Registration is the guard returned by [EHandle.RegisterReceiver]. Close
// deregisters the receiver, after which no new dispatch to it starts. A
// ReceivePacket call already underway on another worker is not waited for.
type Registration struct {
	ex   *Executor
	key  uint64
	once sync.Once
}

// Key returns the port key packets for the receiver must carry.
func (x *Registration) Key() uint64 {
	return x.key
}

// Post queues a packet for the receiver on the executor's port. It is safe to
// call from any goroutine, and returns ErrPortClosed after teardown.
func (x *Registration) Post(data uint64) error {
	return x.ex.port.Queue(Packet{Key: x.key, Data: data})
}

// Close deregisters the receiver. Safe to call more than once.
func (x *Registration) Close() error {
	x.once.Do(func() {
		x.ex.receivers.deregister(x.key)
	})
	return nil
}
