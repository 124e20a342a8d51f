package executor

import (
	"sync"
)

// packetChunkSize is the number of packets per node in the packetQueue
// linked list. 64 packets * 16 bytes = 1KB per chunk.
const packetChunkSize = 64

// packetQueue is a chunked linked-list FIFO of packets.
//
// Thread Safety: NOT thread-safe, the caller must hold the owning Port's
// mutex.
type packetQueue struct {
	head   *packetChunk
	tail   *packetChunk
	length int
}

// packetChunkPool prevents GC thrashing under high packet rates.
var packetChunkPool = sync.Pool{
	New: func() any {
		return &packetChunk{}
	},
}

// packetChunk is a fixed-size node, using readPos/pos cursors for O(1)
// push/pop without shifting.
type packetChunk struct {
	packets [packetChunkSize]Packet
	next    *packetChunk
	readPos int // First unread slot
	pos     int // First unused slot
}

func newPacketChunk() *packetChunk {
	c := packetChunkPool.Get().(*packetChunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

func returnPacketChunk(c *packetChunk) {
	c.pos = 0
	c.readPos = 0
	c.next = nil
	packetChunkPool.Put(c)
}

// Push adds a packet to the back of the queue.
func (q *packetQueue) Push(p Packet) {
	if q.tail == nil {
		q.tail = newPacketChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.packets) {
		next := newPacketChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.packets[q.tail.pos] = p
	q.tail.pos++
	q.length++
}

// Pop removes and returns the packet at the front, false if empty.
func (q *packetQueue) Pop() (Packet, bool) {
	if q.head == nil || q.head.readPos >= q.head.pos {
		return Packet{}, false
	}

	p := q.head.packets[q.head.readPos]
	q.head.readPos++
	q.length--

	// If the chunk is exhausted, free it or reset the cursors
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
		} else {
			old := q.head
			q.head = q.head.next
			returnPacketChunk(old)
		}
	}

	return p, true
}

// Len returns the queue length.
func (q *packetQueue) Len() int {
	return q.length
}
