package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiverMap_Keys(t *testing.T) {
	t.Parallel()
	m := newReceiverMap()
	noop := PacketReceiverFunc(func(Packet) {})

	k1 := m.register(noop)
	k2 := m.register(noop)
	assert.NotEqual(t, TaskReadyKey, k1)
	assert.NotEqual(t, TaskReadyKey, k2)
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, 2, m.Len())

	_, ok := m.lookup(k1)
	assert.True(t, ok)
	_, ok = m.lookup(TaskReadyKey)
	assert.False(t, ok)
	_, ok = m.lookup(1 << 40)
	assert.False(t, ok)
}

// TestReceiverMap_SlotReuse verifies a reused slot gets a new generation, so
// a packet addressed to the previous occupant is not delivered to the new
// one.
func TestReceiverMap_SlotReuse(t *testing.T) {
	t.Parallel()
	m := newReceiverMap()
	var calls []string
	k1 := m.register(PacketReceiverFunc(func(Packet) { calls = append(calls, "first") }))
	e1, ok := m.lookup(k1)
	require.True(t, ok)
	m.deregister(k1)

	k2 := m.register(PacketReceiverFunc(func(Packet) { calls = append(calls, "second") }))
	slot1, gen1 := splitReceiverKey(k1)
	slot2, gen2 := splitReceiverKey(k2)
	assert.Equal(t, slot1, slot2)
	assert.Equal(t, gen1+1, gen2)

	_, ok = m.lookup(k1)
	assert.False(t, ok)
	// an entry looked up before deregistration is no longer delivered to
	assert.False(t, e1.deliver(Packet{Key: k1}))

	e2, ok := m.lookup(k2)
	require.True(t, ok)
	assert.True(t, e2.deliver(Packet{Key: k2}))
	assert.Equal(t, []string{"second"}, calls)
}

func TestReceiverMap_DeregisterUnknownPanics(t *testing.T) {
	t.Parallel()
	m := newReceiverMap()
	k := m.register(PacketReceiverFunc(func(Packet) {}))
	m.deregister(k)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		var logicErr *LogicError
		require.ErrorAs(t, r.(error), &logicErr)
		assert.Contains(t, logicErr.Message, "unknown receiver key")
	}()
	m.deregister(k)
}

func TestReceiverMap_Teardown(t *testing.T) {
	t.Parallel()
	m := newReceiverMap()
	k := m.register(PacketReceiverFunc(func(Packet) {}))
	e, _ := m.lookup(k)
	m.register(PacketReceiverFunc(func(Packet) {}))

	assert.Equal(t, 2, m.close())
	assert.Equal(t, 0, m.close())
	assert.False(t, e.deliver(Packet{}))

	// deregistration after teardown is tolerated
	assert.NotPanics(t, func() { m.deregister(k) })
	assert.NotPanics(t, func() { m.deregister(12345) })

	assert.PanicsWithError(t, "executor: receiver registered after teardown: "+ErrExecutorClosed.Error(), func() {
		m.register(PacketReceiverFunc(func(Packet) {}))
	})
}

func TestRegistration_PostDispatches(t *testing.T) {
	t.Parallel()
	ex, err := NewTestExecutor(WithFakeTime(true))
	require.NoError(t, err)
	defer ex.Close()
	h := ex.Handle()

	var got []uint64
	reg := h.RegisterReceiver(PacketReceiverFunc(func(pkt Packet) {
		got = append(got, pkt.Data)
	}))
	require.NoError(t, reg.Post(1))
	require.NoError(t, reg.Post(2))

	_, ok, err := RunUntilStalled(ex, pending[struct{}]())
	require.NoError(t, err)
	require.False(t, ok)
	assert.Equal(t, []uint64{1, 2}, got)

	// packets for a closed registration are dropped
	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())
	require.NoError(t, reg.Post(3))
	_, _, err = RunUntilStalled(ex, pending[struct{}]())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, got)
	assert.Equal(t, uint64(1), h.Stats().PacketsDropped)
	assert.Equal(t, uint64(2), h.Stats().PacketsDispatched)
}

func TestReceiverMap_DeregisterDuringDelivery(t *testing.T) {
	t.Parallel()
	m := newReceiverMap()

	var calls int
	var key uint64
	key = m.register(PacketReceiverFunc(func(Packet) {
		calls++
		// a receiver may deregister itself while its delivery is underway
		m.deregister(key)
	}))

	first, ok := m.lookup(key)
	require.True(t, ok)
	stale, ok := m.lookup(key)
	require.True(t, ok)

	assert.True(t, first.deliver(Packet{Key: key}))
	assert.Equal(t, 1, calls)

	// fetched before deregister, refused after it
	assert.False(t, stale.deliver(Packet{Key: key}))
	assert.Equal(t, 1, calls)
	_, ok = m.lookup(key)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}
