package executor

import (
	"errors"
)

// IOEvents represents the type of I/O events to wait for, or that occurred.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// Standard fd poller errors.
var (
	ErrFDAlreadyRegistered = errors.New("executor: fd already registered")
	ErrFDNotRegistered     = errors.New("executor: fd not registered")
	ErrPollerClosed        = errors.New("executor: fd poller closed")
	ErrFDUnsupported       = errors.New("executor: fd polling is not supported on this platform")
)

// packFDEvent encodes an fd readiness event as packet data.
func packFDEvent(fd int, events IOEvents) uint64 {
	return uint64(uint32(fd))<<32 | uint64(events)
}

func unpackFDEvent(data uint64) (fd int, events IOEvents) {
	return int(int32(data >> 32)), IOEvents(uint32(data))
}
