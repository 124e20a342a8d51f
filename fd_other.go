//go:build !linux

package executor

// FDPoller delivers file descriptor readiness to tasks. It is only
// implemented on linux.
type FDPoller struct{}

// FDHandle is an fd registered with an [FDPoller].
type FDHandle struct {
	fd int
}

// NewFDPoller returns ErrFDUnsupported.
func NewFDPoller(h *EHandle) (*FDPoller, error) {
	return nil, ErrFDUnsupported
}

// Register returns ErrFDUnsupported.
func (p *FDPoller) Register(fd int) (*FDHandle, error) {
	return nil, ErrFDUnsupported
}

// ReceivePacket implements [PacketReceiver].
func (p *FDPoller) ReceivePacket(pkt Packet) {}

// Close is a no-op.
func (p *FDPoller) Close() error {
	return nil
}

// FD returns the file descriptor.
func (x *FDHandle) FD() int {
	return x.fd
}

// Ready returns a future that completes immediately with EventError.
func (x *FDHandle) Ready(events IOEvents) Future[IOEvents] {
	return Ready(EventError)
}

// Close is a no-op.
func (x *FDHandle) Close() error {
	return nil
}
