//go:build linux

package executor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// FDPoller delivers file descriptor readiness to tasks, through the
// executor's port. A goroutine blocks in epoll_wait, and posts one packet per
// event to the poller's receiver key; the receiver then wakes the waiting
// task on a worker. Registrations are one-shot, and re-armed by each wait.
type FDPoller struct {
	reg    *Registration
	done   chan struct{}
	fds    map[int]*FDHandle
	mu     sync.Mutex
	epfd   int
	wakeFd int
	failed bool // guarded by mu, set once run has stopped on an epoll error
	closed atomic.Bool
}

// FDHandle is an fd registered with an [FDPoller].
type FDHandle struct {
	poller   *FDPoller
	waker    *Waker
	fd       int
	interest IOEvents // armed with epoll, zero while disarmed
	ready    IOEvents // delivered, not yet consumed
	added    bool
	closed   bool
}

// NewFDPoller creates an fd poller, registered as a receiver with h.
func NewFDPoller(h *EHandle) (*FDPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}
	p := &FDPoller{
		done:   make(chan struct{}),
		fds:    make(map[int]*FDHandle),
		epfd:   epfd,
		wakeFd: wakeFd,
	}
	p.reg = h.RegisterReceiver(p)
	go p.run()
	return p, nil
}

// Register starts tracking fd, which must stay open until the handle is
// closed.
func (p *FDPoller) Register(fd int) (*FDHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() || p.failed {
		return nil, ErrPollerClosed
	}
	if _, ok := p.fds[fd]; ok {
		return nil, ErrFDAlreadyRegistered
	}
	fh := &FDHandle{poller: p, fd: fd}
	p.fds[fd] = fh
	return fh, nil
}

func (p *FDPoller) run() {
	defer close(p.done)
	var events [64]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			p.fail(err)
			return
		}
		for i := range n {
			fd := int(events[i].Fd)
			if fd == p.wakeFd {
				if p.closed.Load() {
					return
				}
				continue
			}
			if err := p.reg.Post(packFDEvent(fd, epollToEvents(events[i].Events))); err != nil {
				return
			}
		}
	}
}

// fail stops tracking every handle after an unrecoverable epoll error.
// Pending Ready futures complete with EventError. Close must still be called
// to release the poller.
func (p *FDPoller) fail(err error) {
	p.reg.ex.logPollerFailure(err)
	p.mu.Lock()
	p.failed = true
	wakers := p.closeHandlesLocked()
	p.mu.Unlock()
	for _, w := range wakers {
		w.Wake()
	}
}

// closeHandlesLocked marks every handle closed, returning the wakers of
// those with a pending Ready.
func (p *FDPoller) closeHandlesLocked() []*Waker {
	var wakers []*Waker
	for _, fh := range p.fds {
		fh.closed = true
		if fh.waker != nil {
			wakers = append(wakers, fh.waker)
			fh.waker = nil
		}
	}
	clear(p.fds)
	return wakers
}

// ReceivePacket implements [PacketReceiver].
func (p *FDPoller) ReceivePacket(pkt Packet) {
	fd, events := unpackFDEvent(pkt.Data)
	p.mu.Lock()
	fh, ok := p.fds[fd]
	if !ok {
		p.mu.Unlock()
		return
	}
	fh.ready |= events
	fh.interest = 0
	w := fh.waker
	fh.waker = nil
	p.mu.Unlock()
	w.Wake()
}

// Close stops the poller, and deregisters its receiver. Handles become
// unusable, and pending Ready futures complete with EventError.
func (p *FDPoller) Close() error {
	p.mu.Lock()
	if !p.closed.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return nil
	}
	wakers := p.closeHandlesLocked()
	p.mu.Unlock()
	for _, w := range wakers {
		w.Wake()
	}

	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(p.wakeFd, buf[:])
	<-p.done

	err := p.reg.Close()
	if e := unix.Close(p.wakeFd); err == nil {
		err = e
	}
	if e := unix.Close(p.epfd); err == nil {
		err = e
	}
	return err
}

// FD returns the file descriptor.
func (x *FDHandle) FD() int {
	return x.fd
}

// Ready returns a future that completes with the events that occurred, once
// fd is ready for any of events. Errors and hangups are always reported.
func (x *FDHandle) Ready(events IOEvents) Future[IOEvents] {
	return FutureFunc[IOEvents](func(cx *Context) (IOEvents, bool) {
		return x.poll(cx, events)
	})
}

func (x *FDHandle) poll(cx *Context, events IOEvents) (IOEvents, bool) {
	p := x.poller
	p.mu.Lock()
	defer p.mu.Unlock()
	if x.closed {
		return EventError, true
	}
	if got := x.ready & (events | EventError | EventHangup); got != 0 {
		x.ready &^= got
		return got, true
	}
	x.waker = cx.Waker()
	if want := x.interest | events; want != x.interest {
		if err := x.arm(want); err != nil {
			x.waker = nil
			return EventError, true
		}
	}
	return 0, false
}

// arm (re)registers the fd with epoll, one-shot. Must hold the poller's mu.
func (x *FDHandle) arm(events IOEvents) error {
	ev := &unix.EpollEvent{
		Events: eventsToEpoll(events) | unix.EPOLLONESHOT,
		Fd:     int32(x.fd),
	}
	op := unix.EPOLL_CTL_MOD
	if !x.added {
		op = unix.EPOLL_CTL_ADD
	}
	if err := unix.EpollCtl(x.poller.epfd, op, x.fd, ev); err != nil {
		return err
	}
	x.added = true
	x.interest = events
	return nil
}

// Close stops tracking the fd. It does not close the fd.
func (x *FDHandle) Close() error {
	p := x.poller
	p.mu.Lock()
	defer p.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	delete(p.fds, x.fd)
	if !x.added {
		return nil
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, x.fd, nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
		return err
	}
	return nil
}

// eventsToEpoll converts IOEvents to epoll event flags.
func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to IOEvents.
func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
