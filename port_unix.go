//go:build unix

package executor

import (
	"time"

	"golang.org/x/sys/unix"
)

// portSignal is a waiter's wake fd pair. On Linux both ends are the same
// eventfd, elsewhere it is a self-pipe.
type portSignal struct {
	rfd, wfd int
}

func (s portSignal) notify() {
	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(s.wfd, buf[:])
}

// wait blocks until notified, consuming every pending notification. A
// negative timeout waits indefinitely. Returns false if the timeout elapsed
// first.
func (s portSignal) wait(timeout time.Duration) (bool, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	fds := []unix.PollFd{{Fd: int32(s.rfd), Events: unix.POLLIN}}
	for {
		ms := -1
		if timeout >= 0 {
			// round up, so the poll never returns before the deadline
			ms = int((max(time.Until(deadline), 0) + time.Millisecond - 1) / time.Millisecond)
		}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			if timeout >= 0 && !time.Now().Before(deadline) {
				return false, nil
			}
			continue
		}
		ok, err := s.drain()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
}

// drain reads until the fd would block. Returns true if anything was read.
func (s portSignal) drain() (bool, error) {
	var (
		buf  [8]byte
		read bool
	)
	for {
		_, err := unix.Read(s.rfd, buf[:])
		switch err {
		case nil:
			read = true
		case unix.EINTR:
		case unix.EAGAIN:
			return read, nil
		default:
			return false, err
		}
	}
}

func (s portSignal) close() {
	_ = unix.Close(s.rfd)
	if s.wfd != s.rfd {
		_ = unix.Close(s.wfd)
	}
}
