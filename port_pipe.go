//go:build unix && !linux

package executor

import (
	"golang.org/x/sys/unix"
)

func newPortSignal() (portSignal, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return portSignal{}, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return portSignal{}, err
		}
	}
	return portSignal{rfd: fds[0], wfd: fds[1]}, nil
}
