//go:build linux

package executor

import (
	"golang.org/x/sys/unix"
)

func newPortSignal() (portSignal, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return portSignal{}, err
	}
	return portSignal{rfd: fd, wfd: fd}, nil
}
