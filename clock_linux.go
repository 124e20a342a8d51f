//go:build linux

package executor

import (
	"golang.org/x/sys/unix"
)

var bootStart = readBootTime()

func readBootTime() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		panic(&LogicError{Cause: err, Message: "clock_gettime(CLOCK_BOOTTIME) failed"})
	}
	return ts.Nano()
}

// realBootNow reads CLOCK_BOOTTIME relative to package initialization, and so
// includes time spent suspended.
func realBootNow() BootInstant {
	return BootInstant(readBootTime() - bootStart)
}
