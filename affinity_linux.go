//go:build linux

package executor

import (
	"golang.org/x/sys/unix"
)

// setThreadAffinity pins the calling OS thread, which must be locked to the
// calling goroutine, to cpu.
func setThreadAffinity(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
