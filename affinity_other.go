//go:build !linux

package executor

import (
	"errors"
)

var errAffinityUnsupported = errors.New("executor: thread affinity is not supported on this platform")

func setThreadAffinity(cpu int) error {
	return errAffinityUnsupported
}
