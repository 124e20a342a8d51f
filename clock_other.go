//go:build !linux

package executor

import (
	"time"
)

// realBootNow falls back to the monotonic clock, where no suspend-aware
// clock is available.
func realBootNow() BootInstant {
	return BootInstant(time.Since(processStart))
}
