package executor

import (
	"sync/atomic"
	"time"
)

// MonotonicInstant is a reading of the executor's monotonic clock, in
// nanoseconds. Real readings are relative to process start.
type MonotonicInstant int64

// Add returns the instant d after x.
func (x MonotonicInstant) Add(d time.Duration) MonotonicInstant {
	return x + MonotonicInstant(d)
}

// Sub returns the duration x-y.
func (x MonotonicInstant) Sub(y MonotonicInstant) time.Duration {
	return time.Duration(x - y)
}

// BootInstant is a reading of the executor's boot clock, in nanoseconds. It
// differs from the monotonic clock in that it keeps advancing while the
// system is suspended.
type BootInstant int64

// Add returns the instant d after x.
func (x BootInstant) Add(d time.Duration) BootInstant {
	return x + BootInstant(d)
}

// Sub returns the duration x-y.
func (x BootInstant) Sub(y BootInstant) time.Duration {
	return time.Duration(x - y)
}

// processStart anchors real monotonic readings.
var processStart = time.Now()

// clock is either real, or fake: an explicitly advanced monotonic counter
// plus a boot-to-monotonic offset.
type clock struct {
	fakeMono   atomic.Int64
	fakeOffset atomic.Int64
	fake       bool
}

func (c *clock) now() MonotonicInstant {
	if c.fake {
		return MonotonicInstant(c.fakeMono.Load())
	}
	return MonotonicInstant(time.Since(processStart))
}

func (c *clock) bootNow() BootInstant {
	if c.fake {
		return BootInstant(c.fakeMono.Load() + c.fakeOffset.Load())
	}
	return realBootNow()
}

// read returns the current reading of the given clock, in nanoseconds.
func (c *clock) read(kind ClockKind) int64 {
	if kind == BootClock {
		return int64(c.bootNow())
	}
	return int64(c.now())
}
