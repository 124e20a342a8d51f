package executor

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of an executor's counters, returned by
// [EHandle.Stats].
type Stats struct {
	// Threads is the current packed threads-state word. Its foreign field
	// counts goroutines inside EHandle.PollTasks, saturating at MaxThreads.
	Threads ThreadsState

	// ForeignPollers is the exact number of goroutines inside
	// EHandle.PollTasks.
	ForeignPollers int

	Spawned   uint64
	Completed uint64
	Cancelled uint64
	Panicked  uint64

	// Polls counts TryPoll attempts, Yields those that requeued the task.
	Polls  uint64
	Yields uint64

	// Notifications counts task-ready packets queued for sleeping workers.
	Notifications uint64

	PacketsDispatched uint64
	PacketsDropped    uint64

	// ForeignPolls counts EHandle.PollTasks calls.
	ForeignPolls uint64

	ReadyTasks int
	Receivers  int
	Timers     int

	// PollLatency is only populated if the executor was created with
	// WithMetrics(true).
	PollLatency *LatencyStats
}

// stats holds the live counters.
type stats struct {
	latency *LatencyMetrics

	spawned           atomic.Uint64
	completed         atomic.Uint64
	cancelled         atomic.Uint64
	panicked          atomic.Uint64
	polls             atomic.Uint64
	yields            atomic.Uint64
	notifications     atomic.Uint64
	packetsDispatched atomic.Uint64
	packetsDropped    atomic.Uint64
	foreignPolls      atomic.Uint64
}

func (s *stats) recordOutcome(err error) {
	var panicErr *PanicError
	switch {
	case err == nil:
		s.completed.Add(1)
	case errors.As(err, &panicErr):
		s.panicked.Add(1)
	default:
		s.cancelled.Add(1)
	}
}

// LatencyStats summarizes the retained poll latency samples.
type LatencyStats struct {
	P50     time.Duration
	P90     time.Duration
	P95     time.Duration
	P99     time.Duration
	Max     time.Duration
	Mean    time.Duration
	Samples int
}

// LatencyMetrics tracks a rolling window of poll durations.
//
// Thread Safety: all methods may be called from any goroutine.
type LatencyMetrics struct {
	mu          sync.Mutex
	samples     [sampleSize]time.Duration
	sum         time.Duration
	sampleIdx   int
	sampleCount int
}

// sampleSize is the maximum number of latency samples to retain.
const sampleSize = 1000

// Record records a latency sample.
func (l *LatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// If buffer is full, subtract the old sample that we're replacing
	if l.sampleCount >= sampleSize {
		l.sum -= l.samples[l.sampleIdx]
	}

	l.samples[l.sampleIdx] = duration
	l.sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample computes percentiles from the retained samples.
func (l *LatencyMetrics) Sample() LatencyStats {
	l.mu.Lock()
	count := l.sampleCount
	sorted := slices.Clone(l.samples[:count])
	sum := l.sum
	l.mu.Unlock()

	if count == 0 {
		return LatencyStats{}
	}
	slices.Sort(sorted)
	return LatencyStats{
		P50:     sorted[percentileIndex(count, 50)],
		P90:     sorted[percentileIndex(count, 90)],
		P95:     sorted[percentileIndex(count, 95)],
		P99:     sorted[percentileIndex(count, 99)],
		Max:     sorted[count-1],
		Mean:    sum / time.Duration(count),
		Samples: count,
	}
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}
