package executor

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// pending returns a future that never completes.
func pending[T any]() Future[T] {
	return FutureFunc[T](func(*Context) (T, bool) {
		var zero T
		return zero, false
	})
}

// yieldTimes returns a future that yields n times before completing with the
// number of polls, counted in polls.
func yieldTimes(n int, polls *atomic.Int64) Future[int64] {
	remaining := n
	return FutureFunc[int64](func(cx *Context) (int64, bool) {
		count := polls.Add(1)
		if remaining == 0 {
			return count, true
		}
		remaining--
		cx.Waker().Wake()
		return 0, false
	})
}

// lockedBuffer is a bytes.Buffer safe for use as a log writer across
// goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (x *lockedBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *lockedBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func newTestLogger(w *lockedBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()
}
