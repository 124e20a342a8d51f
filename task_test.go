package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDetachedTask creates a task on ex without scheduling it.
func newDetachedTask(t *testing.T, ex *Executor, body func(cx *Context) bool) (*task, *error) {
	t.Helper()
	var (
		result error
		calls  int
	)
	tk := newTask(ex, ex.root, ex.nextTaskID(), false, body, func(err error) {
		calls++
		require.Equal(t, 1, calls, "onDone called more than once")
		result = err
	})
	require.True(t, ex.root.adopt(tk))
	return tk, &result
}

func newTaskTestExecutor(t *testing.T) *Executor {
	t.Helper()
	ex, err := NewTestExecutor(WithFakeTime(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })
	return ex.Executor
}

func TestTask_WakeQueuesOnce(t *testing.T) {
	t.Parallel()
	ex := newTaskTestExecutor(t)
	tk, _ := newDetachedTask(t, ex, func(*Context) bool { return false })

	tk.wake()
	tk.wake()
	tk.waker.Wake()
	assert.Equal(t, 1, ex.queue.Len())
	got, ok := ex.queue.Pop()
	require.True(t, ok)
	assert.Same(t, tk, got)

	assert.Equal(t, Pending, tk.tryPoll())
	assert.Equal(t, uint32(0), tk.state.Load())

	tk.wake()
	assert.Equal(t, 1, ex.queue.Len())
}

func TestTask_WakeDuringPollYields(t *testing.T) {
	t.Parallel()
	ex := newTaskTestExecutor(t)
	polls := 0
	tk, result := newDetachedTask(t, ex, func(cx *Context) bool {
		polls++
		if polls == 1 {
			cx.Waker().Wake()
			cx.Waker().Wake()
			return false
		}
		return true
	})
	tk.state.Store(taskQueued)

	assert.Equal(t, Yielded, tk.tryPoll())
	assert.Equal(t, taskQueued, tk.state.Load())
	assert.True(t, ex.queue.IsEmpty(), "a wake during poll must not push")

	assert.Equal(t, Finished, tk.tryPoll())
	assert.Equal(t, 2, polls)
	assert.NoError(t, *result)
	assert.True(t, tk.isTerminal())
	assert.Equal(t, 0, ex.root.Len())

	// wakes after completion are ignored
	tk.wake()
	assert.True(t, ex.queue.IsEmpty())
}

func TestTask_CancelIdle(t *testing.T) {
	t.Parallel()
	ex := newTaskTestExecutor(t)
	tk, result := newDetachedTask(t, ex, func(*Context) bool {
		t.Error("cancelled task polled")
		return true
	})
	tk.state.Store(taskQueued)

	assert.True(t, tk.cancel())
	assert.False(t, tk.cancel())
	assert.ErrorIs(t, *result, ErrCancelled)

	// the queued entry is skipped
	assert.Equal(t, Cancelled, tk.tryPoll())
	assert.Equal(t, uint64(1), ex.stats.cancelled.Load())
}

func TestTask_CancelDuringPoll(t *testing.T) {
	t.Parallel()
	ex := newTaskTestExecutor(t)
	var tk *task
	var result *error
	tk, result = newDetachedTask(t, ex, func(cx *Context) bool {
		require.True(t, tk.cancel())
		assert.NoError(t, *result, "finalized while running")
		cx.Waker().Wake()
		return false
	})
	tk.state.Store(taskQueued)

	assert.Equal(t, Cancelled, tk.tryPoll())
	assert.ErrorIs(t, *result, ErrCancelled)
	assert.True(t, ex.queue.IsEmpty())
	assert.Nil(t, tk.body)
}

func TestTask_CompleteDespiteCancelDuringPoll(t *testing.T) {
	t.Parallel()
	ex := newTaskTestExecutor(t)
	var tk *task
	var result *error
	tk, result = newDetachedTask(t, ex, func(cx *Context) bool {
		tk.cancel()
		return true
	})
	tk.state.Store(taskQueued)

	assert.Equal(t, Finished, tk.tryPoll())
	assert.NoError(t, *result)
	assert.Equal(t, taskDone, tk.state.Load())
}

func TestTask_PanicContained(t *testing.T) {
	t.Parallel()
	ex := newTaskTestExecutor(t)
	sentinel := errors.New("boom")
	tk, result := newDetachedTask(t, ex, func(*Context) bool {
		panic(sentinel)
	})
	tk.state.Store(taskQueued)

	assert.Equal(t, Finished, tk.tryPoll())
	var panicErr *PanicError
	require.ErrorAs(t, *result, &panicErr)
	assert.Equal(t, tk.id, panicErr.TaskID)
	assert.ErrorIs(t, *result, sentinel)
	assert.Equal(t, uint64(1), ex.stats.panicked.Load())
}

func TestPollResult_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Pending", Pending.String())
	assert.Equal(t, "Yielded", Yielded.String())
	assert.Equal(t, "Finished", Finished.String())
	assert.Equal(t, "Cancelled", Cancelled.String())
	assert.Equal(t, "Unknown", PollResult(42).String())
}

func TestWaker_Weak(t *testing.T) {
	t.Parallel()
	var w *Waker
	assert.NotPanics(t, w.Wake)
	assert.NotPanics(t, NoopWaker().Wake)

	called := 0
	WakerFunc(func() { called++ }).Wake()
	assert.Equal(t, 1, called)
}
