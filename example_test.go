package executor_test

import (
	"fmt"
	"sync/atomic"
	"time"

	executor "github.com/joeycumines/go-executor"
)

// Example_runSingleThreaded drives a future, and the tasks it spawns, on
// the calling goroutine.
func Example_runSingleThreaded() {
	ex, err := executor.NewLocalExecutor()
	if err != nil {
		panic(err)
	}
	defer ex.Close()

	h := ex.Handle()
	a := executor.Spawn(h, executor.Ready(20))
	b := executor.Spawn(h, executor.Ready(22))

	sum, err := executor.RunSingleThreaded(ex, executor.FutureFunc[int](func(cx *executor.Context) (int, bool) {
		x, ok := a.Poll(cx)
		if !ok {
			return 0, false
		}
		y, ok := b.Poll(cx)
		if !ok {
			return 0, false
		}
		return x + y, true
	}))
	fmt.Println(sum, err)

	// Output:
	// 42 <nil>
}

// Example_run spreads tasks across worker threads.
func Example_run() {
	ex, err := executor.NewSendExecutor(4)
	if err != nil {
		panic(err)
	}
	defer ex.Close()

	h := ex.Handle()
	var counter atomic.Int64
	tasks := make([]executor.Future[struct{}], 1000)
	for i := range tasks {
		tasks[i] = executor.Spawn(h, executor.FutureFunc[struct{}](func(*executor.Context) (struct{}, bool) {
			counter.Add(1)
			return struct{}{}, true
		}))
	}

	if _, err := executor.Run(ex, executor.JoinAll(tasks...)); err != nil {
		panic(err)
	}
	fmt.Println(counter.Load())

	// Output:
	// 1000
}

// Example_fakeTime uses a test executor and its fake clock to step through
// a timeout deterministically.
func Example_fakeTime() {
	ex, err := executor.NewTestExecutor(executor.WithFakeTime(true))
	if err != nil {
		panic(err)
	}
	defer ex.Close()

	never := executor.FutureFunc[string](func(*executor.Context) (string, bool) { return "", false })
	fut := executor.Timeout(ex.Handle(), time.Second, never)

	_, ok, _ := executor.RunUntilStalled(ex, fut)
	fmt.Println("done:", ok)

	next, _ := ex.WakeNextTimer()
	fmt.Println("advanced to:", time.Duration(next))

	v, ok, _ := executor.RunUntilStalled(ex, fut)
	fmt.Println("done:", ok, "timed out:", v.TimedOut)

	// Output:
	// done: false
	// advanced to: 1s
	// done: true timed out: true
}
