//go:build !unix

package executor

import (
	"time"
)

// portSignal is a waiter's wake channel, holding at most one notification.
type portSignal struct {
	ch chan struct{}
}

func newPortSignal() (portSignal, error) {
	return portSignal{ch: make(chan struct{}, 1)}, nil
}

func (s portSignal) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// wait blocks until notified, consuming the notification. A negative timeout
// waits indefinitely. Returns false if the timeout elapsed first.
func (s portSignal) wait(timeout time.Duration) (bool, error) {
	if timeout < 0 {
		<-s.ch
		return true, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ch:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

func (s portSignal) close() {}
