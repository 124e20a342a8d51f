//go:build unix

package executor

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPortSignal_WakeFd(t *testing.T) {
	t.Parallel()
	s, err := newPortSignal()
	require.NoError(t, err)
	defer s.close()

	if runtime.GOOS == "linux" {
		// a single eventfd
		assert.Equal(t, s.rfd, s.wfd)
	}
	flags, err := unix.FcntlInt(uintptr(s.rfd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)

	ok, err := s.wait(0)
	require.NoError(t, err)
	assert.False(t, ok)

	// notifications coalesce into a single wake
	s.notify()
	s.notify()
	ok, err = s.wait(-1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.wait(0)
	require.NoError(t, err)
	assert.False(t, ok)

	start := time.Now()
	ok, err = s.wait(15 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.notify()
	}()
	ok, err = s.wait(5 * time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
