//go:build linux
// +build linux

package netpoll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"muxserve/errors"
)

func newPipe(t *testing.T) (r, w int) {
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
	})
	return p[0], p[1]
}

func TestPollerReportsReadable(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()

	r, w := newPipe(t)
	require.NoError(t, p.Register(r, Readable))

	events := make([]Event, 8)
	n, err := p.Wait(events, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	n, err = p.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, r, events[0].Fd)
	assert.NotZero(t, events[0].Events&InEvents)
}

func TestPollerEdgeTriggeredReportsOnce(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()

	r, w := newPipe(t)
	require.NoError(t, p.Register(r, Readable|EdgeTriggered))
	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	events := make([]Event, 8)
	n, err := p.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Nothing was read, but the edge has already been reported.
	n, err = p.Wait(events, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPollerRegisterTwiceFails(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()

	r, _ := newPipe(t)
	require.NoError(t, p.Register(r, Readable))
	assert.Error(t, p.Register(r, Readable))
}

func TestPollerTriggerWakesWait(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()

	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(make([]Event, 4), -1)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Trigger())
	require.NoError(t, p.Trigger())

	select {
	case err := <-done:
		assert.Equal(t, errors.ErrServerShutdown, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait was not woken by Trigger")
	}
}
