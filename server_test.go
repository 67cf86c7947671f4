//go:build linux
// +build linux

package muxserve

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"muxserve/errors"
)

func startServer(t *testing.T, opts ...Option) (*Server, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	opts = append([]Option{WithLogger(zap.New(core)), WithLogWorkers(0)}, opts...)
	s, err := NewServer("127.0.0.1:0", opts...)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()
	t.Cleanup(func() {
		assert.NoError(t, s.Stop())
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Stop")
		}
	})
	return s, logs
}

// exchange writes parts with a pause between each and returns everything read until the
// server closes the connection.
func exchange(t *testing.T, addr string, pause time.Duration, parts ...string) []byte {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	for i, p := range parts {
		if i > 0 && pause > 0 {
			time.Sleep(pause)
		}
		_, err = c.Write([]byte(p))
		require.NoError(t, err)
	}
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := ioutil.ReadAll(c)
	require.NoError(t, err)
	return data
}

func TestServerScenarioSingleWrite(t *testing.T) {
	s, logs := startServer(t)
	req := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"

	data := exchange(t, s.Addr().String(), 0, req)
	assert.Equal(t, ResponseText, string(data))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, req, entries[0].ContextMap()["raw"])
	assert.EqualValues(t, len(req), entries[0].ContextMap()["bytes"])
	assert.Eventually(t, func() bool { return s.ConnCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServerScenarioBareTerminator(t *testing.T) {
	s, _ := startServer(t)
	assert.Equal(t, ResponseText, string(exchange(t, s.Addr().String(), 0, "\r\n\r\n")))
}

func TestServerScenarioImmediateClose(t *testing.T) {
	s, logs := startServer(t)

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("peer disconnected").Len() == 1 && s.ConnCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, logs.FilterMessage("request").Len())
}

func TestServerSplitRequest(t *testing.T) {
	s, logs := startServer(t)
	parts := []string{"GET /split HTTP/1.1\r", "\nHost: ", "x\r\n", "\r", "\n"}

	data := exchange(t, s.Addr().String(), 20*time.Millisecond, parts...)
	assert.Equal(t, ResponseText, string(data))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "GET /split HTTP/1.1\r\nHost: x\r\n\r\n", entries[0].ContextMap()["raw"])
}

func TestServerInvalidUTF8IsLoggedLossily(t *testing.T) {
	s, logs := startServer(t)

	data := exchange(t, s.Addr().String(), 0, "\xff\xfe\r\n\r\n")
	assert.Equal(t, ResponseText, string(data))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "�\r\n\r\n", entries[0].ContextMap()["raw"])
}

func TestServerOversizedRequest(t *testing.T) {
	s, logs := startServer(t)

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write(bytes.Repeat([]byte("a"), readBufferCap+1))
	require.NoError(t, err)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, _ := ioutil.ReadAll(c)
	assert.Empty(t, data)

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("connection failed").Len() == 1 && s.ConnCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	entry := logs.FilterMessage("connection failed").All()[0]
	assert.Equal(t, errors.ErrOversizedRequest.Error(), entry.ContextMap()["error"])
}

func testConcurrentClients(t *testing.T, clients int, opts ...Option) {
	s, logs := startServer(t, opts...)
	addr := s.Addr().String()

	var wg sync.WaitGroup
	results := make([][]byte, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(i)))
			req := fmt.Sprintf("GET /%d HTTP/1.1\r\nHost: client-%d\r\n\r\n", i, i)

			c, err := net.Dial("tcp", addr)
			if !assert.NoError(t, err) {
				return
			}
			defer c.Close()
			for rest := []byte(req); len(rest) > 0; {
				n := 1 + r.Intn(len(rest))
				if _, err = c.Write(rest[:n]); !assert.NoError(t, err) {
					return
				}
				rest = rest[n:]
				time.Sleep(time.Duration(r.Intn(3)) * time.Millisecond)
			}
			_ = c.SetReadDeadline(time.Now().Add(10 * time.Second))
			results[i], err = ioutil.ReadAll(c)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i, data := range results {
		assert.Equal(t, ResponseText, string(data), "client %d", i)
	}

	seen := make(map[string]bool)
	for _, e := range logs.FilterMessage("request").All() {
		seen[e.ContextMap()["raw"].(string)] = true
	}
	for i := 0; i < clients; i++ {
		assert.True(t, seen[fmt.Sprintf("GET /%d HTTP/1.1\r\nHost: client-%d\r\n\r\n", i, i)], "request of client %d", i)
	}
	assert.Eventually(t, func() bool { return s.ConnCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServerConcurrentClients(t *testing.T) {
	testConcurrentClients(t, 64)
}

func TestServerEventBatchSmallerThanReadySet(t *testing.T) {
	testConcurrentClients(t, 32, WithEventBatch(1), WithTCPNoDelay(true))
}

func TestServerAsyncRequestLog(t *testing.T) {
	s, logs := startServer(t, WithLogWorkers(2))

	data := exchange(t, s.Addr().String(), 0, "GET /async HTTP/1.1\r\n\r\n")
	assert.Equal(t, ResponseText, string(data))
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("request").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerServeOnce(t *testing.T) {
	s, _ := startServer(t)
	// The loop is already running in startServer; wait until it accepts.
	assert.Equal(t, ResponseText, string(exchange(t, s.Addr().String(), 0, "\r\n\r\n")))
	assert.Equal(t, errors.ErrServerShutdown, s.Serve())
}

func TestServerStopBeforeServe(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", WithLogger(zap.NewNop()))
	require.NoError(t, err)
	addr := s.Addr().String()

	require.NoError(t, s.Stop())
	<-s.Done()
	assert.Equal(t, errors.ErrServerShutdown, s.Serve())

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener is closed")
}

func TestServerStopReleasesConnections(t *testing.T) {
	core, _ := observer.New(zap.InfoLevel)
	s, err := NewServer("127.0.0.1:0", WithLogger(zap.New(core)))
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.ConnCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
	<-s.Done()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, _ := ioutil.ReadAll(c)
	assert.Empty(t, data, "no response for an unfinished request")
	assert.Equal(t, 0, s.ConnCount())
}
