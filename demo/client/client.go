package main

import (
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/valyala/bytebufferpool"
	"muxserve"
	"muxserve/internal/logging"
)

const (
	addr    = "localhost:3000"
	clients = 200
	workers = 64
	request = "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"
)

func main() {
	defer logging.Cleanup()

	pool, err := ants.NewPool(workers)
	if err != nil {
		logging.DefaultLogger.Fatalf("create pool error: %v", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		ok, fail int32
	)
	start := time.Now()
	for i := 0; i < clients; i++ {
		wg.Add(1)
		seed := int64(i)
		err = pool.Submit(func() {
			defer wg.Done()
			if err := roundTrip(rand.New(rand.NewSource(seed))); err != nil {
				logging.DefaultLogger.Warnf("client %d: %v", seed, err)
				atomic.AddInt32(&fail, 1)
				return
			}
			atomic.AddInt32(&ok, 1)
		})
		if err != nil {
			wg.Done()
			logging.DefaultLogger.Errorf("submit error: %v", err)
		}
	}
	wg.Wait()
	logging.DefaultLogger.Infof("%d ok, %d failed in %v", ok, fail, time.Since(start))
}

// roundTrip sends the request in random-sized chunks with short pauses between them and
// checks that the fixed response comes back before the server closes.
func roundTrip(r *rand.Rand) error {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer c.Close()

	rest := []byte(request)
	for len(rest) > 0 {
		n := 1 + r.Intn(len(rest))
		if _, err = c.Write(rest[:n]); err != nil {
			return err
		}
		rest = rest[n:]
		time.Sleep(time.Duration(r.Intn(5)) * time.Millisecond)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err = buf.ReadFrom(c); err != nil {
		return err
	}
	if buf.String() != muxserve.ResponseText {
		return &unexpectedResponse{got: buf.String()}
	}
	return nil
}

type unexpectedResponse struct {
	got string
}

func (e *unexpectedResponse) Error() string {
	return "unexpected response: " + e.got
}
