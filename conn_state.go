package muxserve

import (
	"bytes"

	"golang.org/x/sys/unix"
	"muxserve/errors"
)

// readBufferCap is the most a request may occupy before its terminator arrives.
const readBufferCap = 1024

// outcome is what advancing a connection's state machine amounts to.
type outcome int

const (
	inProgress   outcome = iota // blocked on the socket, keep the connection
	completed                   // response fully written and flushed
	disconnected                // peer went away mid-exchange
	failed                      // unexpected I/O error or oversized request
)

func (o outcome) String() string {
	switch o {
	case inProgress:
		return "in-progress"
	case completed:
		return "completed"
	case disconnected:
		return "disconnected"
	case failed:
		return "failed"
	}
	return "unknown"
}

// socket is the non-blocking I/O a connection state machine needs. Read and Write report
// unix.EAGAIN when they would block.
type socket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
}

// connState is one of *readState, *writeState or flushState.
type connState interface {
	// step advances as far as possible without blocking. A non-nil next state means the
	// current one is finished and the caller should continue with next.
	step(s socket) (next connState, oc outcome, err error)
	name() string
}

// readState accumulates the request until the last four bytes are the header terminator.
type readState struct {
	buf    [readBufferCap]byte
	filled int
}

// writeState sends the shared response.
type writeState struct {
	payload []byte
	sent    int
}

// flushState waits for buffered output to drain. It is terminal.
type flushState struct{}

func newReadState() *readState { return new(readState) }

func (r *readState) name() string  { return "read" }
func (w *writeState) name() string { return "write" }
func (flushState) name() string    { return "flush" }

// request returns the bytes received so far.
func (r *readState) request() []byte {
	return r.buf[:r.filled]
}

func (r *readState) step(s socket) (connState, outcome, error) {
	for {
		if r.filled == len(r.buf) {
			return nil, failed, errors.ErrOversizedRequest
		}
		n, err := s.Read(r.buf[r.filled:])
		switch {
		case err == unix.EAGAIN:
			return nil, inProgress, nil
		case err == unix.EINTR:
			continue
		case isPeerGone(err):
			return nil, disconnected, err
		case err != nil:
			return nil, failed, err
		case n == 0:
			return nil, disconnected, nil
		}
		r.filled += n
		if r.filled >= len(headerTerminator) &&
			bytes.Equal(r.buf[r.filled-len(headerTerminator):r.filled], headerTerminator) {
			return &writeState{payload: response}, inProgress, nil
		}
	}
}

func (w *writeState) step(s socket) (connState, outcome, error) {
	for {
		n, err := s.Write(w.payload[w.sent:])
		switch {
		case err == unix.EAGAIN:
			return nil, inProgress, nil
		case err == unix.EINTR:
			continue
		case isPeerGone(err):
			return nil, disconnected, err
		case err != nil:
			return nil, failed, err
		case n == 0:
			return nil, disconnected, nil
		}
		w.sent += n
		if w.sent == len(w.payload) {
			return flushState{}, inProgress, nil
		}
	}
}

func (flushState) step(s socket) (connState, outcome, error) {
	switch err := s.Flush(); {
	case err == nil:
		return nil, completed, nil
	case err == unix.EAGAIN:
		return nil, inProgress, nil
	case isPeerGone(err):
		return nil, disconnected, err
	default:
		return nil, failed, err
	}
}

// advance drives st through as many states as the socket allows in one go, so a short
// exchange can go from read to flush on a single notification. onRequest sees the complete
// request once, right before the switch to writing; the slice is only valid during the call.
func advance(st connState, s socket, onRequest func(req []byte)) (connState, outcome, error) {
	for {
		next, oc, err := st.step(s)
		if next == nil || oc != inProgress {
			return st, oc, err
		}
		if r, ok := st.(*readState); ok && onRequest != nil {
			onRequest(r.request())
		}
		st = next
	}
}

func isPeerGone(err error) bool {
	return err == unix.ECONNRESET || err == unix.EPIPE
}
