package muxserve

import (
	"fmt"
	"os"

	"github.com/eapache/queue"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"muxserve/errors"
	"muxserve/internal/netpoll"
)

// readiness is the register/wait capability the event-loop is written against.
type readiness interface {
	Register(fd int, interest netpoll.Interest) error
	Wait(events []netpoll.Event, msec int) (int, error)
}

type eventloop struct {
	ln      *listener       // the listener for accepting new connections
	opts    *Options        // options with server
	poller  readiness       // epoll
	events  []netpoll.Event // bounded batch filled by each wait
	conns   connTable       // fd -> conn
	closing *queue.Queue    // fds finished during the current batch
	reqLog  *requestLogger  // request diagnostics
	logger  *zap.Logger     // customized logger for logging info
}

func newEventLoop(ln *listener, p readiness, opts *Options, reqLog *requestLogger, logger *zap.Logger) *eventloop {
	return &eventloop{
		ln:      ln,
		opts:    opts,
		poller:  p,
		events:  make([]netpoll.Event, opts.EventBatch),
		conns:   newConnTable(),
		closing: queue.New(),
		reqLog:  reqLog,
		logger:  logger,
	}
}

// run waits for readiness and dispatches each batch until the poller or a fatal
// accept/register error stops it. Every connection still open is closed on return.
func (el *eventloop) run() error {
	defer el.closeAllConns()

	for {
		n, err := el.poller.Wait(el.events, -1)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err = el.handleEvent(el.events[i].Fd, el.events[i].Events); err != nil {
				return err
			}
		}
		el.sweep()
	}
}

func (el *eventloop) handleEvent(fd int, ev uint32) error {
	if fd == el.ln.fd {
		return el.loopAccept()
	}

	c, ok := el.conns.lookup(fd)
	if !ok {
		return fmt.Errorf("%w: fd %d", errors.ErrConnNotFound, fd)
	}
	if c.finished {
		return nil
	}
	if ev&netpoll.ErrEvents != 0 {
		el.logger.Debug("error or hang-up reported", zap.Int("fd", fd), zap.Uint32("events", ev))
	}

	st, oc, err := advance(c.state, c.sock, func(req []byte) {
		el.reqLog.log(c.fd, c.remoteAddr, req)
	})
	c.state = st

	switch oc {
	case inProgress:
		return nil
	case completed:
		el.logger.Debug("response sent", zap.Int("fd", fd))
	case disconnected:
		fields := []zap.Field{zap.Int("fd", fd), zap.String("remote", c.remote()), zap.String("state", st.name())}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		el.logger.Info("peer disconnected", fields...)
	case failed:
		el.logger.Error("connection failed", zap.Int("fd", fd), zap.String("remote", c.remote()),
			zap.String("state", st.name()), zap.Error(err))
	}
	c.finished = true
	el.closing.Add(fd)
	return nil
}

// sweep tears down every connection finished in the batch just handled. Descriptors no
// longer in the table are skipped.
func (el *eventloop) sweep() {
	for el.closing.Length() > 0 {
		fd := el.closing.Remove().(int)
		if c, ok := el.conns.remove(fd); ok {
			el.closeConn(c)
		}
	}
}

// closeConn closes the descriptor, which also drops it from the poller's interest list.
func (el *eventloop) closeConn(c *conn) {
	if err := unix.Close(c.fd); err != nil {
		el.logger.Warn("failed to close connection", zap.Int("fd", c.fd), zap.Error(os.NewSyscallError("close", err)))
	}
}

func (el *eventloop) closeAllConns() {
	for el.closing.Length() > 0 {
		el.closing.Remove()
	}
	for fd := range el.conns.conns {
		if c, ok := el.conns.remove(fd); ok {
			el.closeConn(c)
		}
	}
}
