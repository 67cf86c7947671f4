//go:build linux
// +build linux

package muxserve

import (
	"net"
	"sync"

	"go.uber.org/zap"
	"muxserve/errors"
	"muxserve/internal/logging"
	"muxserve/internal/netpoll"
)

const (
	stateIdle int32 = iota
	stateServing
	stateStopping
	stateStopped
)

type server struct {
	ln     *listener       // the listener for accepting new connections
	opts   *Options        // options with server
	poller *netpoll.Poller // epoll plus wake fd
	loop   *eventloop      // the single event-loop
	reqLog *requestLogger  // request diagnostics
	logger *zap.Logger     // customized logger for logging info

	mu    sync.Mutex // guards state and the release of ln/poller
	state int32
	done  chan struct{}
}

// Server is a bound responder. All socket work happens on the goroutine that calls Serve.
type Server struct {
	svr *server
}

// NewServer binds addr and prepares the event-loop without starting it.
func NewServer(addr string, opts ...Option) (*Server, error) {
	options := loadOptions(opts...)
	logger := options.Logger
	if logger == nil {
		logger = logging.Raw()
	}

	ln, err := initListener("tcp", addr, options.ReusePort)
	if err != nil {
		return nil, err
	}
	p, err := netpoll.OpenPoller()
	if err != nil {
		ln.close()
		return nil, err
	}
	if err = p.Register(ln.fd, netpoll.Readable); err != nil {
		sniffErrorAndLog(p.Close())
		ln.close()
		return nil, err
	}
	reqLog, err := newRequestLogger(logger, options.LogWorkers)
	if err != nil {
		sniffErrorAndLog(p.Close())
		ln.close()
		return nil, err
	}

	svr := &server{
		ln:     ln,
		opts:   options,
		poller: p,
		reqLog: reqLog,
		logger: logger,
		done:   make(chan struct{}),
	}
	svr.loop = newEventLoop(ln, p, options, reqLog, logger)
	return &Server{svr: svr}, nil
}

// Serve binds addr and runs the event-loop until it fails.
func Serve(addr string, opts ...Option) error {
	s, err := NewServer(addr, opts...)
	if err != nil {
		return err
	}
	return s.Serve()
}

// Addr is the address the listener is bound to.
func (s *Server) Addr() net.Addr {
	return s.svr.ln.lnaddr
}

// ConnCount is the number of open connections.
func (s *Server) ConnCount() int {
	return s.svr.loop.conns.len()
}

// Done is closed once Serve has returned and every descriptor is released.
func (s *Server) Done() <-chan struct{} {
	return s.svr.done
}

// Serve runs the event-loop on the calling goroutine. It returns nil after Stop and the
// loop's error otherwise; a Server serves at most once.
func (s *Server) Serve() error {
	svr := s.svr
	svr.mu.Lock()
	if svr.state != stateIdle {
		svr.mu.Unlock()
		return errors.ErrServerShutdown
	}
	svr.state = stateServing
	svr.mu.Unlock()

	err := svr.activateLoop(svr.opts.LockOSThread)

	svr.mu.Lock()
	svr.release()
	svr.state = stateStopped
	svr.mu.Unlock()
	close(svr.done)

	if err == errors.ErrServerShutdown {
		return nil
	}
	return err
}

// Stop asks the event-loop to exit; it does not wait. Safe to call from any goroutine.
func (s *Server) Stop() error {
	svr := s.svr
	svr.mu.Lock()
	defer svr.mu.Unlock()

	switch svr.state {
	case stateIdle:
		svr.release()
		svr.state = stateStopped
		close(svr.done)
	case stateServing:
		svr.state = stateStopping
		return svr.poller.Trigger()
	}
	return nil
}

func (svr *server) release() {
	svr.ln.close()
	sniffErrorAndLog(svr.poller.Close())
	svr.reqLog.Close()
}

func sniffErrorAndLog(err error) {
	if err != nil {
		logging.DefaultLogger.Errorf("%v", err)
	}
}
