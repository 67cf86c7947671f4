//go:build linux
// +build linux

package muxserve

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"muxserve/errors"
	"muxserve/internal/netpoll"
)

// connInterest is what every accepted connection is registered for. Edge-triggered so a
// connection waiting for request bytes is not woken over and over for write readiness.
const connInterest = netpoll.Readable | netpoll.Writable | netpoll.EdgeTriggered

// loopAccept accepts until the backlog is empty; one readiness notification may stand
// for several pending connections.
func (el *eventloop) loopAccept() error {
	for {
		nfd, sa, err := unix.Accept4(el.ln.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return nil
			case unix.EINTR, unix.ECONNABORTED:
				continue
			}
			el.logger.Error("accept failed", zap.Error(err))
			return fmt.Errorf("%w: %v", errors.ErrAcceptSocket, os.NewSyscallError("accept4", err))
		}

		if el.opts.TCPNoDelay {
			if err = netpoll.SetNoDelay(nfd, true); err != nil {
				el.logger.Warn("failed to set TCP_NODELAY", zap.Int("fd", nfd), zap.Error(err))
			}
		}

		if err = el.poller.Register(nfd, connInterest); err != nil {
			_ = unix.Close(nfd)
			el.logger.Error("failed to register connection", zap.Int("fd", nfd), zap.Error(err))
			return fmt.Errorf("%w: %v", errors.ErrRegister, err)
		}

		c := newTCPConn(nfd, netpoll.SockaddrToTCPAddr(sa))
		el.conns.insert(c)
		el.logger.Debug("connection opened", zap.Int("fd", nfd), zap.String("remote", c.remote()))
	}
}
