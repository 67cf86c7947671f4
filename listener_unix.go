//go:build linux
// +build linux

package muxserve

import (
	"net"
	"os"
	"sync"

	gerrors "github.com/panjf2000/gnet/errors"
	"golang.org/x/sys/unix"
	"muxserve/internal/reuseport"
)

// listener owns the bound passive socket.
type listener struct {
	once          sync.Once
	fd            int
	lnaddr        net.Addr
	reusePort     bool
	addr, network string
}

func (ln *listener) normalize() (err error) {
	switch ln.network {
	case "tcp", "tcp4", "tcp6":
		ln.fd, ln.lnaddr, err = reuseport.TCPSocket(ln.network, ln.addr, ln.reusePort)
	default:
		err = gerrors.ErrUnsupportedProtocol
	}
	return
}

func (ln *listener) close() {
	ln.once.Do(func() {
		if ln.fd > 0 {
			sniffErrorAndLog(os.NewSyscallError("close", unix.Close(ln.fd)))
		}
	})
}

func initListener(network, addr string, reusePort bool) (l *listener, err error) {
	l = &listener{network: network, addr: addr, reusePort: reusePort}
	err = l.normalize()
	return
}
