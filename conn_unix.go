//go:build linux
// +build linux

package muxserve

import (
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// fdSocket performs raw non-blocking I/O on a connected descriptor.
type fdSocket int

func (fd fdSocket) Read(p []byte) (int, error)  { return unix.Read(int(fd), p) }
func (fd fdSocket) Write(p []byte) (int, error) { return unix.Write(int(fd), p) }

// Flush has nothing to do: writes go straight to the kernel send buffer.
func (fd fdSocket) Flush() error { return nil }

type conn struct {
	fd         int       // file descriptor
	sock       socket    // I/O on fd
	state      connState // protocol progress
	remoteAddr net.Addr  // remote addr
	finished   bool      // queued for teardown, never driven again
}

func newTCPConn(fd int, remoteAddr net.Addr) *conn {
	return &conn{
		fd:         fd,
		sock:       fdSocket(fd),
		state:      newReadState(),
		remoteAddr: remoteAddr,
	}
}

func (c *conn) remote() string {
	if c.remoteAddr == nil {
		return ""
	}
	return c.remoteAddr.String()
}

// connTable maps descriptors to their connections. It belongs to the event-loop goroutine;
// only count may be read elsewhere.
type connTable struct {
	conns map[int]*conn
	count int32
}

func newConnTable() connTable {
	return connTable{conns: make(map[int]*conn)}
}

func (t *connTable) insert(c *conn) {
	t.conns[c.fd] = c
	atomic.StoreInt32(&t.count, int32(len(t.conns)))
}

func (t *connTable) lookup(fd int) (*conn, bool) {
	c, ok := t.conns[fd]
	return c, ok
}

// remove deletes fd from the table and hands back its connection, if it was there.
func (t *connTable) remove(fd int) (*conn, bool) {
	c, ok := t.conns[fd]
	if ok {
		delete(t.conns, fd)
		atomic.StoreInt32(&t.count, int32(len(t.conns)))
	}
	return c, ok
}

func (t *connTable) len() int {
	return int(atomic.LoadInt32(&t.count))
}
