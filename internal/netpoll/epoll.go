//go:build linux
// +build linux

package netpoll

import (
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
	"muxserve/errors"
)

// Interest is the set of readiness conditions a descriptor is registered for.
type Interest uint32

const (
	// Readable asks to be notified when the descriptor has data or a pending connection.
	Readable Interest = 1 << iota
	// Writable asks to be notified when the descriptor can accept more output.
	Writable
	// EdgeTriggered reports a condition once per transition instead of while it holds.
	EdgeTriggered
)

const (
	// InEvents are the bits of Event.Events meaning "read without blocking".
	InEvents = unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	// OutEvents are the bits of Event.Events meaning "write without blocking".
	OutEvents = unix.EPOLLOUT
	// ErrEvents are the bits of Event.Events reporting an error or hang-up.
	ErrEvents = unix.EPOLLERR | unix.EPOLLHUP
)

// Event is a single readiness notification returned by Wait. It is only valid until the next Wait.
type Event struct {
	Fd     int
	Events uint32
}

// Poller represents a poller which is in charge of monitoring file-descriptors.
type Poller struct {
	fd             int    // epoll fd
	wfd            int    // wake fd
	wfdBuf         []byte // wfd buffer to read packet
	netpollWakeSig int32
	raw            []unix.EpollEvent
}

// OpenPoller instantiates a poller.
func OpenPoller() (poller *Poller, err error) {
	poller = new(Poller)
	if poller.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		poller = nil
		err = os.NewSyscallError("epoll_create1", err)
		return
	}
	if poller.wfd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		_ = unix.Close(poller.fd)
		poller = nil
		err = os.NewSyscallError("eventfd", err)
		return
	}
	poller.wfdBuf = make([]byte, 8)
	if err = poller.Register(poller.wfd, Readable); err != nil {
		_ = poller.Close()
		poller = nil
	}
	return
}

// Close closes the poller.
func (p *Poller) Close() error {
	if err := os.NewSyscallError("close", unix.Close(p.fd)); err != nil {
		return err
	}
	return os.NewSyscallError("close", unix.Close(p.wfd))
}

// Make the endianness of bytes compatible with more linux OSs under different processor-architectures,
// according to http://man7.org/linux/man-pages/man2/eventfd.2.html.
var (
	u uint64 = 1
	b        = (*(*[8]byte)(unsafe.Pointer(&u)))[:]
)

// Trigger wakes up the poller blocked in Wait, which then reports errors.ErrServerShutdown.
// It is the only Poller method safe to call from another goroutine.
func (p *Poller) Trigger() (err error) {
	if !atomic.CompareAndSwapInt32(&p.netpollWakeSig, 0, 1) {
		return nil
	}
	for _, err = unix.Write(p.wfd, b); err == unix.EINTR || err == unix.EAGAIN; _, err = unix.Write(p.wfd, b) {
	}
	return os.NewSyscallError("write", err)
}

// Register adds fd to the interest list. A descriptor is registered once and leaves the
// interest list implicitly when it is closed.
func (p *Poller) Register(fd int, interest Interest) error {
	var ev uint32
	if interest&Readable != 0 {
		ev |= InEvents
	}
	if interest&Writable != 0 {
		ev |= OutEvents
	}
	if interest&EdgeTriggered != 0 {
		ev |= unix.EPOLLET
	}
	return os.NewSyscallError("epoll_ctl add",
		unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: ev}))
}

// Wait blocks until at least one registered descriptor is ready or msec elapses (msec < 0 blocks
// indefinitely) and fills events with at most len(events) notifications. An interrupted wait returns
// zero events and no error.
func (p *Poller) Wait(events []Event, msec int) (int, error) {
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]

	n, err := unix.EpollWait(p.fd, raw, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}

	var woken bool
	j := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.wfd {
			woken = true
			_, _ = unix.Read(p.wfd, p.wfdBuf)
			continue
		}
		events[j] = Event{Fd: fd, Events: raw[i].Events}
		j++
	}
	if woken {
		return 0, errors.ErrServerShutdown
	}
	return j, nil
}
