//go:build linux
// +build linux

package reuseport

import (
	"net"
	"os"

	"github.com/panjf2000/gnet/errors"
	"golang.org/x/sys/unix"
)

var listenerBacklogMaxSize = maxListenerBacklog()

// TCPSocket creates a bound, listening, non-blocking TCP socket for addr and returns its
// descriptor together with the address the kernel actually bound (port 0 resolved).
func TCPSocket(proto, addr string, reusePort bool) (int, net.Addr, error) {
	return tcpReusablePort(proto, addr, reusePort)
}

func getTCPSockaddr(proto, addr string) (sa unix.Sockaddr, family int, err error) {
	var (
		tcpVersion string
		tcpAddr    *net.TCPAddr
	)
	tcpAddr, err = net.ResolveTCPAddr(proto, addr)
	if err != nil {
		return
	}
	tcpVersion, err = determineTCPProto(proto, tcpAddr)
	if err != nil {
		return
	}

	switch tcpVersion {
	case "tcp":
		sa, family = &unix.SockaddrInet4{Port: tcpAddr.Port}, unix.AF_INET
	case "tcp4":
		sa4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if tcpAddr.IP != nil {
			copy(sa4.Addr[:], tcpAddr.IP.To4())
		}
		sa, family = sa4, unix.AF_INET
	case "tcp6":
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		if tcpAddr.IP != nil {
			copy(sa6.Addr[:], tcpAddr.IP)
		}
		if tcpAddr.Zone != "" {
			var iface *net.Interface
			if iface, err = net.InterfaceByName(tcpAddr.Zone); err != nil {
				return
			}
			sa6.ZoneId = uint32(iface.Index)
		}
		sa, family = sa6, unix.AF_INET6
	default:
		err = errors.ErrUnsupportedProtocol
	}
	return
}

// determineTCPProto picks tcp4/tcp6 from the resolved IP when the caller asked for plain "tcp".
func determineTCPProto(proto string, addr *net.TCPAddr) (string, error) {
	if addr.IP.To4() != nil {
		return "tcp4", nil
	}
	if addr.IP.To16() != nil {
		return "tcp6", nil
	}
	switch proto {
	case "tcp", "tcp4", "tcp6":
		return proto, nil
	}
	return "", errors.ErrUnsupportedTCPProtocol
}

func boundAddr(fd int) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3]), Port: sa.Port}, nil
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, sa.Addr[:])
		return &net.TCPAddr{IP: ip, Port: sa.Port}, nil
	}
	return nil, errors.ErrUnsupportedTCPProtocol
}

// tcpReusablePort creates an endpoint for communication and returns a file descriptor that refers to that endpoint.
// Argument `reusePort` indicates whether the SO_REUSEPORT flag will be assigned.
func tcpReusablePort(proto, addr string, reusePort bool) (fd int, netAddr net.Addr, err error) {
	var (
		family   int
		sockaddr unix.Sockaddr
	)

	if sockaddr, family, err = getTCPSockaddr(proto, addr); err != nil {
		return
	}

	if fd, err = sysSocket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP); err != nil {
		err = os.NewSyscallError("socket", err)
		return
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
		}
	}()

	if err = os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)); err != nil {
		return
	}
	if reusePort {
		if err = os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)); err != nil {
			return
		}
	}

	if err = os.NewSyscallError("bind", unix.Bind(fd, sockaddr)); err != nil {
		return
	}

	// Set backlog size to the maximum.
	if err = os.NewSyscallError("listen", unix.Listen(fd, listenerBacklogMaxSize)); err != nil {
		return
	}

	netAddr, err = boundAddr(fd)
	return
}
