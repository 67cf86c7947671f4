package reuseport

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// maxListenerBacklog reads net.core.somaxconn, falling back to SOMAXCONN.
func maxListenerBacklog() int {
	fd, err := os.Open("/proc/sys/net/core/somaxconn")
	if err != nil {
		return unix.SOMAXCONN
	}
	defer fd.Close()

	line, err := bufio.NewReader(fd).ReadString('\n')
	if err != nil {
		return unix.SOMAXCONN
	}
	f := strings.Fields(line)
	if len(f) < 1 {
		return unix.SOMAXCONN
	}
	n, err := strconv.Atoi(f[0])
	if err != nil || n == 0 {
		return unix.SOMAXCONN
	}

	// Linux stores the backlog in a uint16.
	if n > 1<<16-1 {
		n = 1<<16 - 1
	}
	return n
}

// sysSocket creates a non-blocking, close-on-exec socket so the listener never blocks the event loop.
func sysSocket(family, sotype, proto int) (int, error) {
	return unix.Socket(family, sotype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
}
