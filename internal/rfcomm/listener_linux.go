//go:build linux

package rfcomm

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Listener accepts RFCOMM connections on one channel of the local adapter.
type Listener struct {
	fd      int
	channel uint8

	mu     sync.Mutex
	closed bool
}

// Listen binds channel on any local adapter.
func Listen(channel uint8) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrRFCOMM{Channel: channel}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rfcomm bind channel %d: %w", channel, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rfcomm listen: %w", err)
	}
	return &Listener{fd: fd, channel: channel}, nil
}

// Accept waits for a client. It returns net.ErrClosed once Close has been
// called, within one poll interval.
func (l *Listener) Accept() (io.ReadWriteCloser, error) {
	fds := []unix.PollFd{{Fd: int32(l.fd), Events: unix.POLLIN}}
	for {
		if l.isClosed() {
			return nil, net.ErrClosed
		}
		n, err := unix.Poll(fds, int(acceptPoll.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if l.isClosed() {
				return nil, net.ErrClosed
			}
			return nil, fmt.Errorf("rfcomm poll: %w", err)
		}
		if n == 0 {
			continue
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil, net.ErrClosed
		}
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
		l.mu.Unlock()
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("rfcomm accept: %w", err)
		}

		remote := "unknown"
		if rc, ok := sa.(*unix.SockaddrRFCOMM); ok {
			remote = formatAddr(rc.Addr)
		}
		return &Conn{File: os.NewFile(uintptr(nfd), "rfcomm:"+remote), remote: remote}, nil
	}
}

// Close stops the listener. A blocked Accept returns net.ErrClosed.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return unix.Close(l.fd)
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Conn is an accepted RFCOMM connection. The descriptor is non-blocking so
// write deadlines apply.
type Conn struct {
	*os.File
	remote string
}

// String returns the remote device address.
func (c *Conn) String() string {
	return c.remote
}
