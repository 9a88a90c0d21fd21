package racetech

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/banshee-data/racelogger/internal/monitoring"
)

// Acceptor yields inbound client connections. Close must unblock a pending
// Accept.
type Acceptor interface {
	Accept() (io.ReadWriteCloser, error)
	Close() error
}

// NetAcceptor adapts a net.Listener, e.g. TCP for bench testing without a
// Bluetooth adapter.
type NetAcceptor struct {
	net.Listener
}

// Accept waits for the next connection.
func (a NetAcceptor) Accept() (io.ReadWriteCloser, error) {
	return a.Listener.Accept()
}

const maxAcceptBackoff = time.Second

// Serve registers every accepted client with hub until ctx is cancelled or
// the acceptor fails permanently. Temporary accept errors are logged and
// retried with backoff. Cancellation closes the acceptor, so shutdown does
// not wait for another inbound connection. On return all clients are closed.
func Serve(ctx context.Context, acceptor Acceptor, hub *Hub) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			acceptor.Close()
		case <-done:
		}
	}()
	defer hub.Close()

	var backoff time.Duration
	for {
		c, err := acceptor.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if !isTemporary(err) {
				acceptor.Close()
				return err
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			monitoring.Logf("DL1 accept error: %v; retrying in %v", err, backoff)
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			continue
		}
		backoff = 0
		monitoring.Logf("Registering DL1 client %s", describe(c))
		hub.Add(c)
	}
}

// isTemporary reports whether err, or an error it wraps, marks itself as
// temporary. syscall.Errno does so for ECONNABORTED, EINTR and EMFILE.
func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}

func describe(c io.ReadWriteCloser) string {
	if conn, ok := c.(net.Conn); ok {
		return conn.RemoteAddr().String()
	}
	if s, ok := c.(interface{ String() string }); ok {
		return s.String()
	}
	return "client"
}
