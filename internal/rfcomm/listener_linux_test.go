//go:build linux

package rfcomm

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestListener_CloseUnblocksAccept(t *testing.T) {
	l, err := Listen(DefaultChannel)
	if err != nil {
		t.Skipf("no Bluetooth support here: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, net.ErrClosed) {
			t.Errorf("Accept after Close = %v, want net.ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return after Close")
	}

	if err := l.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
