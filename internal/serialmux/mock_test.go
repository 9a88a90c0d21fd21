package serialmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaySerialMux_LoopsLines(t *testing.T) {
	mux := NewReplaySerialMux("gps", []string{"$A\r\n", "$B"}, time.Millisecond)
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- mux.Monitor(ctx) }()

	var got []string
	for len(got) < 3 {
		got = append(got, recv(t, ch))
	}
	assert.Equal(t, []string{"$A", "$B", "$A"}, got)

	require.NoError(t, mux.Close())
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after Close")
	}
}

func TestReplayPort_WritesDiscardedUntilClosed(t *testing.T) {
	p := NewReplayPort(nil, time.Millisecond)
	n, err := p.Write([]byte("cmd"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, p.Close())
	_, err = p.Write([]byte("cmd"))
	assert.Error(t, err)
	require.NoError(t, p.Close())
}

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux("imu")
	id, ch := d.Subscribe()
	assert.Equal(t, 1, d.Stats().Subscribers)
	assert.NoError(t, d.SendCommand("x"))
	assert.NoError(t, d.Initialize("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Monitor(ctx), context.Canceled)

	d.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	_, ch2 := d.Subscribe()
	require.NoError(t, d.Close())
	_, ok = <-ch2
	assert.False(t, ok)

	_, late := d.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	require.NoError(t, d.Close())
}
