package canbus

import (
	"testing"
	"time"

	"github.com/brutella/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/racelogger/internal/timeutil"
)

func TestBusProducerHandleFrame(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1_700_000_000, 0))
	p := NewBusProducer("", rpmDecoder(t), clock)
	assert.Equal(t, DefaultDevice, p.device)

	p.handleFrame(can.Frame{ID: 0x201, Length: 2, Data: [8]uint8{0x5D, 0xC0, 0xFF}})
	p.handleFrame(can.Frame{ID: 0x555, Length: 8})

	select {
	case s := <-p.Samples():
		assert.Equal(t, "rpm", s.Channel)
		assert.Equal(t, uint64(0x201), s.ArbitrationID)
		// Bytes past Length are not part of the payload.
		assert.Equal(t, 6000.0, s.Value)
		assert.Equal(t, 1_700_000_000.0, s.Time)
	default:
		t.Fatal("no sample emitted")
	}
	assert.Empty(t, p.Samples())
}

func TestBusProducerDropsWhenFull(t *testing.T) {
	p := NewBusProducer("vcan0", rpmDecoder(t), timeutil.NewMockClock(time.Unix(0, 0)))
	for i := 0; i < sampleBacklog+3; i++ {
		p.handleFrame(can.Frame{ID: 0x201, Length: 2, Data: [8]uint8{0x00, 0x04}})
	}
	require.Len(t, p.Samples(), sampleBacklog)
	assert.Equal(t, int64(3), p.Dropped())
}
