package canbus

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/racelogger/internal/sensor"
	"github.com/banshee-data/racelogger/internal/testutil"
	"github.com/banshee-data/racelogger/internal/timeutil"
)

func socketCANPacket(id uint32, data []byte) []byte {
	b := make([]byte, socketCANHeader+len(data))
	binary.BigEndian.PutUint32(b[0:4], id)
	b[4] = byte(len(data))
	copy(b[socketCANHeader:], data)
	return b
}

func writeCapture(t *testing.T, link layers.LinkType, start time.Time, packets ...[]byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, link))
	for i, p := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * 50 * time.Millisecond),
			CaptureLength: len(p),
			Length:        len(p),
		}
		require.NoError(t, w.WritePacket(ci, p))
	}
	return &buf
}

func rpmDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(Channel{Name: "rpm", ArbitrationID: 0x201, Extractor: MustExtractor(0, 16, WithScale(0.25))})
	require.NoError(t, err)
	return d
}

func TestReplayCapture(t *testing.T) {
	testutil.MuteLogs(t)
	epoch := time.Unix(1_700_000_000, 0)
	clock := timeutil.NewMockClock(epoch)

	capture := writeCapture(t, linkTypeSocketCAN, time.Unix(1_600_000_000, 0),
		socketCANPacket(0x201, []byte{0x5D, 0xC0}), // 24000 * 0.25
		socketCANPacket(0x300, []byte{0xFF}),       // not configured
		socketCANPacket(0x201, []byte{0x3E, 0x80}), // 16000 * 0.25
		[]byte{0x01, 0x02},                         // truncated
	)

	out := make(chan sensor.CANSample, 8)
	require.NoError(t, ReplayCapture(context.Background(), capture, rpmDecoder(t), clock, out))
	close(out)

	var got []sensor.CANSample
	for s := range out {
		got = append(got, s)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 6000.0, got[0].Value)
	assert.Equal(t, 4000.0, got[1].Value)
	assert.Equal(t, timeutil.Seconds(epoch), got[0].Time)
	assert.InDelta(t, timeutil.Seconds(epoch)+0.1, got[1].Time, 1e-6)
	// Undecodable packets do not advance the replay clock.
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, clock.Sleeps())
}

func TestReplayCaptureRejectsOtherLinkTypes(t *testing.T) {
	capture := writeCapture(t, layers.LinkTypeEthernet, time.Unix(0, 0))
	err := ReplayCapture(context.Background(), capture, rpmDecoder(t), timeutil.NewMockClock(time.Unix(0, 0)), make(chan sensor.CANSample))
	assert.Error(t, err)
}

func TestReplayCaptureStopsOnCancel(t *testing.T) {
	capture := writeCapture(t, linkTypeSocketCAN, time.Unix(0, 0), socketCANPacket(0x201, []byte{0x00, 0x04}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ReplayCapture(ctx, capture, rpmDecoder(t), timeutil.NewMockClock(time.Unix(0, 0)), make(chan sensor.CANSample))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeSocketCANClampsLength(t *testing.T) {
	p := socketCANPacket(0x80000123, []byte{1, 2, 3})
	p[4] = 12 // claims more than was captured
	f, ok := decodeSocketCAN(p)
	require.True(t, ok)
	assert.Equal(t, uint64(0x123), f.ArbitrationID)
	assert.Equal(t, []byte{1, 2, 3}, f.Payload)
}
