package canbus

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/brutella/can"

	"github.com/banshee-data/racelogger/internal/monitoring"
	"github.com/banshee-data/racelogger/internal/sensor"
	"github.com/banshee-data/racelogger/internal/timeutil"
)

// DefaultDevice is the SocketCAN interface used when none is configured.
const DefaultDevice = "can0"

// sampleBacklog bounds the samples waiting for the polling loop. At a 0.2 s
// poll this covers several seconds of a busy bus.
const sampleBacklog = 4096

// BusProducer reads frames from a SocketCAN interface, decodes the configured
// channels and delivers samples on a channel drained by the recorder.
type BusProducer struct {
	device  string
	decoder *Decoder
	clock   timeutil.Clock
	out     chan sensor.CANSample
	dropped atomic.Int64
}

// NewBusProducer creates a producer for the named interface.
func NewBusProducer(device string, decoder *Decoder, clock timeutil.Clock) *BusProducer {
	if device == "" {
		device = DefaultDevice
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &BusProducer{
		device:  device,
		decoder: decoder,
		clock:   clock,
		out:     make(chan sensor.CANSample, sampleBacklog),
	}
}

// Samples returns the receive side of the sample channel.
func (p *BusProducer) Samples() <-chan sensor.CANSample {
	return p.out
}

// Dropped returns the number of samples discarded because the backlog was full.
func (p *BusProducer) Dropped() int64 {
	return p.dropped.Load()
}

// Run connects to the bus and publishes samples until ctx is cancelled or the
// bus connection fails.
func (p *BusProducer) Run(ctx context.Context) error {
	bus, err := can.NewBusForInterfaceWithName(p.device)
	if err != nil {
		return fmt.Errorf("failed to open CAN interface %s: %w", p.device, err)
	}
	bus.SubscribeFunc(p.handleFrame)

	errc := make(chan error, 1)
	go func() {
		errc <- bus.ConnectAndPublish()
	}()
	monitoring.Logf("CAN reader started on %s (ids %X)", p.device, p.decoder.IDs())

	select {
	case <-ctx.Done():
		if err := bus.Disconnect(); err != nil {
			monitoring.Logf("CAN disconnect error: %v", err)
		}
		<-errc
		monitoring.Logf("CAN reader on %s stopped", p.device)
		return ctx.Err()
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("CAN bus %s: %w", p.device, err)
		}
		return nil
	}
}

func (p *BusProducer) handleFrame(frm can.Frame) {
	id := frm.ID & EFFMask
	if !p.decoder.Wants(uint64(id)) {
		return
	}
	n := int(frm.Length)
	if n > MaxPayload {
		n = MaxPayload
	}
	now := timeutil.Seconds(p.clock.Now())
	for _, s := range p.decoder.Decode(now, FrameFromBytes(id, frm.Data[:n])) {
		p.emit(s)
	}
}

func (p *BusProducer) emit(s sensor.CANSample) {
	select {
	case p.out <- s:
	default:
		p.dropped.Add(1)
	}
}
