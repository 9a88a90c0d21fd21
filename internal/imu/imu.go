// Package imu reads accelerometer lines from the IMU board. Each line holds
// the x, y and z acceleration in g separated by commas.
package imu

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/banshee-data/racelogger/internal/monitoring"
	"github.com/banshee-data/racelogger/internal/sensor"
	"github.com/banshee-data/racelogger/internal/serialmux"
	"github.com/banshee-data/racelogger/internal/timeutil"
)

var ErrMalformedLine = errors.New("imu: malformed line")

const sampleBacklog = 1024

// Producer emits one IMUSample per well-formed line.
type Producer struct {
	mux   serialmux.SerialMuxInterface
	clock timeutil.Clock
	out   chan sensor.IMUSample

	parseErrors atomic.Int64
	dropped     atomic.Int64
}

func NewProducer(mux serialmux.SerialMuxInterface, clock timeutil.Clock) *Producer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Producer{
		mux:   mux,
		clock: clock,
		out:   make(chan sensor.IMUSample, sampleBacklog),
	}
}

func (p *Producer) Samples() <-chan sensor.IMUSample { return p.out }

func (p *Producer) ParseErrors() int64 { return p.parseErrors.Load() }

func (p *Producer) Dropped() int64 { return p.dropped.Load() }

// Run consumes lines until ctx ends or the subscription closes.
func (p *Producer) Run(ctx context.Context) error {
	id, lines := p.mux.Subscribe()
	defer p.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			x, y, z, err := ParseLine(line)
			if err != nil {
				if p.parseErrors.Add(1) == 1 {
					monitoring.Logf("%v", err)
				}
				continue
			}
			s := sensor.IMUSample{Time: timeutil.Seconds(p.clock.Now()), X: x, Y: y, Z: z}
			select {
			case p.out <- s:
			default:
				p.dropped.Add(1)
			}
		}
	}
}

// ParseLine splits "x,y,z" into its three accelerations.
func ParseLine(line string) (x, y, z float64, err error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q has %d fields", ErrMalformedLine, line, len(fields))
	}
	var v [3]float64
	for i, f := range fields {
		v[i], err = strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrMalformedLine, line)
		}
	}
	return v[0], v[1], v[2], nil
}
