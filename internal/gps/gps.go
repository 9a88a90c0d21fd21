// Package gps turns NMEA sentences from a serial receiver into GPS samples.
package gps

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/banshee-data/racelogger/internal/monitoring"
	"github.com/banshee-data/racelogger/internal/sensor"
	"github.com/banshee-data/racelogger/internal/serialmux"
	"github.com/banshee-data/racelogger/internal/timeutil"
	"github.com/banshee-data/racelogger/internal/units"
)

// ClockSkewTolerance is how far the host clock may drift from GPS time
// before a warning is logged. Boards without an RTC often boot far in the
// past.
const ClockSkewTolerance = 10 * time.Minute

const sampleBacklog = 256

// Producer subscribes to a receiver's line stream and emits one sample per
// valid RMC sentence. Altitude comes from the most recent GGA fix.
type Producer struct {
	mux   serialmux.SerialMuxInterface
	clock timeutil.Clock
	out   chan sensor.GPSSample

	altitude    float64
	skewChecked bool

	parseErrors atomic.Int64
	dropped     atomic.Int64
}

// NewProducer creates a producer reading from mux.
func NewProducer(mux serialmux.SerialMuxInterface, clock timeutil.Clock) *Producer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Producer{
		mux:   mux,
		clock: clock,
		out:   make(chan sensor.GPSSample, sampleBacklog),
	}
}

// Samples returns the receive side of the sample channel.
func (p *Producer) Samples() <-chan sensor.GPSSample {
	return p.out
}

// ParseErrors returns how many lines could not be parsed as NMEA.
func (p *Producer) ParseErrors() int64 {
	return p.parseErrors.Load()
}

// Dropped returns the number of samples discarded because the backlog was full.
func (p *Producer) Dropped() int64 {
	return p.dropped.Load()
}

// Run consumes lines until ctx ends or the mux closes the subscription.
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
			if s, ok := p.handleLine(line); ok {
				select {
				case p.out <- s:
				default:
					p.dropped.Add(1)
				}
			}
		}
	}
}

// handleLine parses one sentence. It returns a sample for valid RMC fixes.
func (p *Producer) handleLine(line string) (sensor.GPSSample, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return sensor.GPSSample{}, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		if p.parseErrors.Add(1) == 1 {
			monitoring.Logf("gps: ignoring unparseable sentence %q: %v", line, err)
		}
		return sensor.GPSSample{}, false
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		if s.FixQuality != nmea.Invalid {
			p.altitude = s.Altitude
		}
	case nmea.RMC:
		if s.Validity != nmea.ValidRMC {
			return sensor.GPSSample{}, false
		}
		now := p.clock.Now()
		p.checkSkew(s, now)
		return sensor.GPSSample{
			Time:     timeutil.Seconds(now),
			Speed:    units.KnotsToMPS(s.Speed),
			Lat:      s.Latitude,
			Lon:      s.Longitude,
			Altitude: p.altitude,
			Track:    s.Course,
		}, true
	}
	return sensor.GPSSample{}, false
}

func (p *Producer) checkSkew(rmc nmea.RMC, now time.Time) {
	if p.skewChecked {
		return
	}
	fix, ok := FixTime(rmc)
	if !ok {
		return
	}
	p.skewChecked = true
	if skew, bad := ClockSkew(fix, now); bad {
		monitoring.Logf("gps: host clock is %s off GPS time %s; set the system date before logging",
			skew.Round(time.Second), fix.Format(time.RFC3339))
	}
}

// FixTime returns the UTC time of an RMC fix, if it carries both a date and
// a time.
func FixTime(rmc nmea.RMC) (time.Time, bool) {
	if !rmc.Date.Valid || !rmc.Time.Valid {
		return time.Time{}, false
	}
	return time.Date(2000+rmc.Date.YY, time.Month(rmc.Date.MM), rmc.Date.DD,
		rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second,
		rmc.Time.Millisecond*int(time.Millisecond), time.UTC), true
}

// ClockSkew returns host minus GPS time and whether it exceeds
// ClockSkewTolerance.
func ClockSkew(gpsTime, host time.Time) (time.Duration, bool) {
	d := host.Sub(gpsTime)
	if d < 0 {
		return d, -d > ClockSkewTolerance
	}
	return d, d > ClockSkewTolerance
}

// Command frames a receiver command body with the NMEA leader and checksum,
// e.g. Command("PMTK220,100") is "$PMTK220,100*2F".
func Command(body string) string {
	body = strings.TrimPrefix(body, "$")
	if i := strings.IndexByte(body, '*'); i >= 0 {
		body = body[:i]
	}
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, cs)
}
