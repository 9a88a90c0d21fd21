package recorder

import (
	"github.com/banshee-data/racelogger/internal/monitoring"
	"github.com/banshee-data/racelogger/internal/sensor"
)

// CAN channel names forwarded to analog feeds.
const (
	ChannelRPM           = "rpm"
	ChannelTPS           = "tps"
	ChannelBrakePressure = "brake_pressure"
)

// FeedWriter receives live position data. Both telemetry encoders
// implement it.
type FeedWriter interface {
	SendTimestamp(t float64) error
	SendGPSPosition(lat, lon float64) error
	SendGPSSpeed(speed float64) error
}

// AnalogFeed is implemented by feeds that also carry acceleration and
// engine channels.
type AnalogFeed interface {
	SendAcceleration(x, y, z float64) error
	SendRPM(rpm float64) error
	SendTPS(percent float64) error
	SendBrakePressure(pressure float64) error
}

// Flusher is implemented by feeds that queue records until the end of a
// cycle.
type Flusher interface {
	Flush() error
}

// forward sends one cycle's new samples to a feed. Errors are logged and
// the rest of the batch is still sent.
func forward(name string, f FeedWriter, batch sensor.Batch) {
	logErr := func(err error) {
		if err != nil {
			monitoring.Logf("feed %s: %v", name, err)
		}
	}

	for _, s := range batch.GPS {
		logErr(f.SendTimestamp(s.Time))
		logErr(f.SendGPSPosition(s.Lat, s.Lon))
		logErr(f.SendGPSSpeed(s.Speed))
	}

	if a, ok := f.(AnalogFeed); ok {
		for _, s := range batch.IMU {
			logErr(a.SendAcceleration(s.X, s.Y, s.Z))
		}
		for _, s := range batch.CAN {
			switch s.Channel {
			case ChannelRPM:
				logErr(a.SendRPM(s.Value))
			case ChannelTPS:
				logErr(a.SendTPS(s.Value))
			case ChannelBrakePressure:
				logErr(a.SendBrakePressure(s.Value))
			}
		}
	}

	if fl, ok := f.(Flusher); ok {
		logErr(fl.Flush())
	}
}
