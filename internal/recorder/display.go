package recorder

import (
	"fmt"

	"github.com/banshee-data/racelogger/internal/monitoring"
)

// Display shows the logger's health once per cycle. Times are unix seconds
// of the newest data from each source, zero when none has arrived.
type Display interface {
	Refresh(dbTime, gpsTime, imuTime, canTime float64, recording bool)
}

// LogDisplay is a Display for headless installs. It logs when a source goes
// stale or recovers and when recording starts or stops.
type LogDisplay struct {
	// StaleAfter is how old a source's newest sample may be before it is
	// reported stale, in seconds.
	StaleAfter float64
	// Now returns the current time in unix seconds.
	Now func() float64

	last      [3]float64
	stale     [3]bool
	recording bool
}

var sourceNames = [3]string{"gps", "imu", "can"}

func (d *LogDisplay) Refresh(dbTime, gpsTime, imuTime, canTime float64, recording bool) {
	if recording != d.recording {
		d.recording = recording
		if recording {
			monitoring.Logf("display: recording")
		} else {
			monitoring.Logf("display: idle (last database write %s)", formatAge(d.Now(), dbTime))
		}
	}

	now := d.Now()
	for i, t := range [3]float64{gpsTime, imuTime, canTime} {
		if t > 0 {
			d.last[i] = t
		}
		if d.last[i] == 0 {
			continue
		}
		stale := now-d.last[i] > d.StaleAfter
		if stale != d.stale[i] {
			d.stale[i] = stale
			if stale {
				monitoring.Logf("display: %s stale, last sample %s", sourceNames[i], formatAge(now, d.last[i]))
			} else {
				monitoring.Logf("display: %s ok", sourceNames[i])
			}
		}
	}
}

func formatAge(now, t float64) string {
	if t == 0 {
		return "never"
	}
	return fmt.Sprintf("%.1fs ago", now-t)
}
