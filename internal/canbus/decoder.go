package canbus

import (
	"fmt"
	"sort"

	"github.com/banshee-data/racelogger/internal/sensor"
)

// Channel names a physical quantity carried in frames with a given
// arbitration id.
type Channel struct {
	Name          string
	ArbitrationID uint64
	Extractor     Extractor
}

// Decoder maps incoming frames to channel samples. It is read-only after
// construction and safe for concurrent use.
type Decoder struct {
	byID map[uint64][]Channel
}

// NewDecoder indexes channels by arbitration id. Channel names must be unique.
func NewDecoder(channels ...Channel) (*Decoder, error) {
	d := &Decoder{byID: make(map[uint64][]Channel)}
	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("CAN channel for id 0x%X has no name", ch.ArbitrationID)
		}
		if seen[ch.Name] {
			return nil, fmt.Errorf("duplicate CAN channel %q", ch.Name)
		}
		seen[ch.Name] = true
		d.byID[ch.ArbitrationID] = append(d.byID[ch.ArbitrationID], ch)
	}
	return d, nil
}

// IDs returns the arbitration ids the decoder is interested in, ascending.
func (d *Decoder) IDs() []uint64 {
	ids := make([]uint64, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Wants reports whether any channel is carried by frames with this id.
func (d *Decoder) Wants(id uint64) bool {
	_, ok := d.byID[id]
	return ok
}

// Decode converts a frame received at time t into one sample per matching
// channel. Frames with unknown ids yield nothing.
func (d *Decoder) Decode(t float64, f Frame) []sensor.CANSample {
	channels := d.byID[f.ArbitrationID]
	if len(channels) == 0 {
		return nil
	}
	out := make([]sensor.CANSample, 0, len(channels))
	for _, ch := range channels {
		v, err := ch.Extractor.Convert(f)
		if err != nil {
			continue
		}
		out = append(out, sensor.CANSample{
			Time:          t,
			ArbitrationID: f.ArbitrationID,
			Channel:       ch.Name,
			Value:         v,
		})
	}
	return out
}
