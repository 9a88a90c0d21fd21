// Package protocol groups the binary telemetry feeds the logger can drive.
//
// Both feeds encode the same semantic channels (elapsed time, GPS position and
// speed, and for the DL1 feed acceleration, engine speed and analog inputs)
// into fixed-width big-endian records:
//
//   - racecapture: one byte message id followed by the fields, no checksum,
//     each record written to a single byte sink as it is produced.
//   - racetech: RaceTechnology DL1 records, queued and flushed in bulk with a
//     trailing sum-mod-256 checksum per record, broadcast to every connected
//     client.
package protocol

// Fixed-point scales shared by both feeds.
const (
	PositionScale = 1e7 // degrees
	SpeedScale    = 100 // m/s
)
