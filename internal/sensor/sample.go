// Package sensor defines the sample records produced by the GPS, IMU and CAN
// readers and the time-windowed buffer that holds them between polling cycles.
package sensor

// Source identifies a sample producer. Samples from one source are stored
// together and arrive in non-decreasing time order. Other packages can only
// use the values declared here.
type Source struct {
	name string
}

var (
	SourceGPS = Source{"gps"}
	SourceIMU = Source{"imu"}
	SourceCAN = Source{"can"}
)

// Sources lists the known producers in a stable order.
var Sources = []Source{SourceGPS, SourceIMU, SourceCAN}

func (s Source) String() string { return s.name }

// Sample is a single timestamped reading. The unexported method closes the
// set of implementations to the record types in this package.
type Sample interface {
	// Timestamp returns the sample time in unix seconds.
	Timestamp() float64
	sample()
}

// GPSSample is one position/velocity fix. Speed is in m/s, Track in degrees
// from true north, Altitude in metres.
type GPSSample struct {
	Time     float64 `json:"time"`
	Speed    float64 `json:"speed"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Altitude float64 `json:"alt,omitempty"`
	Track    float64 `json:"track,omitempty"`
}

// IMUSample holds accelerations along the vehicle axes, in g.
type IMUSample struct {
	Time float64 `json:"time"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// CANSample is a calibrated value extracted from one CAN frame.
type CANSample struct {
	Time          float64 `json:"time"`
	ArbitrationID uint64  `json:"arbitration_id"`
	Channel       string  `json:"channel"`
	Value         float64 `json:"value"`
}

func (s GPSSample) Timestamp() float64 { return s.Time }
func (s IMUSample) Timestamp() float64 { return s.Time }
func (s CANSample) Timestamp() float64 { return s.Time }

func (GPSSample) sample() {}
func (IMUSample) sample() {}
func (CANSample) sample() {}

// Batch carries the samples that arrived during one polling cycle.
type Batch struct {
	GPS []GPSSample
	IMU []IMUSample
	CAN []CANSample
}

// Empty reports whether the batch holds no samples at all.
func (b Batch) Empty() bool {
	return len(b.GPS) == 0 && len(b.IMU) == 0 && len(b.CAN) == 0
}

// Latest returns the timestamp of the newest sample per source, or zero for
// sources without data in this batch.
func (b Batch) Latest() map[Source]float64 {
	out := make(map[Source]float64, len(Sources))
	if n := len(b.GPS); n > 0 {
		out[SourceGPS] = b.GPS[n-1].Time
	}
	if n := len(b.IMU); n > 0 {
		out[SourceIMU] = b.IMU[n-1].Time
	}
	if n := len(b.CAN); n > 0 {
		out[SourceCAN] = b.CAN[n-1].Time
	}
	return out
}
