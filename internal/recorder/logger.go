// Package recorder decides from GPS speed when a driving session is under
// way, persists the session's samples and forwards live data to telemetry
// feeds.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/racelogger/internal/monitoring"
	"github.com/banshee-data/racelogger/internal/sensor"
	"github.com/banshee-data/racelogger/internal/timeutil"
)

const (
	// DefaultActivateThreshold is the GPS speed in m/s above which a
	// session starts.
	DefaultActivateThreshold = 3.5
	// DefaultMovementThreshold is the GPS speed in m/s a batch must exceed
	// to keep a session open.
	DefaultMovementThreshold = 2.0
	// DefaultRetention bounds how much history is kept while not logging.
	DefaultRetention = 10 * time.Second
	// DefaultPollInterval is the sleep between polling cycles.
	DefaultPollInterval = 200 * time.Millisecond
)

// Store persists sessions. *db.DB implements it.
type Store interface {
	NewSession(ctx context.Context) (string, error)
	PopulateSessionInfo(ctx context.Context, sessionID string) error
	InsertGPSUpdates(ctx context.Context, sessionID string, samples []sensor.GPSSample) error
	InsertIMUUpdates(ctx context.Context, sessionID string, samples []sensor.IMUSample) error
	InsertCANUpdates(ctx context.Context, sessionID string, samples []sensor.CANSample) error
}

// Feed is a named live telemetry output.
type Feed struct {
	Name   string
	Writer FeedWriter
}

// Options tune a SessionLogger. Zero values select the defaults, so a
// threshold of 0 cannot be expressed here.
type Options struct {
	ActivateThreshold float64
	MovementThreshold float64
	Retention         time.Duration
	PollInterval      time.Duration
	Clock             timeutil.Clock
	Display           Display
	Feeds             []Feed
}

func (o Options) withDefaults() Options {
	if o.ActivateThreshold == 0 {
		o.ActivateThreshold = DefaultActivateThreshold
	}
	if o.MovementThreshold == 0 {
		o.MovementThreshold = DefaultMovementThreshold
	}
	if o.Retention == 0 {
		o.Retention = DefaultRetention
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// SessionLogger is the recording state machine. Process, Start and Shutdown
// are called from a single goroutine; Status may be called from any.
type SessionLogger struct {
	store Store
	opts  Options
	buf   *sensor.DataBuffer

	state       State
	sessionID   string
	updateTimes map[sensor.Source]float64
	dbTime      float64

	mu     sync.Mutex
	status Status
}

// New creates a logger in the initialized state. A nil store disables
// recording; feeds and the display still run.
func New(store Store, opts Options) (*SessionLogger, error) {
	opts = opts.withDefaults()
	if opts.ActivateThreshold <= opts.MovementThreshold {
		return nil, fmt.Errorf("activate threshold %.2f m/s must exceed movement threshold %.2f m/s",
			opts.ActivateThreshold, opts.MovementThreshold)
	}
	l := &SessionLogger{
		store:       store,
		opts:        opts,
		buf:         sensor.NewDataBuffer(),
		updateTimes: make(map[sensor.Source]float64),
	}
	l.publish()
	return l, nil
}

// State returns the current state.
func (l *SessionLogger) State() State {
	return l.state
}

// SessionID returns the open session, or "" when not logging.
func (l *SessionLogger) SessionID() string {
	return l.sessionID
}

// Buffer exposes the sample buffer for inspection.
func (l *SessionLogger) Buffer() *sensor.DataBuffer {
	return l.buf
}

// Start moves an initialized logger to ready.
func (l *SessionLogger) Start() error {
	if l.state != StateInitialized {
		return fmt.Errorf("%w: Start from %s", ErrInvalidState, l.state)
	}
	l.state = StateReady
	l.publish()
	return nil
}

// Process runs one polling cycle over the samples that arrived since the
// previous one.
func (l *SessionLogger) Process(ctx context.Context, batch sensor.Batch) error {
	if l.state != StateReady && l.state != StateLogging {
		return fmt.Errorf("%w: Process from %s", ErrInvalidState, l.state)
	}

	l.buf.AddBatch(batch)

	if len(batch.GPS) > 0 {
		switch l.state {
		case StateReady:
			if l.store != nil && anyFaster(batch.GPS, l.opts.ActivateThreshold) {
				l.activate(ctx)
			}
		case StateLogging:
			if !anyFaster(batch.GPS, l.opts.MovementThreshold) {
				l.deactivate(ctx)
			}
		}
	}

	switch l.state {
	case StateReady:
		now := timeutil.Seconds(l.opts.Clock.Now())
		l.buf.ExpireOlderThan(now - l.opts.Retention.Seconds())
	case StateLogging:
		l.persist(ctx)
	default:
		return fmt.Errorf("%w: %s after transition", ErrInvalidState, l.state)
	}

	for _, f := range l.opts.Feeds {
		forward(f.Name, f.Writer, batch)
	}

	for src, t := range batch.Latest() {
		l.updateTimes[src] = t
	}
	if l.opts.Display != nil {
		l.opts.Display.Refresh(l.dbTime,
			l.updateTimes[sensor.SourceGPS],
			l.updateTimes[sensor.SourceIMU],
			l.updateTimes[sensor.SourceCAN],
			l.state == StateLogging)
	}

	l.mu.Lock()
	l.status.Cycles++
	l.mu.Unlock()
	l.publish()
	return nil
}

func anyFaster(samples []sensor.GPSSample, threshold float64) bool {
	for _, s := range samples {
		if s.Speed > threshold {
			return true
		}
	}
	return false
}

// activate opens a session and drops the buffered history from before the
// car last stood still.
func (l *SessionLogger) activate(ctx context.Context) {
	id, err := l.store.NewSession(ctx)
	if err != nil {
		monitoring.Logf("Failed to start session: %v", err)
		return
	}
	monitoring.Logf("New session: %s", id)

	gps, _ := sensor.Typed[sensor.GPSSample](l.buf, sensor.SourceGPS)
	var lastStill float64
	for _, s := range gps {
		if s.Speed < l.opts.MovementThreshold && s.Time > lastStill {
			lastStill = s.Time
		}
	}
	l.buf.ExpireOlderThan(lastStill)

	l.sessionID = id
	l.state = StateLogging
	l.mu.Lock()
	l.status.SessionsStarted++
	l.mu.Unlock()
}

// deactivate finalizes the open session and returns to ready.
func (l *SessionLogger) deactivate(ctx context.Context) {
	if err := l.store.PopulateSessionInfo(ctx, l.sessionID); err != nil {
		monitoring.Logf("Failed to finalize session %s: %v", l.sessionID, err)
	} else {
		monitoring.Logf("Session %s finished", l.sessionID)
	}
	l.sessionID = ""
	l.state = StateReady
}

// persist writes every buffered source as an independent attempt and then
// clears the buffer, whether or not the writes succeeded.
func (l *SessionLogger) persist(ctx context.Context) {
	failed := 0
	insert := func(src sensor.Source, err error) {
		if err != nil {
			failed++
			monitoring.Logf("Failed to insert %s data: %v", src, err)
		}
	}

	if gps, err := sensor.Typed[sensor.GPSSample](l.buf, sensor.SourceGPS); err == nil && len(gps) > 0 {
		insert(sensor.SourceGPS, l.store.InsertGPSUpdates(ctx, l.sessionID, gps))
	}
	if imu, err := sensor.Typed[sensor.IMUSample](l.buf, sensor.SourceIMU); err == nil && len(imu) > 0 {
		insert(sensor.SourceIMU, l.store.InsertIMUUpdates(ctx, l.sessionID, imu))
	}
	if can, err := sensor.Typed[sensor.CANSample](l.buf, sensor.SourceCAN); err == nil && len(can) > 0 {
		insert(sensor.SourceCAN, l.store.InsertCANUpdates(ctx, l.sessionID, can))
	}
	l.buf.Clear()

	if failed == 0 {
		l.dbTime = timeutil.Seconds(l.opts.Clock.Now())
	}
	l.mu.Lock()
	l.status.InsertFailures += int64(failed)
	l.mu.Unlock()
}

// Shutdown finalizes any open session and moves to done. Calling it again
// is a no-op.
func (l *SessionLogger) Shutdown(ctx context.Context) {
	if l.state == StateDone {
		return
	}
	if l.state == StateLogging {
		l.persist(ctx)
		l.deactivate(ctx)
	}
	l.state = StateDone
	l.publish()
}

// Producers are the sample channels drained each cycle. A nil channel is a
// source that is not fitted.
type Producers struct {
	GPS <-chan sensor.GPSSample
	IMU <-chan sensor.IMUSample
	CAN <-chan sensor.CANSample
}

// Drain takes every sample currently queued without blocking.
func (p Producers) Drain() sensor.Batch {
	return sensor.Batch{
		GPS: drain(p.GPS),
		IMU: drain(p.IMU),
		CAN: drain(p.CAN),
	}
}

func drain[T any](ch <-chan T) []T {
	var out []T
	if ch == nil {
		return nil
	}
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

// Run polls the producers until ctx ends or an invariant is violated. The
// logger is started if needed and shut down on return, so an open session
// is always finalized.
func (l *SessionLogger) Run(ctx context.Context, p Producers) error {
	if l.state == StateInitialized {
		if err := l.Start(); err != nil {
			return err
		}
	}
	defer l.Shutdown(context.WithoutCancel(ctx))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.Process(ctx, p.Drain()); err != nil {
			return err
		}
		l.opts.Clock.Sleep(l.opts.PollInterval)
	}
}
