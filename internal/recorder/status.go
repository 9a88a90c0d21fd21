package recorder

import (
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/racelogger/internal/httputil"
	"github.com/banshee-data/racelogger/internal/sensor"
)

// Status is a point-in-time view of the logger for the debug route.
type Status struct {
	State           string             `json:"state"`
	SessionID       string             `json:"session_id,omitempty"`
	Buffered        map[string]int     `json:"buffered"`
	LastSample      map[string]float64 `json:"last_sample"`
	LastDBWrite     float64            `json:"last_db_write"`
	Cycles          int64              `json:"cycles"`
	SessionsStarted int64              `json:"sessions_started"`
	InsertFailures  int64              `json:"insert_failures"`
}

// publish refreshes the snapshot returned by Status.
func (l *SessionLogger) publish() {
	buffered := make(map[string]int, len(sensor.Sources))
	last := make(map[string]float64, len(sensor.Sources))
	for _, src := range sensor.Sources {
		buffered[src.String()] = l.buf.Len(src)
		last[src.String()] = l.updateTimes[src]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.State = l.state.String()
	l.status.SessionID = l.sessionID
	l.status.Buffered = buffered
	l.status.LastSample = last
	l.status.LastDBWrite = l.dbTime
}

// Status returns the latest snapshot. It is safe to call concurrently with
// the polling loop.
func (l *SessionLogger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.status
	s.Buffered = make(map[string]int, len(l.status.Buffered))
	for k, v := range l.status.Buffered {
		s.Buffered[k] = v
	}
	s.LastSample = make(map[string]float64, len(l.status.LastSample))
	for k, v := range l.status.LastSample {
		s.LastSample[k] = v
	}
	return s
}

// AttachAdminRoutes registers /debug/recorder with the JSON status.
func (l *SessionLogger) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Recorder state", func() any { return l.Status().State })
	debug.Handle("recorder", "Session logger status (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, l.Status())
	}))
}
