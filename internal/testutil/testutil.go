// Package testutil provides shared test helpers.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/banshee-data/racelogger/internal/monitoring"
)

// MuteLogs silences monitoring.Logf for the duration of the test.
func MuteLogs(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

// CaptureLogs records monitoring.Logf output for the duration of the test.
func CaptureLogs(t *testing.T) *monitoring.Capture {
	t.Helper()
	prev := monitoring.Logf
	c := &monitoring.Capture{}
	monitoring.SetLogger(c.Logf)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	return c
}

// TempDBPath returns a database file path inside the test's temp dir.
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "racelogger.db")
}

// LocalhostRequest creates a request that passes tsweb's debug access check.
func LocalhostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}
