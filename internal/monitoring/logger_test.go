package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestCapture(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var c Capture
	SetLogger(c.Logf)
	Logf("insert failed for %s: %v", "gps", "boom")
	Logf("second")

	lines := c.Lines()
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if lines[0] != "insert failed for gps: boom" {
		t.Errorf("lines[0] = %q", lines[0])
	}
}
