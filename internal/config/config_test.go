package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/racelogger/internal/canbus"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyLoggerConfig()

	if got := cfg.GetActivateThreshold(); got != 3.5 {
		t.Errorf("GetActivateThreshold() = %v, want 3.5", got)
	}
	if got := cfg.GetMovementThreshold(); got != 2.0 {
		t.Errorf("GetMovementThreshold() = %v, want 2.0", got)
	}
	if got := cfg.GetRetention(); got != 10*time.Second {
		t.Errorf("GetRetention() = %v, want 10s", got)
	}
	if got := cfg.GetPollInterval(); got != 200*time.Millisecond {
		t.Errorf("GetPollInterval() = %v, want 200ms", got)
	}
	if got := cfg.GetDBPath(); got != DefaultDBPath {
		t.Errorf("GetDBPath() = %q, want %q", got, DefaultDBPath)
	}
	if got := cfg.GetDisplayUnits(); got != "mph" {
		t.Errorf("GetDisplayUnits() = %q, want mph", got)
	}
	if got := cfg.DL1.GetMaxBrakePressure(); got != 1e-6 {
		t.Errorf("GetMaxBrakePressure() = %v, want 1e-6", got)
	}
	if cfg.GPS.Enabled() || cfg.IMU.Enabled() || cfg.CAN.Enabled() {
		t.Error("sources should be disabled in an empty config")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on empty config: %v", err)
	}
}

func TestDefaultLoggerConfigMatchesGetters(t *testing.T) {
	cfg := DefaultLoggerConfig()
	empty := EmptyLoggerConfig()

	if cfg.GetActivateThreshold() != empty.GetActivateThreshold() {
		t.Errorf("activate threshold mismatch")
	}
	if cfg.GetMovementThreshold() != empty.GetMovementThreshold() {
		t.Errorf("movement threshold mismatch")
	}
	if cfg.GetRetention() != empty.GetRetention() {
		t.Errorf("retention mismatch")
	}
	if cfg.GetPollInterval() != empty.GetPollInterval() {
		t.Errorf("poll interval mismatch")
	}
	if cfg.GetDebugListen() != empty.GetDebugListen() {
		t.Errorf("debug listen mismatch")
	}
	if cfg.GetDisplayStaleSecs() != empty.GetDisplayStaleSecs() {
		t.Errorf("display stale mismatch")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestShippedDefaultsFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.GetActivateThreshold() != 3.5 || cfg.GetMovementThreshold() != 2.0 {
		t.Errorf("thresholds = %v/%v, want 3.5/2.0", cfg.GetActivateThreshold(), cfg.GetMovementThreshold())
	}
	if !cfg.GPS.Enabled() {
		t.Error("defaults should enable the GPS")
	}
	if len(cfg.GPS.InitCommands) == 0 {
		t.Error("defaults should carry GPS init commands")
	}

	channels, err := cfg.CANChannels()
	if err != nil {
		t.Fatalf("CANChannels() error: %v", err)
	}
	names := make(map[string]bool)
	for _, ch := range channels {
		names[ch.Name] = true
	}
	for _, want := range []string{"rpm", "tps", "brake_pressure"} {
		if !names[want] {
			t.Errorf("defaults missing CAN channel %q", want)
		}
	}
}

func TestLoadLoggerConfig(t *testing.T) {
	path := writeConfig(t, "logger.json", `{
  "activate_threshold": 5,
  "movement_threshold": 1.5,
  "poll_interval": "100ms",
  "gps": {"replay_file": "drive.nmea", "replay_rate": "50ms"},
  "can": {
    "replay_file": "bus.pcap",
    "channels": [{"name": "rpm", "arbitration_id": "0080", "bit_offset": 8, "bit_length": 16, "scale": 0.5, "offset": 10}]
  },
  "dl1": {"tcp_listen": ":2000", "max_brake_pressure": 150}
}`)

	cfg, err := LoadLoggerConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetActivateThreshold() != 5 {
		t.Errorf("GetActivateThreshold() = %v, want 5", cfg.GetActivateThreshold())
	}
	if cfg.GetPollInterval() != 100*time.Millisecond {
		t.Errorf("GetPollInterval() = %v, want 100ms", cfg.GetPollInterval())
	}
	// Omitted fields fall back to defaults.
	if cfg.GetRetention() != 10*time.Second {
		t.Errorf("GetRetention() = %v, want 10s", cfg.GetRetention())
	}
	if !cfg.GPS.Enabled() || cfg.GPS.GetReplayRate() != 50*time.Millisecond {
		t.Errorf("GPS replay not configured: %+v", cfg.GPS)
	}
	if cfg.IMU.Enabled() {
		t.Error("IMU should be disabled")
	}
	if !cfg.CAN.Enabled() {
		t.Error("CAN replay should be enabled")
	}
	if cfg.DL1.GetMaxBrakePressure() != 150 {
		t.Errorf("GetMaxBrakePressure() = %v, want 150", cfg.DL1.GetMaxBrakePressure())
	}
	if cfg.DL1.RFCOMMChannel != nil {
		t.Errorf("RFCOMMChannel = %v, want nil", *cfg.DL1.RFCOMMChannel)
	}

	channels, err := cfg.CANChannels()
	if err != nil {
		t.Fatalf("CANChannels() error: %v", err)
	}
	if len(channels) != 1 || channels[0].ArbitrationID != 0x80 {
		t.Fatalf("channels = %+v", channels)
	}
	// 0x1234 * 0.5 + 10
	got, err := channels[0].Extractor.Convert(canbus.MustParseFrame("0080", "0012340000000000"))
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}
	if got != 2340 {
		t.Errorf("Convert = %v, want 2340", got)
	}
}

func TestLoadLoggerConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"inverted thresholds", `{"activate_threshold": 1.5}`, "must exceed"},
		{"negative movement", `{"movement_threshold": -1}`, "movement_threshold must be positive"},
		{"zero movement", `{"movement_threshold": 0}`, "movement_threshold must be positive"},
		{"zero movement low activate", `{"activate_threshold": 1, "movement_threshold": 0}`, "movement_threshold must be positive"},
		{"bad retention", `{"retention": "soon"}`, "invalid retention"},
		{"zero poll", `{"poll_interval": "0s"}`, "poll_interval must be positive"},
		{"bad parity", `{"gps": {"options": {"parity": "X"}}}`, "gps options"},
		{"bad units", `{"display_units": "furlongs"}`, "furlongs"},
		{"bad rfcomm channel", `{"dl1": {"rfcomm_channel": 31}}`, "rfcomm_channel"},
		{"bad brake pressure", `{"dl1": {"max_brake_pressure": 0}}`, "max_brake_pressure"},
		{"odd arbitration id", `{"can": {"channels": [{"name": "x", "arbitration_id": "080", "bit_length": 8}]}}`, "even-length"},
		{"bit range", `{"can": {"channels": [{"name": "x", "arbitration_id": "80", "bit_offset": 60, "bit_length": 8}]}}`, "out of bounds"},
		{"duplicate channel", `{"can": {"channels": [
			{"name": "x", "arbitration_id": "80", "bit_length": 8},
			{"name": "x", "arbitration_id": "81", "bit_length": 8}]}}`, "duplicate"},
		{"malformed", `{"activate_threshold": `, "parse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadLoggerConfig(writeConfig(t, "c.json", tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadLoggerConfigInvalidHexIsWrapped(t *testing.T) {
	cfg := &LoggerConfig{CAN: &CANSource{Channels: []CANChannelDef{{Name: "x", ArbitrationID: "zz", BitLength: 8}}}}
	_, err := cfg.CANChannels()
	if !errors.Is(err, canbus.ErrInvalidHex) {
		t.Errorf("err = %v, want ErrInvalidHex", err)
	}
}

func TestLoadLoggerConfigFileChecks(t *testing.T) {
	if _, err := LoadLoggerConfig(writeConfig(t, "logger.yaml", "{}")); err == nil {
		t.Error("expected extension error")
	}
	if _, err := LoadLoggerConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected stat error")
	}

	big := writeConfig(t, "big.json", `{"db_path": "`+strings.Repeat("a", maxFileSize)+`"}`)
	_, err := LoadLoggerConfig(big)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("err = %v, want too large", err)
	}
}
