// Package config loads the logger's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/racelogger/internal/canbus"
	"github.com/banshee-data/racelogger/internal/serialmux"
	"github.com/banshee-data/racelogger/internal/units"
)

// DefaultConfigPath is the path to the shipped defaults file.
const DefaultConfigPath = "config/racelogger.defaults.json"

// DefaultDBPath is where the logger keeps its database when none is given.
const DefaultDBPath = "racelogger.db"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// LoggerConfig is the root configuration. Every field is optional; the Get*
// methods supply defaults for anything the file leaves out.
type LoggerConfig struct {
	// Session detection
	ActivateThreshold *float64 `json:"activate_threshold,omitempty"` // m/s
	MovementThreshold *float64 `json:"movement_threshold,omitempty"` // m/s
	Retention         *string  `json:"retention,omitempty"`          // duration string like "10s"
	PollInterval      *string  `json:"poll_interval,omitempty"`      // duration string like "200ms"

	// Sources
	GPS *SerialSource `json:"gps,omitempty"`
	IMU *SerialSource `json:"imu,omitempty"`
	CAN *CANSource    `json:"can,omitempty"`

	// Outputs
	RaceCapture *RaceCaptureOutput `json:"racecapture,omitempty"`
	DL1         *DL1Output         `json:"dl1,omitempty"`

	DBPath           *string  `json:"db_path,omitempty"`
	DebugListen      *string  `json:"debug_listen,omitempty"`
	DisplayUnits     *string  `json:"display_units,omitempty"`
	DisplayStaleSecs *float64 `json:"display_stale_secs,omitempty"`
}

// SerialSource is a line-oriented serial device. ReplayFile, when set,
// replaces the device with a recorded capture.
type SerialSource struct {
	Port         string                `json:"port,omitempty"`
	Options      serialmux.PortOptions `json:"options"`
	InitCommands []string              `json:"init_commands,omitempty"`
	ReplayFile   string                `json:"replay_file,omitempty"`
	ReplayRate   string                `json:"replay_rate,omitempty"` // duration between replayed lines
}

// Enabled reports whether the source has a device or a replay file.
func (s *SerialSource) Enabled() bool {
	return s != nil && (s.Port != "" || s.ReplayFile != "")
}

// GetReplayRate returns the replay line interval, default 100ms.
func (s *SerialSource) GetReplayRate() time.Duration {
	return parseDuration(s.ReplayRate, 100*time.Millisecond)
}

// CANSource is a SocketCAN interface or pcap capture and the channels to
// decode from it.
type CANSource struct {
	Interface  string          `json:"interface,omitempty"`
	ReplayFile string          `json:"replay_file,omitempty"`
	Channels   []CANChannelDef `json:"channels"`
}

// CANChannelDef describes one calibrated channel. ArbitrationID is an
// even-length hex string.
type CANChannelDef struct {
	Name          string   `json:"name"`
	ArbitrationID string   `json:"arbitration_id"`
	BitOffset     int      `json:"bit_offset"`
	BitLength     int      `json:"bit_length"`
	Scale         *float64 `json:"scale,omitempty"`
	Offset        float64  `json:"offset,omitempty"`
}

// Enabled reports whether the source has somewhere to read frames from.
func (c *CANSource) Enabled() bool {
	return c != nil && (c.Interface != "" || c.ReplayFile != "") && len(c.Channels) > 0
}

// RaceCaptureOutput is the serial sink for RaceCapture records.
type RaceCaptureOutput struct {
	Port    string                `json:"port"`
	Options serialmux.PortOptions `json:"options"`
}

// DL1Output configures the DL1 listener. RFCOMMChannel is used when set;
// otherwise TCPListen.
type DL1Output struct {
	RFCOMMChannel    *int     `json:"rfcomm_channel,omitempty"`
	TCPListen        string   `json:"tcp_listen,omitempty"`
	MaxBrakePressure *float64 `json:"max_brake_pressure,omitempty"`
}

// GetMaxBrakePressure returns the full-scale brake pressure, default 1e-6.
func (d *DL1Output) GetMaxBrakePressure() float64 {
	if d == nil || d.MaxBrakePressure == nil {
		return 1e-6
	}
	return *d.MaxBrakePressure
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyLoggerConfig returns a LoggerConfig with all fields nil.
func EmptyLoggerConfig() *LoggerConfig {
	return &LoggerConfig{}
}

// LoadLoggerConfig loads a LoggerConfig from a JSON file. The file must have
// a .json extension and be under 1MB. Omitted fields keep their defaults.
func LoadLoggerConfig(path string) (*LoggerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyLoggerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or a parent. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *LoggerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/protocol/racetech/
	}
	for _, path := range candidates {
		if cfg, err := LoadLoggerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *LoggerConfig) Validate() error {
	if c.ActivateThreshold != nil && *c.ActivateThreshold <= 0 {
		return fmt.Errorf("activate_threshold must be positive, got %f", *c.ActivateThreshold)
	}
	if c.MovementThreshold != nil && *c.MovementThreshold <= 0 {
		return fmt.Errorf("movement_threshold must be positive, got %f", *c.MovementThreshold)
	}
	if c.GetActivateThreshold() <= c.GetMovementThreshold() {
		return fmt.Errorf("activate_threshold %.2f must exceed movement_threshold %.2f",
			c.GetActivateThreshold(), c.GetMovementThreshold())
	}

	for name, s := range map[string]*string{"retention": c.Retention, "poll_interval": c.PollInterval} {
		if s == nil || *s == "" {
			continue
		}
		d, err := time.ParseDuration(*s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	for name, s := range map[string]*SerialSource{"gps": c.GPS, "imu": c.IMU} {
		if s == nil {
			continue
		}
		if _, err := s.Options.Normalize(); err != nil {
			return fmt.Errorf("%s options: %w", name, err)
		}
		if s.ReplayRate != "" {
			if _, err := time.ParseDuration(s.ReplayRate); err != nil {
				return fmt.Errorf("invalid %s replay_rate '%s': %w", name, s.ReplayRate, err)
			}
		}
	}
	if c.RaceCapture != nil {
		if _, err := c.RaceCapture.Options.Normalize(); err != nil {
			return fmt.Errorf("racecapture options: %w", err)
		}
	}

	if c.DL1 != nil {
		if ch := c.DL1.RFCOMMChannel; ch != nil && (*ch < 1 || *ch > 30) {
			return fmt.Errorf("dl1 rfcomm_channel must be between 1 and 30, got %d", *ch)
		}
		if p := c.DL1.MaxBrakePressure; p != nil && *p <= 0 {
			return fmt.Errorf("dl1 max_brake_pressure must be positive, got %g", *p)
		}
	}

	if c.DisplayUnits != nil {
		if err := units.Validate(*c.DisplayUnits); err != nil {
			return err
		}
	}

	if _, err := c.CANChannels(); err != nil {
		return err
	}
	return nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// GetActivateThreshold returns the session start speed in m/s, default 3.5.
func (c *LoggerConfig) GetActivateThreshold() float64 {
	if c.ActivateThreshold == nil {
		return 3.5
	}
	return *c.ActivateThreshold
}

// GetMovementThreshold returns the session keep-alive speed in m/s, default 2.0.
func (c *LoggerConfig) GetMovementThreshold() float64 {
	if c.MovementThreshold == nil {
		return 2.0
	}
	return *c.MovementThreshold
}

// GetRetention returns the idle buffer window, default 10s.
func (c *LoggerConfig) GetRetention() time.Duration {
	if c.Retention == nil {
		return 10 * time.Second
	}
	return parseDuration(*c.Retention, 10*time.Second)
}

// GetPollInterval returns the recorder cycle interval, default 200ms.
func (c *LoggerConfig) GetPollInterval() time.Duration {
	if c.PollInterval == nil {
		return 200 * time.Millisecond
	}
	return parseDuration(*c.PollInterval, 200*time.Millisecond)
}

// GetDBPath returns the database path, default racelogger.db.
func (c *LoggerConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetDebugListen returns the debug HTTP address, default localhost:8080.
func (c *LoggerConfig) GetDebugListen() string {
	if c.DebugListen == nil {
		return "localhost:8080"
	}
	return *c.DebugListen
}

// GetDisplayUnits returns the speed unit for debug views, default mph.
func (c *LoggerConfig) GetDisplayUnits() string {
	if c.DisplayUnits == nil {
		return units.MPH
	}
	return *c.DisplayUnits
}

// GetDisplayStaleSecs returns how old a source may get before the display
// reports it stale, default 2 seconds.
func (c *LoggerConfig) GetDisplayStaleSecs() float64 {
	if c.DisplayStaleSecs == nil {
		return 2
	}
	return *c.DisplayStaleSecs
}

// CANChannels builds decoder channels from the channel definitions.
func (c *LoggerConfig) CANChannels() ([]canbus.Channel, error) {
	if c.CAN == nil {
		return nil, nil
	}
	out := make([]canbus.Channel, 0, len(c.CAN.Channels))
	for _, def := range c.CAN.Channels {
		id, err := parseArbitrationID(def.ArbitrationID)
		if err != nil {
			return nil, fmt.Errorf("can channel %q: %w", def.Name, err)
		}
		opts := []canbus.ExtractorOption{canbus.WithOffset(def.Offset)}
		if def.Scale != nil {
			opts = append(opts, canbus.WithScale(*def.Scale))
		}
		ext, err := canbus.NewExtractor(def.BitOffset, def.BitLength, opts...)
		if err != nil {
			return nil, fmt.Errorf("can channel %q: %w", def.Name, err)
		}
		out = append(out, canbus.Channel{Name: def.Name, ArbitrationID: id, Extractor: ext})
	}
	if _, err := canbus.NewDecoder(out...); err != nil {
		return nil, err
	}
	return out, nil
}

func parseArbitrationID(s string) (uint64, error) {
	if s == "" || len(s)%2 != 0 {
		return 0, fmt.Errorf("%w: arbitration id %q must be an even-length hex string", canbus.ErrInvalidHex, s)
	}
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: arbitration id %q", canbus.ErrInvalidHex, s)
	}
	return id, nil
}

// DefaultLoggerConfig returns the built-in defaults with every scalar field
// populated. Sources and outputs are left unset.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		ActivateThreshold: ptrFloat64(3.5),
		MovementThreshold: ptrFloat64(2.0),
		Retention:         ptrString("10s"),
		PollInterval:      ptrString("200ms"),
		DBPath:            ptrString(DefaultDBPath),
		DebugListen:       ptrString("localhost:8080"),
		DisplayUnits:      ptrString(units.MPH),
		DisplayStaleSecs:  ptrFloat64(2),
		DL1: &DL1Output{
			RFCOMMChannel:    ptrInt(1),
			MaxBrakePressure: ptrFloat64(1e-6),
		},
	}
}
