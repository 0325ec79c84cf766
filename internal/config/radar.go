// Package config loads the radar service configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/rd03d/internal/rd03d"
	"github.com/banshee-data/rd03d/internal/serialport"
	"github.com/banshee-data/rd03d/internal/units"
)

// DefaultConfigPath is the path to the documented defaults file.
const DefaultConfigPath = "config/radar.defaults.json"

// Fallback values used by the Get* accessors when a field is unset.
const (
	DefaultPortPath     = "/dev/ttyS0"
	DefaultReadTimeout  = "100ms"
	DefaultSettleDelay  = "200ms"
	DefaultPollInterval = "1s"
	DefaultSpeedUnits   = units.MPS
	DefaultDBPath       = "rd03d.db"
	DefaultListen       = ":8080"
)

// RadarConfig is the root configuration for the radar service. Every field is
// optional; omitted fields fall back to the defaults above.
type RadarConfig struct {
	// Serial link
	PortPath    *string `json:"port_path,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty"` // duration string like "100ms"

	// Session
	SettleDelay    *string `json:"settle_delay,omitempty"`
	MultiTarget    *bool   `json:"multi_target,omitempty"`
	BufferCapacity *int    `json:"buffer_capacity,omitempty"`
	PollInterval   *string `json:"poll_interval,omitempty"`

	// Service
	SpeedUnits *string `json:"speed_units,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	Listen     *string `json:"listen,omitempty"`
}

// LoadRadarConfig loads a RadarConfig from a JSON file. The file must have a
// .json extension and be under 1MB. Fields omitted from the file keep their
// defaults, so partial configs are safe.
func LoadRadarConfig(path string) (*RadarConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RadarConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *RadarConfig) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	for name, v := range map[string]*string{
		"read_timeout":  c.ReadTimeout,
		"settle_delay":  c.SettleDelay,
		"poll_interval": c.PollInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
	}
	if c.PollInterval != nil && *c.PollInterval != "" {
		if d, _ := time.ParseDuration(*c.PollInterval); d == 0 {
			return fmt.Errorf("poll_interval must be greater than zero")
		}
	}

	// A buffer shorter than one frame could never hold a complete report.
	if c.BufferCapacity != nil && *c.BufferCapacity < rd03d.MinFrameLen {
		return fmt.Errorf("buffer_capacity must be at least %d, got %d", rd03d.MinFrameLen, *c.BufferCapacity)
	}

	if c.SpeedUnits != nil && !units.IsValid(*c.SpeedUnits) {
		return fmt.Errorf("invalid speed_units %q: must be one of %s", *c.SpeedUnits, units.GetValidUnitsString())
	}

	return nil
}

func parseDuration(v *string, fallback string) time.Duration {
	s := fallback
	if v != nil && *v != "" {
		s = *v
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func stringOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

// GetPortPath returns the serial device path or the default.
func (c *RadarConfig) GetPortPath() string {
	return stringOr(c.PortPath, DefaultPortPath)
}

// GetBaudRate returns the baud rate or the default.
func (c *RadarConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return serialport.DefaultBaudRate
	}
	return *c.BaudRate
}

// GetReadTimeout returns the serial read timeout.
func (c *RadarConfig) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, DefaultReadTimeout)
}

// GetSettleDelay returns the wait after opening the port and after each mode
// command.
func (c *RadarConfig) GetSettleDelay() time.Duration {
	return parseDuration(c.SettleDelay, DefaultSettleDelay)
}

// GetMultiTarget returns the multi_target value or the default.
func (c *RadarConfig) GetMultiTarget() bool {
	if c.MultiTarget == nil {
		return true // default: track up to three targets
	}
	return *c.MultiTarget
}

// GetBufferCapacity returns the frame buffer capacity or the default.
func (c *RadarConfig) GetBufferCapacity() int {
	if c.BufferCapacity == nil {
		return rd03d.DefaultBufferCapacity
	}
	return *c.BufferCapacity
}

// GetPollInterval returns the poll loop period.
func (c *RadarConfig) GetPollInterval() time.Duration {
	return parseDuration(c.PollInterval, DefaultPollInterval)
}

// GetSpeedUnits returns the display units for speeds.
func (c *RadarConfig) GetSpeedUnits() string {
	return stringOr(c.SpeedUnits, DefaultSpeedUnits)
}

// GetDBPath returns the sqlite database path.
func (c *RadarConfig) GetDBPath() string {
	return stringOr(c.DBPath, DefaultDBPath)
}

// GetListen returns the HTTP listen address.
func (c *RadarConfig) GetListen() string {
	return stringOr(c.Listen, DefaultListen)
}

// PortOptions returns the serial options for opening the sensor's UART.
func (c *RadarConfig) PortOptions() serialport.PortOptions {
	return serialport.PortOptions{
		BaudRate:    c.GetBaudRate(),
		ReadTimeout: c.GetReadTimeout(),
	}
}

// SessionConfig returns the session settings. Clock and Factory are left for
// the caller to fill in.
func (c *RadarConfig) SessionConfig() rd03d.Config {
	return rd03d.Config{
		BufferCapacity: c.GetBufferCapacity(),
		SettleDelay:    c.GetSettleDelay(),
		InitialMode:    rd03d.ModeFor(c.GetMultiTarget()),
	}
}
