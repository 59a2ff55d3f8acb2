package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/opensesame/sesametools/internal/capture"
	"github.com/opensesame/sesametools/internal/domain"
	"github.com/opensesame/sesametools/internal/echo"
)

// Defaults for the capture utility.
const (
	DefaultDevice      = "/dev/cu.usbmodem1101"
	DefaultBaud        = 115200
	DefaultOutput      = "../serial_data.f32"
	DefaultReadTimeout = 500 * time.Millisecond
)

// Defaults for the echo service.
const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 80
)

// Defaults shared by both commands.
const (
	DefaultLogLevel  = "debug"
	DefaultLogFormat = LogFormatAuto
)

// Config holds CLI configuration for serialcap and wsecho.
type Config struct {
	LogLevel  string
	LogFormat string

	Capture CaptureConfig
	Echo    EchoConfig
}

// CaptureConfig configures serialcap.
type CaptureConfig struct {
	Device      string
	Baud        int
	Output      string
	ChunkSize   int
	ReadTimeout time.Duration
	OpenWait    time.Duration
	Trace       bool
}

// EchoConfig configures wsecho.
type EchoConfig struct {
	Host            string
	Port            int
	Prefix          string
	MaxMessageBytes int
	ReusePort       bool
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Capture: CaptureConfig{
			Device:      DefaultDevice,
			Baud:        DefaultBaud,
			Output:      DefaultOutput,
			ChunkSize:   domain.DefaultChunkSize,
			ReadTimeout: DefaultReadTimeout,
			Trace:       true,
		},
		Echo: EchoConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			Prefix:          echo.DefaultPrefix,
			MaxMessageBytes: echo.DefaultMaxMessageBytes,
			ShutdownTimeout: echo.DefaultShutdownTimeout,
		},
	}
}

// Validate checks the shared logging settings.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return invalid("log-level %q: %v", c.LogLevel, err)
	}
	switch c.LogFormat {
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	case "":
		c.LogFormat = DefaultLogFormat
	default:
		return invalid("log-format %q must be auto, console or json", c.LogFormat)
	}
	return nil
}

// Validate checks the capture configuration.
func (c *CaptureConfig) Validate() error {
	if c.Device == "" {
		return invalid("device is required")
	}
	if c.Output == "" {
		return invalid("output is required")
	}
	if c.Baud <= 0 {
		return invalid("baud must be positive")
	}
	if c.ChunkSize <= 0 {
		return invalid("chunk-size must be positive")
	}
	if c.ReadTimeout < 0 {
		return invalid("read-timeout must not be negative")
	}
	if c.OpenWait < 0 {
		return invalid("open-wait must not be negative")
	}
	return nil
}

// Validate checks the echo configuration and sets derived defaults.
func (c *EchoConfig) Validate() error {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port < 1 || c.Port > 65535 {
		return invalid("port %d out of range 1-65535", c.Port)
	}
	if c.MaxMessageBytes <= 0 {
		return invalid("max-message-bytes must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("shutdown-timeout must be positive")
	}
	return nil
}

// CaptureRun converts the section into a capture run configuration.
func (c CaptureConfig) CaptureRun() capture.Config {
	return capture.Config{
		Device:      c.Device,
		Baud:        c.Baud,
		Output:      c.Output,
		ChunkSize:   c.ChunkSize,
		ReadTimeout: c.ReadTimeout,
		OpenWait:    c.OpenWait,
		Trace:       c.Trace,
	}
}

// Server converts the section into an echo server configuration.
func (c EchoConfig) Server() echo.Config {
	return echo.Config{
		Host:            c.Host,
		Port:            c.Port,
		Prefix:          c.Prefix,
		MaxMessageBytes: int64(c.MaxMessageBytes),
		ReusePort:       c.ReusePort,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
