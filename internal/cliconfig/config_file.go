package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML and
// YAML friendly.
type FileConfig struct {
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`

	Capture FileCaptureConfig `toml:"capture" yaml:"capture"`
	Echo    FileEchoConfig    `toml:"echo" yaml:"echo"`
}

// FileCaptureConfig is the [capture] section.
type FileCaptureConfig struct {
	Device      string `toml:"device" yaml:"device"`
	Baud        int    `toml:"baud" yaml:"baud"`
	Output      string `toml:"output" yaml:"output"`
	ChunkSize   int    `toml:"chunk_size" yaml:"chunk_size"`
	ReadTimeout string `toml:"read_timeout" yaml:"read_timeout"`
	OpenWait    string `toml:"open_wait" yaml:"open_wait"`
	Trace       *bool  `toml:"trace" yaml:"trace"`
}

// FileEchoConfig is the [echo] section.
type FileEchoConfig struct {
	Host            string `toml:"host" yaml:"host"`
	Port            int    `toml:"port" yaml:"port"`
	Prefix          string `toml:"prefix" yaml:"prefix"`
	MaxMessageBytes int    `toml:"max_message_bytes" yaml:"max_message_bytes"`
	ReusePort       *bool  `toml:"reuse_port" yaml:"reuse_port"`
	ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoadFileConfig reads and parses a config file from the given path.
// Files ending in .yaml or .yml are YAML; anything else is TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.sesame/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".sesame", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	s.setString("device", fc.Capture.Device, &cfg.Capture.Device)
	s.setString("output", fc.Capture.Output, &cfg.Capture.Output)
	s.setInt("baud", fc.Capture.Baud, &cfg.Capture.Baud)
	s.setInt("chunk-size", fc.Capture.ChunkSize, &cfg.Capture.ChunkSize)
	if err := s.setDuration("read-timeout", fc.Capture.ReadTimeout, &cfg.Capture.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("open-wait", fc.Capture.OpenWait, &cfg.Capture.OpenWait); err != nil {
		return err
	}
	s.setBool("trace", fc.Capture.Trace, &cfg.Capture.Trace)

	s.setString("host", fc.Echo.Host, &cfg.Echo.Host)
	s.setString("prefix", fc.Echo.Prefix, &cfg.Echo.Prefix)
	s.setInt("port", fc.Echo.Port, &cfg.Echo.Port)
	s.setInt("max-message-bytes", fc.Echo.MaxMessageBytes, &cfg.Echo.MaxMessageBytes)
	s.setBool("reuse-port", fc.Echo.ReusePort, &cfg.Echo.ReusePort)
	if err := s.setDuration("shutdown-timeout", fc.Echo.ShutdownTimeout, &cfg.Echo.ShutdownTimeout); err != nil {
		return err
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
