package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (SESAME_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", os.Getenv("SESAME_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("SESAME_LOG_FORMAT"), &cfg.LogFormat)

	s.setString("device", os.Getenv("SESAME_CAPTURE_DEVICE"), &cfg.Capture.Device)
	s.setString("output", os.Getenv("SESAME_CAPTURE_OUTPUT"), &cfg.Capture.Output)
	if err := s.setIntFromString("baud", os.Getenv("SESAME_CAPTURE_BAUD"), &cfg.Capture.Baud); err != nil {
		return err
	}
	if err := s.setIntFromString("chunk-size", os.Getenv("SESAME_CAPTURE_CHUNK_SIZE"), &cfg.Capture.ChunkSize); err != nil {
		return err
	}
	if err := s.setDuration("read-timeout", os.Getenv("SESAME_CAPTURE_READ_TIMEOUT"), &cfg.Capture.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("open-wait", os.Getenv("SESAME_CAPTURE_OPEN_WAIT"), &cfg.Capture.OpenWait); err != nil {
		return err
	}
	s.setBoolFromString("trace", os.Getenv("SESAME_CAPTURE_TRACE"), &cfg.Capture.Trace)

	s.setString("host", os.Getenv("SESAME_ECHO_HOST"), &cfg.Echo.Host)
	s.setString("prefix", os.Getenv("SESAME_ECHO_PREFIX"), &cfg.Echo.Prefix)
	if err := s.setIntFromString("port", os.Getenv("SESAME_ECHO_PORT"), &cfg.Echo.Port); err != nil {
		return err
	}
	if err := s.setIntFromString("max-message-bytes", os.Getenv("SESAME_ECHO_MAX_MESSAGE_BYTES"), &cfg.Echo.MaxMessageBytes); err != nil {
		return err
	}
	s.setBoolFromString("reuse-port", os.Getenv("SESAME_ECHO_REUSE_PORT"), &cfg.Echo.ReusePort)
	if err := s.setDuration("shutdown-timeout", os.Getenv("SESAME_ECHO_SHUTDOWN_TIMEOUT"), &cfg.Echo.ShutdownTimeout); err != nil {
		return err
	}

	return nil
}
