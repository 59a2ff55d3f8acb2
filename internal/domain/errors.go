package domain

import "errors"

// Domain errors represent error conditions shared by the capture utility and
// the echo service. Callers wrap them with context and check with errors.Is.
var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("sesame: invalid configuration")

	// ErrOpenDevice is returned when the serial device cannot be opened.
	ErrOpenDevice = errors.New("sesame: open serial device")

	// ErrOpenOutput is returned when the capture output file cannot be created.
	ErrOpenOutput = errors.New("sesame: open output file")

	// ErrRead is returned when a serial read fails.
	ErrRead = errors.New("sesame: serial read")

	// ErrWrite is returned when writing a chunk to the output fails.
	ErrWrite = errors.New("sesame: output write")

	// ErrBind is returned when the echo listener cannot bind its address.
	ErrBind = errors.New("sesame: bind listener")

	// ErrAlreadyRunning is returned when Serve() is called on a running server.
	ErrAlreadyRunning = errors.New("sesame: already running")

	// ErrNotRunning is returned when a transition requires a running server.
	ErrNotRunning = errors.New("sesame: not running")

	// ErrShutdownTimeout is returned when connection handlers outlive the
	// shutdown grace period.
	ErrShutdownTimeout = errors.New("sesame: shutdown timeout")
)
