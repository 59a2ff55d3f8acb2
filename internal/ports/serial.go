package ports

import "time"

// SerialPort is an open serial device.
//
// Read follows io.Reader semantics. When the device was opened with a read
// timeout, a read that sees no data returns zero bytes together with either
// a nil error or io.EOF, depending on the platform; callers treat both as
// an idle read.
type SerialPort interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// PortOpener opens serial devices.
type PortOpener interface {
	// Open opens device at baud with 8N1 framing. A zero readTimeout blocks
	// each read until data arrives.
	Open(device string, baud int, readTimeout time.Duration) (SerialPort, error)
}
