// Package serial adapts github.com/tarm/serial to ports.PortOpener.
package serial

import (
	"fmt"
	"time"

	"github.com/tarm/serial"

	"github.com/opensesame/sesametools/internal/ports"
)

// minReadTimeout is the termios VTIME resolution; shorter positive timeouts
// are rounded up so they do not silently become blocking reads.
const minReadTimeout = 100 * time.Millisecond

// Opener opens serial devices with 8N1 framing.
type Opener struct{}

// NewOpener creates an Opener.
func NewOpener() *Opener {
	return &Opener{}
}

// Open opens device at baud. readTimeout bounds each read; zero blocks.
func (Opener) Open(device string, baud int, readTimeout time.Duration) (ports.SerialPort, error) {
	port, err := serial.OpenPort(portConfig(device, baud, readTimeout))
	if err != nil {
		return nil, fmt.Errorf("%s at %d baud: %w", device, baud, err)
	}
	return port, nil
}

func portConfig(device string, baud int, readTimeout time.Duration) *serial.Config {
	if readTimeout > 0 && readTimeout < minReadTimeout {
		readTimeout = minReadTimeout
	}
	return &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: readTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
}
