// Package capture drains a serial device into an output sink until the
// sentinel chunk arrives.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/opensesame/sesametools/internal/domain"
	"github.com/opensesame/sesametools/internal/ports"
)

// Config describes one capture run.
type Config struct {
	Device      string
	Baud        int
	Output      string
	ChunkSize   int
	ReadTimeout time.Duration

	// OpenWait keeps retrying a device that fails to open for up to this
	// long. Zero fails on the first attempt.
	OpenWait time.Duration

	// Trace logs every received chunk at debug level.
	Trace bool
}

// Capturer runs captures against injected device and output openers.
type Capturer struct {
	ports   ports.PortOpener
	outputs ports.SinkOpener
	logger  ports.Logger

	backoffInitial time.Duration
	backoffMax     time.Duration
}

// New creates a Capturer.
func New(portOpener ports.PortOpener, sinkOpener ports.SinkOpener, logger ports.Logger) *Capturer {
	return &Capturer{
		ports:   portOpener,
		outputs: sinkOpener,
		logger:  logger,

		backoffInitial: DefaultBackoffInitial,
		backoffMax:     DefaultBackoffMax,
	}
}

// Run opens the device, then the output, and copies chunks until a chunk
// equal to domain.Sentinel is read, ctx is cancelled, or an I/O error
// occurs. The output is closed before the device on every path.
func (c *Capturer) Run(ctx context.Context, cfg Config) (stats domain.CaptureStats, err error) {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = domain.DefaultChunkSize
	}

	start := time.Now()
	defer func() { stats.Elapsed = time.Since(start) }()

	port, err := c.openPort(ctx, cfg)
	if err != nil {
		return stats, fmt.Errorf("%w: %w", domain.ErrOpenDevice, err)
	}
	defer func() {
		if cerr := port.Close(); cerr != nil {
			c.logger.Warn("close serial device",
				ports.String("device", cfg.Device),
				ports.Err(cerr),
			)
		}
	}()

	sink, err := c.outputs.Create(cfg.Output)
	if err != nil {
		return stats, fmt.Errorf("%w: %s: %w", domain.ErrOpenOutput, cfg.Output, err)
	}
	defer func() {
		// Close is the flush point for the output, so its error matters.
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", domain.ErrWrite, cfg.Output, cerr)
		}
	}()

	c.logger.Info("capture started",
		ports.String("device", cfg.Device),
		ports.Int("baud", cfg.Baud),
		ports.String("output", cfg.Output),
		ports.Int("chunk_size", chunkSize),
		ports.Duration("read_timeout", cfg.ReadTimeout),
	)

	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		n, rerr := port.Read(buf)
		if n == 0 && (rerr == nil || errors.Is(rerr, io.EOF)) {
			stats.IdleReads++
			continue
		}
		if rerr != nil && n == 0 {
			return stats, fmt.Errorf("%w: %s: %w", domain.ErrRead, cfg.Device, rerr)
		}

		chunk := buf[:n]
		if domain.IsSentinel(chunk) {
			stats.SentinelSeen = true
			return stats, nil
		}

		if _, werr := sink.Write(chunk); werr != nil {
			return stats, fmt.Errorf("%w: %s: %w", domain.ErrWrite, cfg.Output, werr)
		}
		stats.Chunks++
		stats.Bytes += int64(n)

		if cfg.Trace {
			c.logger.Debug("chunk received",
				ports.Int("bytes", n),
				ports.String("data", strconv.Quote(string(chunk))),
			)
		}

		// Data that arrived alongside an error is kept; the error ends the run.
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return stats, fmt.Errorf("%w: %s: %w", domain.ErrRead, cfg.Device, rerr)
		}
	}
}

// openPort opens the device, retrying with backoff while cfg.OpenWait
// allows. The last open error is returned once the wait is used up.
func (c *Capturer) openPort(ctx context.Context, cfg Config) (ports.SerialPort, error) {
	port, err := c.ports.Open(cfg.Device, cfg.Baud, cfg.ReadTimeout)
	if err == nil || cfg.OpenWait <= 0 {
		return port, err
	}

	deadline := time.Now().Add(cfg.OpenWait)
	b := newBackoff(c.backoffInitial, c.backoffMax)
	for attempt := 2; ; attempt++ {
		if time.Now().Add(b.Current()).After(deadline) {
			return nil, err
		}
		c.logger.Info("waiting for device",
			ports.String("device", cfg.Device),
			ports.Duration("retry_in", b.Current()),
			ports.Err(err),
		)
		if werr := b.Wait(ctx); werr != nil {
			return nil, werr
		}

		port, err = c.ports.Open(cfg.Device, cfg.Baud, cfg.ReadTimeout)
		if err == nil {
			c.logger.Debug("device opened", ports.String("device", cfg.Device), ports.Int("attempt", attempt))
			return port, nil
		}
	}
}
