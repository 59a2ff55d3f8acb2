package domain

import (
	"bytes"
	"time"
)

// DefaultChunkSize is the number of bytes requested per serial read.
const DefaultChunkSize = 128

// Sentinel is the chunk that ends a capture. It only matches when a single
// read returns exactly these bytes; a read that contains it alongside other
// data is ordinary payload.
var Sentinel = []byte("EOF")

// IsSentinel reports whether chunk is exactly the sentinel marker.
func IsSentinel(chunk []byte) bool {
	return bytes.Equal(chunk, Sentinel)
}

// CaptureStats summarizes a finished capture run.
type CaptureStats struct {
	// Chunks is the number of chunks written to the output.
	Chunks int

	// Bytes is the total number of bytes written to the output.
	Bytes int64

	// IdleReads counts reads that returned no data before the read timeout.
	IdleReads int

	// SentinelSeen is true when the run ended on the sentinel marker.
	SentinelSeen bool

	// Elapsed is the wall time between opening the device and stopping.
	Elapsed time.Duration
}
