package ports

// Sink receives captured chunks in arrival order.
type Sink interface {
	Write(p []byte) (n int, err error)

	// Close flushes and releases the sink. It is called exactly once.
	Close() error
}

// SinkOpener creates sinks for output paths.
type SinkOpener interface {
	// Create opens path for writing, truncating any existing content.
	Create(path string) (Sink, error)
}
