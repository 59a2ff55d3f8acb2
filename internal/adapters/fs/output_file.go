package fs

import (
	"os"
	"path/filepath"

	"github.com/opensesame/sesametools/internal/ports"
)

// OutputFileOpener implements ports.SinkOpener on the local file system.
type OutputFileOpener struct {
	// MkdirParents creates missing parent directories before opening.
	MkdirParents bool
}

// NewOutputFileOpener creates an OutputFileOpener.
func NewOutputFileOpener() *OutputFileOpener {
	return &OutputFileOpener{}
}

// Create opens path for binary writing, truncating existing content.
func (o *OutputFileOpener) Create(path string) (ports.Sink, error) {
	if o.MkdirParents {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}
