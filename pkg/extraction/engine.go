// Package extraction downloads tender attachments, unpacks nested ZIP
// containers and extracts text through a priority chain of engines. Leaf
// documents are uploaded to object storage and persisted with their
// extracted text; containers are never persisted.
package extraction

import (
	"context"
	"time"
)

// Result is one engine's verdict on one file.
type Result struct {
	Success   bool
	Text      string
	PageCount int
	Engine    string
	Duration  time.Duration
}

// Engine extracts text from one file on disk. Engines are tried in priority
// order until one returns non-empty text.
type Engine interface {
	Name() string
	// Supports reports whether the engine can handle the mime type.
	Supports(mimeType string) bool
	Extract(ctx context.Context, path string) (*Result, error)
}
