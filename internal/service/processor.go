package service

import (
	"context"

	"github.com/google/uuid"
)

// OutlineEntry is one heading in a document's structural outline. Offset is
// the rune offset of the heading within the normalized full text.
type OutlineEntry struct {
	Title  string `json:"title"`
	Level  int    `json:"level"`
	Offset int    `json:"offset"`
}

// ChunkSpan is one extracted chunk before persistence. Offsets are rune
// offsets into the normalized full text, so spans stay valid regardless of
// the document's byte encoding.
type ChunkSpan struct {
	Position     int
	SectionTitle string
	StartOffset  int
	EndOffset    int
	Content      string
}

// ProcessedDocument is the result of one processing run. An empty Outline is
// a legal degraded result: outline extraction may fail or find nothing while
// text extraction and chunking still succeed.
type ProcessedDocument struct {
	FullText string
	Outline  []OutlineEntry
	Chunks   []ChunkSpan
}

// DocumentProcessor extracts text, outline, and chunks from a stored
// document. Implementations must be safe for concurrent use: the worker pool
// runs Process on multiple documents at once.
type DocumentProcessor interface {
	Process(ctx context.Context, filePath string, mimeType string) (*ProcessedDocument, error)
	Supports(mimeType string) bool
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
