package domain

import "time"

// DocumentChunk represents a contiguous extracted span of a document's text.
// Chunks are immutable: a reprocessing run replaces the whole set, it never
// patches individual rows.
type DocumentChunk struct {
	ID           string
	DocumentID   string
	Position     int
	SectionTitle string
	StartOffset  int
	EndOffset    int
	Content      string
	Embedding    []float32
	CreatedAt    time.Time
}
