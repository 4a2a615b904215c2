package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents a document's position in the processing pipeline.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document represents an uploaded file undergoing text extraction and chunking.
type Document struct {
	ID               string
	ProjectID        string
	Filename         string
	OriginalFilename string
	MimeType         string
	StorageKey       string
	Status           DocumentStatus
	ProcessingError  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewDocument creates a new Document in the pending state.
func NewDocument(id, projectID, filename, originalFilename, mimeType, storageKey string, createdAt time.Time) *Document {
	return &Document{
		ID:               id,
		ProjectID:        projectID,
		Filename:         filename,
		OriginalFilename: originalFilename,
		MimeType:         mimeType,
		StorageKey:       storageKey,
		Status:           DocumentStatusPending,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

// CanTransition reports whether moving from one status to another is a legal
// pipeline edge. Reprocessing (completed/failed back to pending) is legal only
// through the explicit reprocess operation, but the edge itself is listed here
// so persistence can enforce it uniformly.
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case DocumentStatusPending:
		return to == DocumentStatusProcessing
	case DocumentStatusProcessing:
		return to == DocumentStatusCompleted || to == DocumentStatusFailed
	case DocumentStatusCompleted, DocumentStatusFailed:
		return to == DocumentStatusPending
	}
	return false
}

// ValidateDocument validates a Document instance.
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if d.ProjectID == "" {
		return fmt.Errorf("document ProjectID is required")
	}
	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}
	if d.MimeType == "" {
		return fmt.Errorf("document MimeType is required")
	}
	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}
	if d.ProcessingError != "" && d.Status != DocumentStatusFailed {
		return fmt.Errorf("document ProcessingError is only valid on failed documents")
	}
	return nil
}

// isValidDocumentStatus checks if a DocumentStatus is valid.
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}
