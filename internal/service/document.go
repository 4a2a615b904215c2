package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/telemetry"
)

// ObjectStore persists uploaded document content.
type ObjectStore interface {
	Upload(ctx context.Context, key string, contentType string, body io.Reader) error
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// ProjectRepositoryInterface defines the repository interface for project persistence
type ProjectRepositoryInterface interface {
	Create(ctx context.Context, p *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	List(ctx context.Context) ([]*domain.Project, error)
}

// UploadDocumentInput represents the input for registering a document
type UploadDocumentInput struct {
	ProjectID string
	Filename  string
	MimeType  string
	Content   io.Reader
}

// DocumentService handles the document lifecycle around the pipeline:
// register uploads as pending, and expose read paths for documents and their
// chunks.
type DocumentService struct {
	docRepo     DocumentRepositoryInterface
	chunkRepo   ChunkRepositoryInterface
	projectRepo ProjectRepositoryInterface
	store       ObjectStore
	uuidGen     UUIDGenerator
}

func NewDocumentService(
	docRepo DocumentRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	projectRepo ProjectRepositoryInterface,
	store ObjectStore,
) *DocumentService {
	return &DocumentService{
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		projectRepo: projectRepo,
		store:       store,
		uuidGen:     &DefaultUUIDGenerator{},
	}
}

// Upload stores the document content and registers the document as pending.
// The stored object is keyed by document id, so re-uploads of the same
// filename never collide. The pipeline picks the document up on its next tick.
func (s *DocumentService) Upload(ctx context.Context, input UploadDocumentInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Upload", telemetry.SpanAttributes{
		ProjectID: input.ProjectID,
		Operation: "upload",
	})
	defer span.End()

	if strings.TrimSpace(input.Filename) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}
	if strings.TrimSpace(input.MimeType) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "mime type is required")
	}
	if _, err := s.projectRepo.GetByID(ctx, input.ProjectID); err != nil {
		return nil, err
	}

	docID := s.uuidGen.NewString()
	filename := sanitizeFilename(input.Filename)
	storageKey := fmt.Sprintf("documents/%s/%s/%s", input.ProjectID, docID, filename)

	if err := s.store.Upload(ctx, storageKey, input.MimeType, input.Content); err != nil {
		return nil, fmt.Errorf("store document content: %w", err)
	}

	doc := domain.NewDocument(docID, input.ProjectID, filename, input.Filename, input.MimeType, storageKey, time.Now().UTC())
	if err := s.docRepo.Create(ctx, doc); err != nil {
		// Best effort: do not leave an orphaned object behind.
		_ = s.store.DeleteObject(ctx, storageKey)
		return nil, err
	}

	return doc, nil
}

// GetByID retrieves a document by ID
func (s *DocumentService) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return s.docRepo.GetByID(ctx, id)
}

// ListByProject retrieves all documents for a project
func (s *DocumentService) ListByProject(ctx context.Context, projectID string) ([]*domain.Document, error) {
	return s.docRepo.ListByProject(ctx, projectID)
}

// DownloadURL returns a presigned URL for a document's stored content.
func (s *DocumentService) DownloadURL(ctx context.Context, documentID string) (string, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return "", err
	}
	if doc.StorageKey == "" {
		return "", domain.NewDomainError(domain.ErrCodeInvalidOperation, "document has no stored content")
	}
	return s.store.GenerateDownloadURL(ctx, doc.StorageKey)
}

// ListChunks returns a document's chunks in position order.
func (s *DocumentService) ListChunks(ctx context.Context, documentID string) ([]*domain.DocumentChunk, error) {
	if _, err := s.docRepo.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.chunkRepo.ListByDocument(ctx, documentID)
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "document"
	}
	return name
}
