package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

type DocumentServiceInterface interface {
	Upload(ctx context.Context, input service.UploadDocumentInput) (*domain.Document, error)
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.Document, error)
	ListChunks(ctx context.Context, documentID string) ([]*domain.DocumentChunk, error)
	DownloadURL(ctx context.Context, documentID string) (string, error)
}

type DocumentHandler struct {
	service DocumentServiceInterface
}

func NewDocumentHandler(service DocumentServiceInterface) *DocumentHandler {
	return &DocumentHandler{service: service}
}

type DocumentResponse struct {
	ID               string `json:"id"`
	ProjectID        string `json:"project_id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename,omitempty"`
	MimeType         string `json:"mime_type"`
	Status           string `json:"status"`
	ProcessingError  string `json:"processing_error,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:               d.ID,
		ProjectID:        d.ProjectID,
		Filename:         d.Filename,
		OriginalFilename: d.OriginalFilename,
		MimeType:         d.MimeType,
		Status:           string(d.Status),
		ProcessingError:  d.ProcessingError,
		CreatedAt:        d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Upload accepts a multipart form with a "file" field, stores the content,
// and registers the document as pending.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}

	doc, err := h.service.Upload(r.Context(), service.UploadDocumentInput{
		ProjectID: chi.URLParam(r, "id"),
		Filename:  header.Filename,
		MimeType:  mimeType,
		Content:   file,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListByProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentToResponse(d))
	}
	api.Success(w, http.StatusOK, out)
}

type ChunkResponse struct {
	ID           string `json:"id"`
	Position     int    `json:"position"`
	SectionTitle string `json:"section_title,omitempty"`
	StartOffset  int    `json:"start_offset"`
	EndOffset    int    `json:"end_offset"`
	Content      string `json:"content"`
}

func (h *DocumentHandler) ListChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.service.ListChunks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*ChunkResponse, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, &ChunkResponse{
			ID:           c.ID,
			Position:     c.Position,
			SectionTitle: c.SectionTitle,
			StartOffset:  c.StartOffset,
			EndOffset:    c.EndOffset,
			Content:      c.Content,
		})
	}
	api.Success(w, http.StatusOK, out)
}

func (h *DocumentHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.DownloadURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"download_url": url})
}
