package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/service"
)

type RetrievalServiceInterface interface {
	Search(ctx context.Context, projectID, query string, limit int) ([]*service.ChunkSearchResult, error)
}

type SearchHandler struct {
	service RetrievalServiceInterface
}

func NewSearchHandler(service RetrievalServiceInterface) *SearchHandler {
	return &SearchHandler{service: service}
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type SearchResultResponse struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	Filename     string  `json:"filename"`
	Position     int     `json:"position"`
	SectionTitle string  `json:"section_title,omitempty"`
	Content      string  `json:"content"`
	Distance     float64 `json:"distance"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.service.Search(r.Context(), chi.URLParam(r, "id"), req.Query, req.Limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*SearchResultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, &SearchResultResponse{
			ChunkID:      res.Chunk.ID,
			DocumentID:   res.DocumentID,
			Filename:     res.Filename,
			Position:     res.Chunk.Position,
			SectionTitle: res.Chunk.SectionTitle,
			Content:      res.Chunk.Content,
			Distance:     res.Distance,
		})
	}
	api.Success(w, http.StatusOK, out)
}
