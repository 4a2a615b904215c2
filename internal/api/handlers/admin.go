package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
	"github.com/parleyhq/parley/internal/workerpool"
)

type ReprocessServiceInterface interface {
	Reprocess(ctx context.Context, input service.ReprocessInput) (*service.ReprocessResult, error)
}

type PipelineStatsProvider interface {
	Stats() workerpool.Stats
}

type DocumentCounter interface {
	CountByStatus(ctx context.Context, status domain.DocumentStatus) (int, error)
}

// AdminHandler exposes the operational surface: bulk reprocessing and
// pipeline occupancy.
type AdminHandler struct {
	reprocess ReprocessServiceInterface
	pool      PipelineStatsProvider
	docs      DocumentCounter
}

func NewAdminHandler(reprocess ReprocessServiceInterface, pool PipelineStatsProvider, docs DocumentCounter) *AdminHandler {
	return &AdminHandler{reprocess: reprocess, pool: pool, docs: docs}
}

type ReprocessRequest struct {
	ProjectID   string   `json:"project_id,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

type ReprocessResponse struct {
	DocumentsQueued int   `json:"documents_queued"`
	ChunksDeleted   int64 `json:"chunks_deleted"`
}

func (h *AdminHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	var req ReprocessRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.reprocess.Reprocess(r.Context(), service.ReprocessInput{
		ProjectID:   req.ProjectID,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ReprocessResponse{
		DocumentsQueued: result.DocumentsQueued,
		ChunksDeleted:   result.ChunksDeleted,
	})
}

type PipelineStatusResponse struct {
	Documents map[string]int `json:"documents"`
	Pool      PoolStats      `json:"pool"`
}

type PoolStats struct {
	Total int `json:"total"`
	Busy  int `json:"busy"`
	Idle  int `json:"idle"`
}

func (h *AdminHandler) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int, 4)
	for _, status := range []domain.DocumentStatus{
		domain.DocumentStatusPending,
		domain.DocumentStatusProcessing,
		domain.DocumentStatusCompleted,
		domain.DocumentStatusFailed,
	} {
		count, err := h.docs.CountByStatus(r.Context(), status)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		counts[string(status)] = count
	}

	stats := h.pool.Stats()
	api.Success(w, http.StatusOK, PipelineStatusResponse{
		Documents: counts,
		Pool:      PoolStats{Total: stats.Total, Busy: stats.Busy, Idle: stats.Idle},
	})
}
