package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

type SynthesisServiceInterface interface {
	Generate(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error)
	GetCurrent(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error)
	GetVersion(ctx context.Context, projectID string, version int64) (*domain.AudienceSynthesis, error)
	ListVersions(ctx context.Context, projectID string) ([]*service.SynthesisVersionInfo, error)
}

type SynthesisHandler struct {
	service SynthesisServiceInterface
}

func NewSynthesisHandler(service SynthesisServiceInterface) *SynthesisHandler {
	return &SynthesisHandler{service: service}
}

type SynthesisResponse struct {
	ID                string                      `json:"id"`
	ProjectID         string                      `json:"project_id"`
	Version           int64                       `json:"version"`
	Overview          string                      `json:"overview"`
	CommonQuestions   []domain.QuestionPattern    `json:"common_questions"`
	KnowledgeGaps     []domain.KnowledgeGap       `json:"knowledge_gaps"`
	DocSuggestions    []domain.DocumentSuggestion `json:"doc_suggestions"`
	Sentiment         string                      `json:"sentiment"`
	Insights          []string                    `json:"insights"`
	ConversationCount int                         `json:"conversation_count"`
	TotalMessages     int                         `json:"total_messages"`
	CoveredFrom       string                      `json:"covered_from"`
	CoveredTo         string                      `json:"covered_to"`
	CreatedAt         string                      `json:"created_at"`
}

func synthesisToResponse(s *domain.AudienceSynthesis) *SynthesisResponse {
	return &SynthesisResponse{
		ID:                s.ID,
		ProjectID:         s.ProjectID,
		Version:           s.Version,
		Overview:          s.Overview,
		CommonQuestions:   s.CommonQuestions,
		KnowledgeGaps:     s.KnowledgeGaps,
		DocSuggestions:    s.DocSuggestions,
		Sentiment:         string(s.Sentiment),
		Insights:          s.Insights,
		ConversationCount: s.ConversationCount,
		TotalMessages:     s.TotalMessages,
		CoveredFrom:       s.CoveredFrom.UTC().Format(time.RFC3339),
		CoveredTo:         s.CoveredTo.UTC().Format(time.RFC3339),
		CreatedAt:         s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *SynthesisHandler) Generate(w http.ResponseWriter, r *http.Request) {
	synthesis, err := h.service.Generate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, synthesisToResponse(synthesis))
}

func (h *SynthesisHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	synthesis, err := h.service.GetCurrent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, synthesisToResponse(synthesis))
}

func (h *SynthesisHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
	if err != nil || version <= 0 {
		api.Error(w, http.StatusBadRequest, "invalid version")
		return
	}

	synthesis, err := h.service.GetVersion(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, synthesisToResponse(synthesis))
}

type SynthesisVersionResponse struct {
	ID                string `json:"id"`
	Version           int64  `json:"version"`
	ConversationCount int    `json:"conversation_count"`
	CreatedAt         string `json:"created_at"`
}

func (h *SynthesisHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	infos, err := h.service.ListVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*SynthesisVersionResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, &SynthesisVersionResponse{
			ID:                info.ID,
			Version:           info.Version,
			ConversationCount: info.ConversationCount,
			CreatedAt:         info.CreatedAt,
		})
	}
	api.Success(w, http.StatusOK, out)
}
