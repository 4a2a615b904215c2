package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

type ConversationServiceInterface interface {
	Start(ctx context.Context, input service.StartConversationInput) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, input service.AppendMessageInput) (*domain.Message, error)
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)
}

type ConversationHandler struct {
	service ConversationServiceInterface
}

func NewConversationHandler(service ConversationServiceInterface) *ConversationHandler {
	return &ConversationHandler{service: service}
}

type StartConversationRequest struct {
	Title string `json:"title"`
}

type ConversationResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title,omitempty"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

func conversationToResponse(c *domain.Conversation) *ConversationResponse {
	resp := &ConversationResponse{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		Title:     c.Title,
		StartedAt: c.StartedAt.UTC().Format(time.RFC3339),
	}
	if !c.EndedAt.IsZero() {
		resp.EndedAt = c.EndedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.service.Start(r.Context(), service.StartConversationInput{
		ProjectID: chi.URLParam(r, "id"),
		Title:     req.Title,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, conversationToResponse(conv))
}

func (h *ConversationHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	convs, err := h.service.ListByProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*ConversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationToResponse(c))
	}
	api.Success(w, http.StatusOK, out)
}

type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

func messageToResponse(m *domain.Message) *MessageResponse {
	return &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *ConversationHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	var req AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.service.AppendMessage(r.Context(), service.AppendMessageInput{
		ConversationID: chi.URLParam(r, "id"),
		Role:           domain.MessageRole(req.Role),
		Content:        req.Content,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, messageToResponse(msg))
}

func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.service.ListMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToResponse(m))
	}
	api.Success(w, http.StatusOK, out)
}
