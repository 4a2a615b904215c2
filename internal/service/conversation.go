package service

import (
	"context"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/domain"
)

// ConversationRepositoryInterface defines the repository interface for conversation persistence
type ConversationRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, m *domain.Message) error
	ListByProjectSince(ctx context.Context, projectID string, since time.Time) ([]*domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)
}

// ConversationService handles recording of audience conversations, the raw
// material the synthesis engine aggregates over.
type ConversationService struct {
	convRepo    ConversationRepositoryInterface
	projectRepo ProjectRepositoryInterface
	uuidGen     UUIDGenerator
}

func NewConversationService(convRepo ConversationRepositoryInterface, projectRepo ProjectRepositoryInterface) *ConversationService {
	return &ConversationService{
		convRepo:    convRepo,
		projectRepo: projectRepo,
		uuidGen:     &DefaultUUIDGenerator{},
	}
}

// StartConversationInput represents the input for starting a conversation
type StartConversationInput struct {
	ProjectID string
	Title     string
}

// Start creates a new conversation in a project.
func (s *ConversationService) Start(ctx context.Context, input StartConversationInput) (*domain.Conversation, error) {
	if _, err := s.projectRepo.GetByID(ctx, input.ProjectID); err != nil {
		return nil, err
	}

	conv := &domain.Conversation{
		ID:        s.uuidGen.NewString(),
		ProjectID: input.ProjectID,
		Title:     strings.TrimSpace(input.Title),
		StartedAt: time.Now().UTC(),
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendMessageInput represents the input for appending a message
type AppendMessageInput struct {
	ConversationID string
	Role           domain.MessageRole
	Content        string
}

// AppendMessage appends one message to an existing conversation.
func (s *ConversationService) AppendMessage(ctx context.Context, input AppendMessageInput) (*domain.Message, error) {
	if _, err := s.convRepo.GetByID(ctx, input.ConversationID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:             s.uuidGen.NewString(),
		ConversationID: input.ConversationID,
		Role:           input.Role,
		Content:        input.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.convRepo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetByID retrieves a conversation by ID
func (s *ConversationService) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	return s.convRepo.GetByID(ctx, id)
}

// ListByProject retrieves all conversations for a project
func (s *ConversationService) ListByProject(ctx context.Context, projectID string) ([]*domain.Conversation, error) {
	return s.convRepo.ListByProjectSince(ctx, projectID, time.Time{})
}

// ListMessages retrieves a conversation's messages in order.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	if _, err := s.convRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.convRepo.ListMessages(ctx, conversationID)
}
