package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/telemetry"
)

// SynthesisRepositoryInterface defines the repository interface for synthesis persistence
type SynthesisRepositoryInterface interface {
	InsertNextVersion(ctx context.Context, s *domain.AudienceSynthesis) error
	GetCurrent(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error)
	GetByVersion(ctx context.Context, projectID string, version int64) (*domain.AudienceSynthesis, error)
	ListVersions(ctx context.Context, projectID string) ([]*SynthesisVersionInfo, error)
}

// SynthesisVersionInfo is the metadata row for version listings.
type SynthesisVersionInfo struct {
	ID                string
	Version           int64
	ConversationCount int
	CreatedAt         string
}

// SynthesisConversationRepository reads the conversations a synthesis
// aggregates over.
type SynthesisConversationRepository interface {
	ListByProjectSince(ctx context.Context, projectID string, since time.Time) ([]*domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)
}

// SynthesisDocumentRepository provides the document inventory the analyzer
// grounds its suggestions on.
type SynthesisDocumentRepository interface {
	ListByProject(ctx context.Context, projectID string) ([]*domain.Document, error)
}

// ConversationTranscript pairs a conversation with its ordered messages.
type ConversationTranscript struct {
	Conversation *domain.Conversation
	Messages     []*domain.Message
}

// ConversationAnalyzer turns a batch of transcripts into synthesis content.
type ConversationAnalyzer interface {
	AnalyzeConversations(ctx context.Context, projectID string, transcripts []ConversationTranscript, documents []*domain.Document) (*domain.ConversationAnalysis, error)
}

// SynthesisThresholds gates synthesis generation on available signal.
type SynthesisThresholds struct {
	MinConversations int
	MinMessages      int
}

func DefaultSynthesisThresholds() SynthesisThresholds {
	return SynthesisThresholds{MinConversations: 3, MinMessages: 5}
}

// SynthesisService is the versioning engine for audience syntheses. Versions
// are append-only and strictly increasing per project; generation is
// single-flight per project, so concurrent triggers share one run and one
// committed version.
type SynthesisService struct {
	synthRepo  SynthesisRepositoryInterface
	convRepo   SynthesisConversationRepository
	docRepo    SynthesisDocumentRepository
	analyzer   ConversationAnalyzer
	thresholds SynthesisThresholds
	uuidGen    UUIDGenerator
	group      singleflight.Group
}

func NewSynthesisService(
	synthRepo SynthesisRepositoryInterface,
	convRepo SynthesisConversationRepository,
	docRepo SynthesisDocumentRepository,
	analyzer ConversationAnalyzer,
	thresholds SynthesisThresholds,
) *SynthesisService {
	if thresholds.MinConversations <= 0 && thresholds.MinMessages <= 0 {
		thresholds = DefaultSynthesisThresholds()
	}
	return &SynthesisService{
		synthRepo:  synthRepo,
		convRepo:   convRepo,
		docRepo:    docRepo,
		analyzer:   analyzer,
		thresholds: thresholds,
		uuidGen:    &DefaultUUIDGenerator{},
	}
}

// Generate produces the next synthesis version for a project. Triggers that
// arrive while a run for the same project is in flight wait for and share its
// result instead of starting a second run. A failed run commits nothing; the
// next explicit trigger starts fresh.
func (s *SynthesisService) Generate(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error) {
	value, err, _ := s.group.Do(projectID, func() (any, error) {
		return s.generate(ctx, projectID)
	})
	if err != nil {
		return nil, err
	}
	return value.(*domain.AudienceSynthesis), nil
}

func (s *SynthesisService) generate(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error) {
	ctx, span := telemetry.StartSpan(ctx, "SynthesisService.Generate", telemetry.SpanAttributes{
		ProjectID: projectID,
		Operation: "generate",
	})
	defer span.End()

	var since time.Time
	last, err := s.synthRepo.GetCurrent(ctx, projectID)
	if err != nil && !errors.Is(err, domain.ErrSynthesisNotFound) {
		return nil, err
	}
	if last != nil {
		since = last.CoveredTo
	}

	convs, err := s.convRepo.ListByProjectSince(ctx, projectID, since)
	if err != nil {
		return nil, err
	}

	transcripts := make([]ConversationTranscript, 0, len(convs))
	totalMessages := 0
	coveredTo := since
	for _, conv := range convs {
		msgs, err := s.convRepo.ListMessages(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		totalMessages += len(msgs)
		if conv.StartedAt.After(coveredTo) {
			coveredTo = conv.StartedAt
		}
		for _, m := range msgs {
			if m.CreatedAt.After(coveredTo) {
				coveredTo = m.CreatedAt
			}
		}
		transcripts = append(transcripts, ConversationTranscript{Conversation: conv, Messages: msgs})
	}

	if len(convs) < s.thresholds.MinConversations || totalMessages < s.thresholds.MinMessages {
		return nil, fmt.Errorf("%w: %d conversations with %d messages since %s (need %d conversations and %d messages)",
			domain.ErrInsufficientData, len(convs), totalMessages, since.Format(time.RFC3339),
			s.thresholds.MinConversations, s.thresholds.MinMessages)
	}

	docs, err := s.docRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	analysis, err := s.analyzer.AnalyzeConversations(ctx, projectID, transcripts, docs)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("analyze conversations: %w", err)
	}

	coveredFrom := since
	if coveredFrom.IsZero() {
		coveredFrom = convs[0].StartedAt
	}

	synthesis := &domain.AudienceSynthesis{
		ID:                s.uuidGen.NewString(),
		ProjectID:         projectID,
		Overview:          analysis.Overview,
		CommonQuestions:   analysis.CommonQuestions,
		KnowledgeGaps:     analysis.KnowledgeGaps,
		DocSuggestions:    analysis.DocSuggestions,
		Sentiment:         analysis.Sentiment,
		Insights:          analysis.Insights,
		ConversationCount: len(convs),
		TotalMessages:     totalMessages,
		CoveredFrom:       coveredFrom,
		CoveredTo:         coveredTo,
		CreatedAt:         time.Now().UTC(),
	}

	// Version assignment happens inside the insert; the uniqueness constraint
	// turns a cross-process race into ErrSynthesisConflict with nothing written.
	if err := s.synthRepo.InsertNextVersion(ctx, synthesis); err != nil {
		return nil, err
	}

	return synthesis, nil
}

// GetCurrent returns the highest-version synthesis for a project.
func (s *SynthesisService) GetCurrent(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error) {
	return s.synthRepo.GetCurrent(ctx, projectID)
}

// GetVersion returns one historical synthesis version.
func (s *SynthesisService) GetVersion(ctx context.Context, projectID string, version int64) (*domain.AudienceSynthesis, error) {
	return s.synthRepo.GetByVersion(ctx, projectID, version)
}

// ListVersions returns version metadata for a project, oldest first.
func (s *SynthesisService) ListVersions(ctx context.Context, projectID string) ([]*SynthesisVersionInfo, error) {
	return s.synthRepo.ListVersions(ctx, projectID)
}
