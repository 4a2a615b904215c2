package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/telemetry"
)

// ChunkSearchResult is one vector-search hit.
type ChunkSearchResult struct {
	Chunk      domain.DocumentChunk
	DocumentID string
	Filename   string
	Distance   float64
}

// SearchChunkRepository defines the repository interface for chunk retrieval
type SearchChunkRepository interface {
	SearchByEmbedding(ctx context.Context, projectID string, embedding []float32, limit int) ([]*ChunkSearchResult, error)
}

// RetrievalService answers semantic queries over a project's completed
// documents by embedding the query and running a cosine-distance search.
type RetrievalService struct {
	client    EmbeddingClient
	chunkRepo SearchChunkRepository
}

func NewRetrievalService(client EmbeddingClient, chunkRepo SearchChunkRepository) *RetrievalService {
	return &RetrievalService{client: client, chunkRepo: chunkRepo}
}

func (s *RetrievalService) Search(ctx context.Context, projectID, query string, limit int) ([]*ChunkSearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Search", telemetry.SpanAttributes{
		ProjectID: projectID,
		Operation: "search",
	})
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query is required")
	}

	embedding, err := s.client.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.chunkRepo.SearchByEmbedding(ctx, projectID, embedding, limit)
}
