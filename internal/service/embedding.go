package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/parleyhq/parley/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingChunkRepository defines the repository interface for the embedding backfill
type EmbeddingChunkRepository interface {
	ListUnembedded(ctx context.Context, limit int) ([]*domain.DocumentChunk, error)
	UpdateEmbedding(ctx context.Context, chunkID string, embedding []float32) error
}

// EmbeddingService backfills embeddings for chunks of completed documents.
// Embedding is decoupled from the processing pipeline: a document completes
// with NULL chunk embeddings and this service fills them in batches.
// Embedding failures never touch document status.
type EmbeddingService struct {
	client    EmbeddingClient
	chunkRepo EmbeddingChunkRepository
	batchSize int
}

func NewEmbeddingService(client EmbeddingClient, chunkRepo EmbeddingChunkRepository) *EmbeddingService {
	return &EmbeddingService{
		client:    client,
		chunkRepo: chunkRepo,
		batchSize: 50,
	}
}

// ProcessJobs implements the jobs.JobProcessor interface. Per-chunk failures
// are logged and skipped so one bad chunk cannot stall the batch; the chunk
// stays un-embedded and is picked up again on a later tick.
func (s *EmbeddingService) ProcessJobs(ctx context.Context) error {
	chunks, err := s.chunkRepo.ListUnembedded(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("list unembedded chunks: %w", err)
	}

	if len(chunks) == 0 {
		return nil
	}

	log.Printf("embedding backfill: processing %d chunks", len(chunks))

	for _, chunk := range chunks {
		embedding, err := s.client.GenerateEmbedding(ctx, buildChunkEmbeddingText(chunk))
		if err != nil {
			log.Printf("embedding backfill: chunk %s failed: %v", chunk.ID, err)
			continue
		}
		if err := s.chunkRepo.UpdateEmbedding(ctx, chunk.ID, embedding); err != nil {
			log.Printf("embedding backfill: chunk %s update failed: %v", chunk.ID, err)
		}
	}

	return nil
}

func buildChunkEmbeddingText(c *domain.DocumentChunk) string {
	var parts []string
	if c.SectionTitle != "" {
		parts = append(parts, c.SectionTitle)
	}
	parts = append(parts, c.Content)
	return strings.Join(parts, "\n\n")
}
