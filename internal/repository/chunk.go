package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

// ChunkRepository handles persistence of extracted document chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx dbtx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones.
// Chunks are wholesale-replaced, never patched; old chunk ids do not survive.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		var embedding any
		if c.Embedding != nil {
			embedding = pgvector.NewVector(c.Embedding)
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks
				(id, document_id, position, section_title, start_offset, end_offset, content, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID,
			documentID,
			c.Position,
			nullableString(c.SectionTitle),
			c.StartOffset,
			c.EndOffset,
			c.Content,
			embedding,
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.DocumentChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, position, section_title, start_offset, end_offset, content, created_at
		 FROM document_chunks
		 WHERE document_id = $1
		 ORDER BY position ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.DocumentChunk
	for rows.Next() {
		var c domain.DocumentChunk
		var sectionTitle *string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &sectionTitle,
			&c.StartOffset, &c.EndOffset, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		if sectionTitle != nil {
			c.SectionTitle = *sectionTitle
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// ListUnembedded returns chunks of completed documents that do not yet carry
// an embedding, oldest first. Used by the embedding backfill job.
func (r *ChunkRepository) ListUnembedded(ctx context.Context, limit int) ([]*domain.DocumentChunk, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, c.position, c.section_title, c.start_offset, c.end_offset, c.content, c.created_at
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.embedding IS NULL AND d.status = $1
		 ORDER BY c.created_at ASC
		 LIMIT $2`,
		domain.DocumentStatusCompleted, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.DocumentChunk
	for rows.Next() {
		var c domain.DocumentChunk
		var sectionTitle *string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &sectionTitle,
			&c.StartOffset, &c.EndOffset, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		if sectionTitle != nil {
			c.SectionTitle = *sectionTitle
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE document_chunks SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), chunkID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrCodeNotFound, "chunk not found")
	}
	return nil
}

// SearchByEmbedding runs a cosine-distance search over a project's chunks,
// restricted to completed documents.
func (r *ChunkRepository) SearchByEmbedding(ctx context.Context, projectID string, embedding []float32, limit int) ([]*service.ChunkSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, c.position, c.section_title, c.content, d.filename,
		        c.embedding <=> $1 AS distance
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.project_id = $2 AND d.status = $3 AND c.embedding IS NOT NULL
		 ORDER BY distance ASC
		 LIMIT $4`,
		pgvector.NewVector(embedding), projectID, domain.DocumentStatusCompleted, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*service.ChunkSearchResult
	for rows.Next() {
		var res service.ChunkSearchResult
		var sectionTitle *string
		if err := rows.Scan(&res.Chunk.ID, &res.Chunk.DocumentID, &res.Chunk.Position, &sectionTitle,
			&res.Chunk.Content, &res.Filename, &res.Distance); err != nil {
			return nil, err
		}
		if sectionTitle != nil {
			res.Chunk.SectionTitle = *sectionTitle
		}
		res.DocumentID = res.Chunk.DocumentID
		results = append(results, &res)
	}
	return results, rows.Err()
}
