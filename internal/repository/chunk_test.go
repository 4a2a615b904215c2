//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/testutil"
)

func setupCompletedDocument(ctx context.Context, t *testing.T, pool *pgxpool.Pool, projectID string) *domain.Document {
	t.Helper()
	docRepo := NewDocumentRepository(pool)
	doc := newTestDocument(projectID, time.Now().UTC())
	require.NoError(t, docRepo.Create(ctx, doc))
	require.NoError(t, docRepo.UpdateStatus(ctx, doc.ID, domain.DocumentStatusPending, domain.DocumentStatusProcessing, ""))
	require.NoError(t, docRepo.UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessing, domain.DocumentStatusCompleted, ""))
	return doc
}

func newTestChunks(documentID string, n int) []domain.DocumentChunk {
	now := time.Now().UTC().Truncate(time.Microsecond)
	chunks := make([]domain.DocumentChunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, domain.DocumentChunk{
			ID:           uuid.NewString(),
			DocumentID:   documentID,
			Position:     i,
			SectionTitle: "Section",
			StartOffset:  i * 100,
			EndOffset:    i*100 + 90,
			Content:      "chunk content",
			CreatedAt:    now,
		})
	}
	return chunks
}

func testEmbedding(seed float32) []float32 {
	emb := make([]float32, 1536)
	emb[0] = seed
	emb[1] = 1 - seed
	return emb
}

func TestChunkRepository_ReplaceChunks(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	project := setupProject(ctx, t, pool)
	doc := setupCompletedDocument(ctx, t, pool, project.ID)
	chunkRepo := NewChunkRepository(pool)

	first := newTestChunks(doc.ID, 3)
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, doc.ID, first))

	listed, err := chunkRepo.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, c := range listed {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, "Section", c.SectionTitle)
	}

	// A second replace wipes the old rows; old chunk ids do not survive.
	second := newTestChunks(doc.ID, 2)
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, doc.ID, second))

	listed, err = chunkRepo.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	oldIDs := map[string]bool{}
	for _, c := range first {
		oldIDs[c.ID] = true
	}
	for _, c := range listed {
		assert.False(t, oldIDs[c.ID], "old chunk id %s survived replacement", c.ID)
	}
}

func TestChunkRepository_DeleteByDocument(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	project := setupProject(ctx, t, pool)
	doc := setupCompletedDocument(ctx, t, pool, project.ID)
	chunkRepo := NewChunkRepository(pool)

	require.NoError(t, chunkRepo.ReplaceChunks(ctx, doc.ID, newTestChunks(doc.ID, 4)))

	deleted, err := chunkRepo.DeleteByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	deleted, err = chunkRepo.DeleteByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestChunkRepository_EmbeddingBackfill(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	project := setupProject(ctx, t, pool)
	chunkRepo := NewChunkRepository(pool)
	docRepo := NewDocumentRepository(pool)

	completedDoc := setupCompletedDocument(ctx, t, pool, project.ID)
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, completedDoc.ID, newTestChunks(completedDoc.ID, 2)))

	// Chunks of a non-completed document are not backfill candidates.
	processingDoc := newTestDocument(project.ID, time.Now().UTC())
	require.NoError(t, docRepo.Create(ctx, processingDoc))
	require.NoError(t, docRepo.UpdateStatus(ctx, processingDoc.ID, domain.DocumentStatusPending, domain.DocumentStatusProcessing, ""))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, processingDoc.ID, newTestChunks(processingDoc.ID, 1)))

	unembedded, err := chunkRepo.ListUnembedded(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unembedded, 2)
	for _, c := range unembedded {
		assert.Equal(t, completedDoc.ID, c.DocumentID)
	}

	require.NoError(t, chunkRepo.UpdateEmbedding(ctx, unembedded[0].ID, testEmbedding(0.5)))

	unembedded, err = chunkRepo.ListUnembedded(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unembedded, 1)
}

func TestChunkRepository_UpdateEmbedding_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	chunkRepo := NewChunkRepository(pool)

	err := chunkRepo.UpdateEmbedding(ctx, uuid.NewString(), testEmbedding(0.1))
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeNotFound, domainErr.Code)
}

func TestChunkRepository_SearchByEmbedding(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	project := setupProject(ctx, t, pool)
	chunkRepo := NewChunkRepository(pool)

	doc := setupCompletedDocument(ctx, t, pool, project.ID)
	chunks := newTestChunks(doc.ID, 3)
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, doc.ID, chunks))

	// Embed each chunk at a different point; chunk 0 sits closest to the query.
	require.NoError(t, chunkRepo.UpdateEmbedding(ctx, chunks[0].ID, testEmbedding(0.9)))
	require.NoError(t, chunkRepo.UpdateEmbedding(ctx, chunks[1].ID, testEmbedding(0.5)))
	// chunks[2] stays unembedded and must never match.

	results, err := chunkRepo.SearchByEmbedding(ctx, project.ID, testEmbedding(0.9), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, chunks[0].ID, results[0].Chunk.ID)
	assert.Equal(t, doc.ID, results[0].DocumentID)
	assert.Equal(t, "guide.md", results[0].Filename)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)

	t.Run("respects the limit", func(t *testing.T) {
		results, err := chunkRepo.SearchByEmbedding(ctx, project.ID, testEmbedding(0.9), 1)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("scoped to the project", func(t *testing.T) {
		other := setupProject(ctx, t, pool)
		results, err := chunkRepo.SearchByEmbedding(ctx, other.ID, testEmbedding(0.9), 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}
