package service

import (
	"context"
	"errors"
	"log"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/telemetry"
)

// ReprocessInput selects the documents to re-queue. Empty ProjectID and
// DocumentIDs means every document in a terminal state.
type ReprocessInput struct {
	ProjectID   string
	DocumentIDs []string
}

// ReprocessResult reports what a reprocessing request touched.
type ReprocessResult struct {
	DocumentsQueued int
	ChunksDeleted   int64
}

// ReprocessService re-queues completed or failed documents for a fresh
// processing run. Per document, chunk deletion and the transition back to
// pending commit in one transaction, so the pipeline can never observe a
// pending document that still carries stale chunks.
type ReprocessService struct {
	docRepo  DocumentRepositoryInterface
	txRunner TxRunner
}

func NewReprocessService(docRepo DocumentRepositoryInterface, txRunner TxRunner) *ReprocessService {
	return &ReprocessService{docRepo: docRepo, txRunner: txRunner}
}

// Reprocess resets eligible documents to pending and deletes their chunks.
// Only terminal documents (completed or failed) are eligible; documents that
// race into another state between listing and the guarded transition are
// skipped, which makes a repeated request idempotent.
func (s *ReprocessService) Reprocess(ctx context.Context, input ReprocessInput) (*ReprocessResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReprocessService.Reprocess", telemetry.SpanAttributes{
		ProjectID: input.ProjectID,
		Operation: "reprocess",
	})
	defer span.End()

	docs, err := s.docRepo.ListReprocessable(ctx, input.ProjectID, input.DocumentIDs)
	if err != nil {
		return nil, err
	}

	result := &ReprocessResult{}
	for _, doc := range docs {
		var deleted int64
		err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			var txErr error
			deleted, txErr = repos.Chunks().DeleteByDocument(ctx, doc.ID)
			if txErr != nil {
				return txErr
			}
			return repos.Documents().UpdateStatus(ctx, doc.ID, doc.Status, domain.DocumentStatusPending, "")
		})
		if errors.Is(err, domain.ErrIllegalTransition) {
			// Another writer moved the document first; nothing to redo.
			log.Printf("reprocess: document %s skipped, status changed concurrently", doc.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		result.DocumentsQueued++
		result.ChunksDeleted += deleted
	}

	return result, nil
}
