package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/telemetry"
	"github.com/parleyhq/parley/internal/workerpool"
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.Document, error)
	ClaimNextPending(ctx context.Context) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.DocumentStatus, errMsg string) error
	ListReprocessable(ctx context.Context, projectID string, ids []string) ([]*domain.Document, error)
	CountByStatus(ctx context.Context, status domain.DocumentStatus) (int, error)
}

// ChunkRepositoryInterface defines the repository interface for chunk persistence
type ChunkRepositoryInterface interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error
	ListByDocument(ctx context.Context, documentID string) ([]*domain.DocumentChunk, error)
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
}

// ObjectFetcher downloads a stored object to a local file for processing.
// The returned cleanup removes the file.
type ObjectFetcher interface {
	FetchToFile(ctx context.Context, key string) (string, func(), error)
}

// TaskExecutor runs tasks on an isolated worker pool with a per-task deadline.
type TaskExecutor interface {
	Execute(ctx context.Context, task workerpool.Task, timeout time.Duration) (any, error)
	Stats() workerpool.Stats
}

// PipelineService drives the document processing pipeline: claim pending
// documents up to the pool's idle capacity, run the processor on a pool unit,
// and report the outcome along a legal status transition.
type PipelineService struct {
	docRepo   DocumentRepositoryInterface
	txRunner  TxRunner
	fetcher   ObjectFetcher
	processor DocumentProcessor
	pool      TaskExecutor
	timeout   time.Duration
	uuidGen   UUIDGenerator
}

func NewPipelineService(
	docRepo DocumentRepositoryInterface,
	txRunner TxRunner,
	fetcher ObjectFetcher,
	processor DocumentProcessor,
	pool TaskExecutor,
	timeout time.Duration,
) *PipelineService {
	return &PipelineService{
		docRepo:   docRepo,
		txRunner:  txRunner,
		fetcher:   fetcher,
		processor: processor,
		pool:      pool,
		timeout:   timeout,
		uuidGen:   &DefaultUUIDGenerator{},
	}
}

// ProcessJobs implements the jobs.JobProcessor interface. Each tick claims at
// most as many documents as the pool has idle units; claimed documents are
// already in processing, so a claim is never repeated.
func (s *PipelineService) ProcessJobs(ctx context.Context) error {
	idle := s.pool.Stats().Idle
	if idle <= 0 {
		return nil
	}

	var claimed []*domain.Document
	var claimErr error
	for i := 0; i < idle; i++ {
		doc, err := s.docRepo.ClaimNextPending(ctx)
		if err != nil {
			claimErr = err
			break
		}
		if doc == nil {
			break
		}
		claimed = append(claimed, doc)
	}

	if len(claimed) == 0 {
		return claimErr
	}

	var g errgroup.Group
	for _, doc := range claimed {
		doc := doc
		g.Go(func() error {
			return s.processDocument(ctx, doc)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return claimErr
}

func (s *PipelineService) processDocument(ctx context.Context, doc *domain.Document) error {
	ctx, span := telemetry.StartSpan(ctx, "PipelineService.ProcessDocument", telemetry.SpanAttributes{
		ProjectID:  doc.ProjectID,
		DocumentID: doc.ID,
		Operation:  "process",
	})
	defer span.End()

	result, procErr := s.runProcessor(ctx, doc)
	return s.reportOutcome(ctx, doc, result, procErr)
}

func (s *PipelineService) runProcessor(ctx context.Context, doc *domain.Document) (*ProcessedDocument, error) {
	if doc.StorageKey == "" {
		return nil, fmt.Errorf("document has no stored content")
	}

	path, cleanup, err := s.fetcher.FetchToFile(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch document content: %w", err)
	}
	defer cleanup()

	value, err := s.pool.Execute(ctx, func(taskCtx context.Context) (any, error) {
		return s.processor.Process(taskCtx, path, doc.MimeType)
	}, s.timeout)
	if err != nil {
		return nil, err
	}

	result, ok := value.(*ProcessedDocument)
	if !ok || result == nil {
		return nil, fmt.Errorf("processor returned no result")
	}
	return result, nil
}

// reportOutcome finishes one processing attempt. Success commits chunks and
// the completed transition in one transaction; any failure, including a pool
// timeout, moves the document to failed with a human-readable message.
// Failed documents are never retried automatically.
func (s *PipelineService) reportOutcome(ctx context.Context, doc *domain.Document, result *ProcessedDocument, procErr error) error {
	if procErr != nil {
		msg := procErr.Error()
		if errors.Is(procErr, workerpool.ErrTaskTimeout) {
			msg = fmt.Sprintf("processing timed out after %s", s.timeout)
			procErr = fmt.Errorf("%w: %s", domain.ErrProcessingTimeout, msg)
		}
		log.Printf("document %s processing failed: %v", doc.ID, procErr)
		telemetry.CaptureError(ctx, procErr)
		if err := s.docRepo.UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessing, domain.DocumentStatusFailed, msg); err != nil {
			return fmt.Errorf("mark document %s failed: %w", doc.ID, err)
		}
		return nil
	}

	chunks := s.buildChunks(doc.ID, result)
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().ReplaceChunks(ctx, doc.ID, chunks); err != nil {
			return err
		}
		return repos.Documents().UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessing, domain.DocumentStatusCompleted, "")
	})
	if err != nil {
		// The attempt produced results we could not commit. Surface it as a
		// failed attempt rather than leaving the document stuck in processing.
		log.Printf("document %s result commit failed: %v", doc.ID, err)
		telemetry.CaptureError(ctx, err)
		msg := fmt.Sprintf("persist processing results: %v", err)
		if uerr := s.docRepo.UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessing, domain.DocumentStatusFailed, msg); uerr != nil {
			return fmt.Errorf("mark document %s failed after commit error: %w", doc.ID, uerr)
		}
		return nil
	}

	log.Printf("document %s completed: %d chunks, %d outline entries", doc.ID, len(chunks), len(result.Outline))
	return nil
}

func (s *PipelineService) buildChunks(documentID string, result *ProcessedDocument) []domain.DocumentChunk {
	now := time.Now().UTC()
	chunks := make([]domain.DocumentChunk, 0, len(result.Chunks))
	for _, span := range result.Chunks {
		chunks = append(chunks, domain.DocumentChunk{
			ID:           s.uuidGen.NewString(),
			DocumentID:   documentID,
			Position:     span.Position,
			SectionTitle: span.SectionTitle,
			StartOffset:  span.StartOffset,
			EndOffset:    span.EndOffset,
			Content:      span.Content,
			CreatedAt:    now,
		})
	}
	return chunks
}
