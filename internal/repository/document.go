package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleyhq/parley/internal/domain"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

const documentColumns = `id, project_id, filename, original_filename, mime_type, storage_key, status, processing_error, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	if err := domain.ValidateDocument(d); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.ProjectID, d.Filename, nullableString(d.OriginalFilename), d.MimeType, nullableString(d.StorageKey),
		d.Status, nullableString(d.ProcessingError), d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) ListByProject(ctx context.Context, projectID string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE project_id = $1 ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ClaimNextPending atomically selects one pending document and moves it to
// processing. The status flip is the mutual-exclusion mechanism: a row already
// claimed (or claimed by a concurrent caller via SKIP LOCKED) is never
// returned twice. Returns (nil, nil) when no document is eligible.
func (r *DocumentRepository) ClaimNextPending(ctx context.Context) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM documents
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT 1
		 )
		 UPDATE documents
		 SET status = $2,
		     processing_error = NULL,
		     updated_at = $3
		 FROM cte
		 WHERE documents.id = cte.id
		 RETURNING documents.id, documents.project_id, documents.filename, documents.original_filename,
		           documents.mime_type, documents.storage_key, documents.status, documents.processing_error,
		           documents.created_at, documents.updated_at`,
		domain.DocumentStatusPending, domain.DocumentStatusProcessing, time.Now().UTC(),
	)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// UpdateStatus performs a guarded compare-and-set along a legal state-machine
// edge. The WHERE clause on the expected status makes the transition atomic:
// if another writer moved the document first, zero rows match and the caller
// gets ErrIllegalTransition instead of a silent repeated write.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.DocumentStatus, errMsg string) error {
	if !domain.CanTransition(from, to) {
		return domain.ErrIllegalTransition
	}

	var errPtr *string
	if to == domain.DocumentStatusFailed && errMsg != "" {
		errPtr = &errMsg
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, processing_error = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		to, errPtr, time.Now().UTC(), id, from,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrDocumentNotFound
		}
		return domain.ErrIllegalTransition
	}
	return nil
}

// ListReprocessable returns documents in a terminal state (completed or
// failed), optionally filtered to a project and/or explicit ids.
func (r *DocumentRepository) ListReprocessable(ctx context.Context, projectID string, ids []string) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE status = ANY($1)`
	args := []any{[]string{string(domain.DocumentStatusCompleted), string(domain.DocumentStatusFailed)}}

	if projectID != "" {
		args = append(args, projectID)
		query += ` AND project_id = $2`
	}
	if len(ids) > 0 {
		args = append(args, ids)
		if projectID != "" {
			query += ` AND id = ANY($3)`
		} else {
			query += ` AND id = ANY($2)`
		}
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) CountByStatus(ctx context.Context, status domain.DocumentStatus) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE status = $1`, status).Scan(&count)
	return count, err
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var originalFilename, storageKey, processingError pgtype.Text
	err := row.Scan(&d.ID, &d.ProjectID, &d.Filename, &originalFilename, &d.MimeType, &storageKey,
		&d.Status, &processingError, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if originalFilename.Valid {
		d.OriginalFilename = originalFilename.String
	}
	if storageKey.Valid {
		d.StorageKey = storageKey.String
	}
	if processingError.Valid {
		d.ProcessingError = processingError.String
	}
	return &d, nil
}
