package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

// SynthesisRepository persists append-only audience synthesis versions. The
// table carries UNIQUE(project_id, version); rows are inserted and read,
// never updated or deleted.
type SynthesisRepository struct {
	db dbtx
}

func NewSynthesisRepository(pool *pgxpool.Pool) *SynthesisRepository {
	return &SynthesisRepository{db: pool}
}

func NewSynthesisRepositoryWithTx(tx pgx.Tx) *SynthesisRepository {
	return &SynthesisRepository{db: tx}
}

const synthesisColumns = `id, project_id, version, overview, common_questions, knowledge_gaps,
	doc_suggestions, sentiment, insights, conversation_count, total_messages,
	covered_from, covered_to, created_at`

// InsertNextVersion claims version = max(version)+1 for the project and
// inserts the snapshot in a single statement. A concurrent claim for the same
// version loses on the uniqueness constraint and gets ErrSynthesisConflict;
// nothing is written for the loser. The committed version is written back to
// s.Version.
func (r *SynthesisRepository) InsertNextVersion(ctx context.Context, s *domain.AudienceSynthesis) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO audience_syntheses (`+synthesisColumns+`)
		 SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		 FROM audience_syntheses
		 WHERE project_id = $2
		 RETURNING version`,
		s.ID, s.ProjectID, s.Overview, s.CommonQuestions, s.KnowledgeGaps, s.DocSuggestions,
		s.Sentiment, s.Insights, s.ConversationCount, s.TotalMessages,
		s.CoveredFrom, s.CoveredTo, s.CreatedAt,
	).Scan(&s.Version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrSynthesisConflict
		}
		return err
	}
	return nil
}

// GetCurrent returns the highest-version synthesis for a project.
func (r *SynthesisRepository) GetCurrent(ctx context.Context, projectID string) (*domain.AudienceSynthesis, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+synthesisColumns+`
		 FROM audience_syntheses
		 WHERE project_id = $1
		 ORDER BY version DESC
		 LIMIT 1`,
		projectID,
	)
	return scanSynthesis(row)
}

// GetByVersion returns one historical synthesis by (projectID, version).
func (r *SynthesisRepository) GetByVersion(ctx context.Context, projectID string, version int64) (*domain.AudienceSynthesis, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+synthesisColumns+`
		 FROM audience_syntheses
		 WHERE project_id = $1 AND version = $2`,
		projectID, version,
	)
	return scanSynthesis(row)
}

// ListVersions returns version metadata for a project, ordered ascending.
func (r *SynthesisRepository) ListVersions(ctx context.Context, projectID string) ([]*service.SynthesisVersionInfo, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, version, conversation_count, to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		 FROM audience_syntheses
		 WHERE project_id = $1
		 ORDER BY version ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []*service.SynthesisVersionInfo
	for rows.Next() {
		var info service.SynthesisVersionInfo
		if err := rows.Scan(&info.ID, &info.Version, &info.ConversationCount, &info.CreatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}

func scanSynthesis(row pgx.Row) (*domain.AudienceSynthesis, error) {
	var s domain.AudienceSynthesis
	err := row.Scan(&s.ID, &s.ProjectID, &s.Version, &s.Overview, &s.CommonQuestions,
		&s.KnowledgeGaps, &s.DocSuggestions, &s.Sentiment, &s.Insights,
		&s.ConversationCount, &s.TotalMessages, &s.CoveredFrom, &s.CoveredTo, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSynthesisNotFound
		}
		return nil, err
	}
	return &s, nil
}
