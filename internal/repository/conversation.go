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

type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, project_id, title, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.ProjectID, nullableString(c.Title), c.StartedAt, nullableTime(c.EndedAt),
	)
	return err
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	var title pgtype.Text
	var endedAt pgtype.Timestamptz
	err := r.db.QueryRow(ctx,
		`SELECT id, project_id, title, started_at, ended_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.ProjectID, &title, &c.StartedAt, &endedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	if title.Valid {
		c.Title = title.String
	}
	if endedAt.Valid {
		c.EndedAt = endedAt.Time
	}
	return &c, nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, m *domain.Message) error {
	if err := domain.ValidateMessage(m); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt,
	)
	return err
}

// ListByProjectSince returns a project's conversations started after the
// given cutoff, oldest first. A zero cutoff returns all conversations.
func (r *ConversationRepository) ListByProjectSince(ctx context.Context, projectID string, since time.Time) ([]*domain.Conversation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, project_id, title, started_at, ended_at
		 FROM conversations
		 WHERE project_id = $1 AND started_at > $2
		 ORDER BY started_at ASC`,
		projectID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		var title pgtype.Text
		var endedAt pgtype.Timestamptz
		if err := rows.Scan(&c.ID, &c.ProjectID, &title, &c.StartedAt, &endedAt); err != nil {
			return nil, err
		}
		if title.Valid {
			c.Title = title.String
		}
		if endedAt.Valid {
			c.EndedAt = endedAt.Time
		}
		convs = append(convs, &c)
	}
	return convs, rows.Err()
}

func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
