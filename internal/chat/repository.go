package chat

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simulive/backend/internal/models"
)

// Repository handles chat_messages persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores m and fills its server-assigned ID and CreatedAt.
func (r *Repository) Insert(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (webinar_id, session_id, user_id, message, is_admin, is_avatar)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, m.WebinarID, m.SessionID, m.UserID, m.Message, m.IsAdmin, m.IsAvatar).
		Scan(&m.ID, &m.CreatedAt)
}

// ListByWebinar returns the latest limit messages of a webinar, oldest first.
func (r *Repository) ListByWebinar(ctx context.Context, webinarID string, limit int) ([]models.ChatMessage, error) {
	const q = `SELECT id, webinar_id, session_id, user_id, message, is_admin, is_avatar, created_at FROM (
			SELECT id, webinar_id, session_id, user_id, message, is_admin, is_avatar, created_at
			FROM chat_messages WHERE webinar_id = $1 ORDER BY created_at DESC LIMIT $2
		) latest ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, webinarID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.WebinarID, &m.SessionID, &m.UserID, &m.Message, &m.IsAdmin, &m.IsAvatar, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
