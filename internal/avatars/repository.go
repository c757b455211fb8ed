package avatars

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simulive/backend/internal/models"
)

// Repository reads the scripted avatar messages of a webinar.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an avatar messages repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByWebinar returns the script ordered by video timestamp.
func (r *Repository) ListByWebinar(ctx context.Context, webinarID string) ([]models.AvatarMessage, error) {
	const q = `SELECT id, webinar_id, name, message, timestamp, created_at
		FROM avatar_messages WHERE webinar_id = $1 ORDER BY timestamp ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, q, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.AvatarMessage{}
	for rows.Next() {
		var m models.AvatarMessage
		if err := rows.Scan(&m.ID, &m.WebinarID, &m.Name, &m.Message, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
