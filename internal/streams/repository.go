package streams

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simulive/backend/internal/models"
)

const sessionColumns = `id, webinar_id, started_at, ended_at, peak_viewers, created_at, updated_at`

// Repository handles stream_sessions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stream sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.StreamSession, error) {
	var s models.StreamSession
	if err := row.Scan(&s.ID, &s.WebinarID, &s.StartedAt, &s.EndedAt, &s.PeakViewers, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create starts a new stream session for a webinar.
func (r *Repository) Create(ctx context.Context, webinarID string) (*models.StreamSession, error) {
	const q = `INSERT INTO stream_sessions (webinar_id) VALUES ($1) RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, webinarID))
}

// GetActiveByWebinar returns the session without ended_at, or nil when there is none.
func (r *Repository) GetActiveByWebinar(ctx context.Context, webinarID string) (*models.StreamSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM stream_sessions
		WHERE webinar_id = $1 AND ended_at IS NULL ORDER BY started_at DESC LIMIT 1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, webinarID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// GetOrCreateActive returns the active stream session for a webinar, creating one if none exists.
func (r *Repository) GetOrCreateActive(ctx context.Context, webinarID string) (*models.StreamSession, error) {
	s, err := r.GetActiveByWebinar(ctx, webinarID)
	if err != nil || s != nil {
		return s, err
	}
	return r.Create(ctx, webinarID)
}

// UpdatePeakViewers raises peak_viewers; lower values are ignored.
func (r *Repository) UpdatePeakViewers(ctx context.Context, sessionID uuid.UUID, peak int) error {
	const q = `UPDATE stream_sessions SET peak_viewers = $1, updated_at = NOW() WHERE id = $2 AND $1 > peak_viewers`
	_, err := r.pool.Exec(ctx, q, peak, sessionID)
	return err
}

// End sets ended_at for a session.
func (r *Repository) End(ctx context.Context, sessionID uuid.UUID) error {
	const q = `UPDATE stream_sessions SET ended_at = NOW(), updated_at = NOW() WHERE id = $1 AND ended_at IS NULL`
	_, err := r.pool.Exec(ctx, q, sessionID)
	return err
}
