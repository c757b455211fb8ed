package webinars

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simulive/backend/internal/models"
)

// Repository reads webinars.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webinar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a webinar by ID, models.ErrNotFound when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Webinar, error) {
	const q = `SELECT id, title, user_id, video_url, created_at FROM webinars WHERE id = $1`
	var w models.Webinar
	err := r.pool.QueryRow(ctx, q, id).Scan(&w.ID, &w.Title, &w.UserID, &w.VideoURL, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("webinar %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &w, nil
}

// GetOwner returns the user id owning the webinar.
func (r *Repository) GetOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM webinars WHERE id = $1`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("webinar %s: %w", id, models.ErrNotFound)
		}
		return "", err
	}
	return owner, nil
}
