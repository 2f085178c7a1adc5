package ads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DPJMedia/springford-ads/internal/models"
)

// Repository handles advertisement persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an advertisement repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const adColumns = `id, title, image_url, link_url, is_active, start_date, end_date, runtime_seconds,
	display_order, label_color, label_position, created_by, created_at, updated_at`

func scanAd(row pgx.Row) (*models.Advertisement, error) {
	var a models.Advertisement
	var pos string
	err := row.Scan(&a.ID, &a.Title, &a.ImageURL, &a.LinkURL, &a.IsActive, &a.StartDate, &a.EndDate, &a.RuntimeSeconds,
		&a.DisplayOrder, &a.LabelColor, &pos, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.LabelPosition = models.LabelPosition(pos)
	return &a, nil
}

// InsertAd inserts a. The id is supplied by the caller so a deleted ad can be
// restored under its old id; a non-zero CreatedAt is kept for the same reason.
func (r *Repository) InsertAd(ctx context.Context, a *models.Advertisement) error {
	const q = `INSERT INTO advertisements (id, title, image_url, link_url, is_active, start_date, end_date,
		runtime_seconds, display_order, label_color, label_position, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, NOW()))
		RETURNING created_at, updated_at`
	var createdAt *time.Time
	if !a.CreatedAt.IsZero() {
		t := a.CreatedAt
		createdAt = &t
	}
	return r.pool.QueryRow(ctx, q, a.ID, a.Title, a.ImageURL, a.LinkURL, a.IsActive, a.StartDate, a.EndDate,
		a.RuntimeSeconds, a.DisplayOrder, a.LabelColor, string(a.LabelPosition), a.CreatedBy, createdAt).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

// UpdateAd overwrites every editable column of a.
func (r *Repository) UpdateAd(ctx context.Context, a *models.Advertisement) error {
	const q = `UPDATE advertisements SET title = $2, image_url = $3, link_url = $4, is_active = $5,
		start_date = $6, end_date = $7, runtime_seconds = $8, display_order = $9, label_color = $10,
		label_position = $11, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, a.ID, a.Title, a.ImageURL, a.LinkURL, a.IsActive, a.StartDate, a.EndDate,
		a.RuntimeSeconds, a.DisplayOrder, a.LabelColor, string(a.LabelPosition)).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAdNotFound
	}
	return err
}

// GetAd returns an advertisement by ID.
func (r *Repository) GetAd(ctx context.Context, id uuid.UUID) (*models.Advertisement, error) {
	q := `SELECT ` + adColumns + ` FROM advertisements WHERE id = $1`
	a, err := scanAd(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAdNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get advertisement: %w", err)
	}
	return a, nil
}

// ListAds returns every advertisement ordered for display.
func (r *Repository) ListAds(ctx context.Context) ([]models.Advertisement, error) {
	q := `SELECT ` + adColumns + ` FROM advertisements ORDER BY display_order, created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Advertisement
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// DeleteAd removes an advertisement by ID.
func (r *Repository) DeleteAd(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM advertisements WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// SetEnabled writes is_active only.
func (r *Repository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	const q = `UPDATE advertisements SET is_active = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAdNotFound
	}
	return nil
}

// SetRotationInterval writes runtime_seconds only. nil clears it.
func (r *Repository) SetRotationInterval(ctx context.Context, id uuid.UUID, seconds *int) error {
	const q = `UPDATE advertisements SET runtime_seconds = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, seconds)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAdNotFound
	}
	return nil
}

// MaxDisplayOrder returns the highest display_order among ads assigned to any
// of slots, or across all ads when slots is empty. Zero when nothing matches.
func (r *Repository) MaxDisplayOrder(ctx context.Context, slots []models.Slot) (int, error) {
	var n int
	if len(slots) == 0 {
		const q = `SELECT COALESCE(MAX(display_order), 0) FROM advertisements`
		err := r.pool.QueryRow(ctx, q).Scan(&n)
		return n, err
	}
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = string(s)
	}
	const q = `SELECT COALESCE(MAX(a.display_order), 0) FROM advertisements a
		JOIN ad_slot_assignments s ON s.ad_id = a.id
		WHERE s.ad_slot = ANY($1)`
	err := r.pool.QueryRow(ctx, q, names).Scan(&n)
	return n, err
}
