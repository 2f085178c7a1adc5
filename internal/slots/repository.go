package slots

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DPJMedia/springford-ads/internal/models"
)

// Repository handles ad_slot_assignments and ad_settings persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a slot assignment repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SetAssignments replaces every assignment of adID with list inside one
// transaction: delete all, then insert. On any error the transaction is rolled
// back and the previous set survives; callers must still treat the error as a
// failed save.
func (r *Repository) SetAssignments(ctx context.Context, adID uuid.UUID, list []models.SlotAssignment) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM ad_slot_assignments WHERE ad_id = $1`, adID); err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}

	if len(list) > 0 {
		batch := &pgx.Batch{}
		for _, a := range list {
			batch.Queue(`INSERT INTO ad_slot_assignments (ad_id, ad_slot, fill_section) VALUES ($1, $2, $3)`,
				adID, string(a.Slot), a.FillSection)
		}
		br := tx.SendBatch(ctx, batch)
		for range list {
			if _, err = br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert assignment: %w", err)
			}
		}
		if err = br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit assignments: %w", err)
	}
	return nil
}

// DeleteAssignments removes every assignment of adID.
func (r *Repository) DeleteAssignments(ctx context.Context, adID uuid.UUID) error {
	const q = `DELETE FROM ad_slot_assignments WHERE ad_id = $1`
	_, err := r.pool.Exec(ctx, q, adID)
	return err
}

// AssignmentsForSlot returns every assignment in slot.
func (r *Repository) AssignmentsForSlot(ctx context.Context, slot models.Slot) ([]models.SlotAssignment, error) {
	const q = `SELECT ad_id, ad_slot, fill_section FROM ad_slot_assignments WHERE ad_slot = $1 ORDER BY ad_id`
	return r.collect(ctx, q, string(slot))
}

// AssignmentsForAd returns every assignment held by adID.
func (r *Repository) AssignmentsForAd(ctx context.Context, adID uuid.UUID) ([]models.SlotAssignment, error) {
	const q = `SELECT ad_id, ad_slot, fill_section FROM ad_slot_assignments WHERE ad_id = $1 ORDER BY ad_slot`
	return r.collect(ctx, q, adID)
}

// SlotsForAd returns the slot names held by adID.
func (r *Repository) SlotsForAd(ctx context.Context, adID uuid.UUID) ([]models.Slot, error) {
	list, err := r.AssignmentsForAd(ctx, adID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Slot, 0, len(list))
	for _, a := range list {
		out = append(out, a.Slot)
	}
	return out, nil
}

// CountForSlot returns how many advertisements are assigned to slot.
func (r *Repository) CountForSlot(ctx context.Context, slot models.Slot) (int, error) {
	const q = `SELECT COUNT(*) FROM ad_slot_assignments WHERE ad_slot = $1`
	var n int
	if err := r.pool.QueryRow(ctx, q, string(slot)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// UseFallback reads the ad_settings flag for slot. Slots without a row use the filler.
func (r *Repository) UseFallback(ctx context.Context, slot models.Slot) (bool, error) {
	const q = `SELECT use_fallback FROM ad_settings WHERE ad_slot = $1`
	var v bool
	err := r.pool.QueryRow(ctx, q, string(slot)).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return v, nil
}

// ListSettings returns every ad_settings row.
func (r *Repository) ListSettings(ctx context.Context) ([]models.AdSetting, error) {
	const q = `SELECT ad_slot, use_fallback FROM ad_settings ORDER BY ad_slot`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AdSetting, error) {
		var s models.AdSetting
		var slot string
		err := row.Scan(&slot, &s.UseFallback)
		s.Slot = models.Slot(slot)
		return s, err
	})
}

func (r *Repository) collect(ctx context.Context, q string, arg any) ([]models.SlotAssignment, error) {
	rows, err := r.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.SlotAssignment
	for rows.Next() {
		var a models.SlotAssignment
		var slot string
		if err := rows.Scan(&a.AdID, &slot, &a.FillSection); err != nil {
			return nil, err
		}
		a.Slot = models.Slot(slot)
		list = append(list, a)
	}
	return list, rows.Err()
}
