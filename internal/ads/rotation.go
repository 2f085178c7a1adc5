package ads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DPJMedia/springford-ads/internal/models"
	"github.com/DPJMedia/springford-ads/internal/schedule"
)

// RotationPlan carries the intervals an editor supplied with a save: one for
// the ad being saved and optional overrides for the ads it would share slots with.
type RotationPlan struct {
	Interval *int              `json:"runtime_seconds"`
	Siblings map[uuid.UUID]int `json:"siblings,omitempty"`
}

// RotationRequirement is the outcome of a conflict scan.
type RotationRequirement struct {
	Required  bool                        `json:"required"`
	Conflicts []models.Advertisement      `json:"conflicts"`
	PerSlot   map[models.Slot][]uuid.UUID `json:"per_slot"`
}

// ReleasedInterval records an interval cleared after a delete so it can be restored.
type ReleasedInterval struct {
	AdID     uuid.UUID `json:"ad_id"`
	Previous *int      `json:"previous"`
}

// Coordinator decides when ads sharing a slot must rotate and keeps their intervals in step.
type Coordinator struct {
	ads    AdStore
	slots  SlotStore
	logger *zap.Logger
}

// NewCoordinator creates a rotation coordinator.
func NewCoordinator(ads AdStore, slots SlotStore, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{ads: ads, slots: slots, logger: logger}
}

// Check scans every slot for other ads that are active at now. candidateID is
// excluded from the scan when the ad already exists. Each slot is judged on its
// own; an ad that conflicts in several slots is listed once.
//
// Only ads active at now conflict. Two ads with future windows that will later
// overlap are not detected here.
func (c *Coordinator) Check(ctx context.Context, candidateID *uuid.UUID, slots []models.Slot, now time.Time) (*RotationRequirement, error) {
	req := &RotationRequirement{PerSlot: make(map[models.Slot][]uuid.UUID)}
	seen := make(map[uuid.UUID]*models.Advertisement)
	listed := make(map[uuid.UUID]bool)

	for _, slot := range slots {
		assigned, err := c.slots.AssignmentsForSlot(ctx, slot)
		if err != nil {
			return nil, fmt.Errorf("load slot %s: %w", slot, err)
		}
		for _, as := range assigned {
			if candidateID != nil && as.AdID == *candidateID {
				continue
			}
			other, ok := seen[as.AdID]
			if !ok {
				other, err = c.ads.GetAd(ctx, as.AdID)
				if errors.Is(err, ErrAdNotFound) {
					c.logger.Warn("slot assignment without advertisement", zap.String("ad_id", as.AdID.String()), zap.String("slot", string(slot)))
					seen[as.AdID] = nil
					continue
				}
				if err != nil {
					return nil, fmt.Errorf("load advertisement %s: %w", as.AdID, err)
				}
				seen[as.AdID] = other
			}
			if other == nil || schedule.ResolveAd(*other, now) != models.StatusActive {
				continue
			}
			req.Required = true
			req.PerSlot[slot] = append(req.PerSlot[slot], other.ID)
			if !listed[other.ID] {
				listed[other.ID] = true
				req.Conflicts = append(req.Conflicts, *other)
			}
		}
	}
	return req, nil
}

// Validate rejects the save before any write when rotation is required and the
// candidate or any conflicting ad lacks an interval of at least one second.
// A conflicting ad without an override in the plan keeps its stored interval.
func (c *Coordinator) Validate(req *RotationRequirement, plan RotationPlan) error {
	if plan.Interval != nil && *plan.Interval < 1 {
		return invalid("runtime_seconds", "Rotation interval must be at least 1 second.")
	}
	for id, v := range plan.Siblings {
		if v < 1 {
			id := id
			return &ValidationError{Field: "runtime_seconds", AdID: &id, Message: "Rotation interval must be at least 1 second."}
		}
	}
	if req == nil || !req.Required {
		return nil
	}
	if plan.Interval == nil {
		return invalid("runtime_seconds", fmt.Sprintf("this ad shares a slot with %d active ad(s); set runtime_seconds to at least 1 second.", len(req.Conflicts)))
	}
	for _, o := range req.Conflicts {
		if v := effectiveInterval(o, plan); v == nil || *v < 1 {
			id := o.ID
			return &ValidationError{
				Field:   "runtime_seconds",
				AdID:    &id,
				Message: fmt.Sprintf("%s has no runtime_seconds; set a rotation interval of at least 1 second for it.", adLabel(o)),
			}
		}
	}
	return nil
}

// Propagate writes planned intervals to the conflicting ads, one record at a
// time. The first failed write stops propagation and is returned.
func (c *Coordinator) Propagate(ctx context.Context, req *RotationRequirement, plan RotationPlan) error {
	if req == nil || !req.Required {
		return nil
	}
	for _, o := range req.Conflicts {
		v, ok := plan.Siblings[o.ID]
		if !ok {
			continue
		}
		if o.RuntimeSeconds != nil && *o.RuntimeSeconds == v {
			continue
		}
		if err := c.ads.SetRotationInterval(ctx, o.ID, &v); err != nil {
			return fmt.Errorf("set interval for %s: %w", o.ID, err)
		}
	}
	return nil
}

// ReleaseSlots recounts each slot after a delete. A slot left with exactly one
// ad no longer rotates, so that ad's interval is cleared. The cleared values
// are returned so an undo can put them back.
func (c *Coordinator) ReleaseSlots(ctx context.Context, slots []models.Slot) ([]ReleasedInterval, error) {
	var released []ReleasedInterval
	done := make(map[uuid.UUID]bool)
	for _, slot := range slots {
		n, err := c.slots.CountForSlot(ctx, slot)
		if err != nil {
			return released, fmt.Errorf("count slot %s: %w", slot, err)
		}
		if n != 1 {
			continue
		}
		remaining, err := c.slots.AssignmentsForSlot(ctx, slot)
		if err != nil {
			return released, fmt.Errorf("load slot %s: %w", slot, err)
		}
		if len(remaining) != 1 || done[remaining[0].AdID] {
			continue
		}
		id := remaining[0].AdID
		done[id] = true
		ad, err := c.ads.GetAd(ctx, id)
		if err != nil {
			return released, fmt.Errorf("load advertisement %s: %w", id, err)
		}
		if ad.RuntimeSeconds == nil {
			continue
		}
		if err := c.ads.SetRotationInterval(ctx, id, nil); err != nil {
			return released, fmt.Errorf("clear interval for %s: %w", id, err)
		}
		released = append(released, ReleasedInterval{AdID: id, Previous: ad.RuntimeSeconds})
		c.logger.Info("rotation interval cleared", zap.String("ad_id", id.String()), zap.String("slot", string(slot)))
	}
	return released, nil
}

func effectiveInterval(o models.Advertisement, plan RotationPlan) *int {
	if v, ok := plan.Siblings[o.ID]; ok {
		return &v
	}
	return o.RuntimeSeconds
}

func adLabel(a models.Advertisement) string {
	if a.Title != nil && *a.Title != "" {
		return fmt.Sprintf("%q", *a.Title)
	}
	return "Ad " + a.ID.String()
}
