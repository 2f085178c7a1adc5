package ads

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/DPJMedia/springford-ads/internal/models"
	"github.com/DPJMedia/springford-ads/internal/schedule"
)

// PlacedAd is one ad eligible to show in a slot.
type PlacedAd struct {
	ID             uuid.UUID            `json:"id"`
	Title          *string              `json:"title,omitempty"`
	ImageURL       string               `json:"image_url"`
	LinkURL        string               `json:"link_url"`
	RuntimeSeconds *int                 `json:"runtime_seconds,omitempty"`
	DisplayOrder   int                  `json:"display_order"`
	FillSection    bool                 `json:"fill_section"`
	LabelColor     *string              `json:"label_color,omitempty"`
	LabelPosition  models.LabelPosition `json:"label_position"`
}

// Placement lists what a slot should show right now. Rotate is true when more
// than one ad shares the slot; UseFallback applies when Ads is empty.
type Placement struct {
	Slot        models.Slot `json:"slot"`
	Ads         []PlacedAd  `json:"ads"`
	Rotate      bool        `json:"rotate"`
	UseFallback bool        `json:"use_fallback"`
}

// Placement returns the ads active in slot, ordered by display order.
func (s *Service) Placement(ctx context.Context, slot models.Slot) (*Placement, error) {
	if !slot.Valid() {
		return nil, invalid("ad_slot", fmt.Sprintf("Unknown ad slot %q.", slot))
	}
	assigned, err := s.slots.AssignmentsForSlot(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", slot, err)
	}
	fallback, err := s.slots.UseFallback(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("load slot settings: %w", err)
	}

	now := s.now()
	type placed struct {
		ad   models.Advertisement
		fill bool
	}
	var eligible []placed
	for _, as := range assigned {
		a, err := s.ads.GetAd(ctx, as.AdID)
		if errors.Is(err, ErrAdNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load ad %s: %w", as.AdID, err)
		}
		if schedule.ResolveAd(*a, now) == models.StatusActive {
			eligible = append(eligible, placed{ad: *a, fill: as.FillSection})
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].ad.DisplayOrder != eligible[j].ad.DisplayOrder {
			return eligible[i].ad.DisplayOrder < eligible[j].ad.DisplayOrder
		}
		return eligible[i].ad.CreatedAt.Before(eligible[j].ad.CreatedAt)
	})

	p := &Placement{Slot: slot, UseFallback: fallback, Ads: make([]PlacedAd, 0, len(eligible))}
	for _, e := range eligible {
		p.Ads = append(p.Ads, PlacedAd{
			ID:             e.ad.ID,
			Title:          e.ad.Title,
			ImageURL:       e.ad.ImageURL,
			LinkURL:        e.ad.LinkURL,
			RuntimeSeconds: e.ad.RuntimeSeconds,
			DisplayOrder:   e.ad.DisplayOrder,
			FillSection:    e.fill,
			LabelColor:     e.ad.LabelColor,
			LabelPosition:  e.ad.LabelPosition,
		})
	}
	p.Rotate = len(p.Ads) > 1
	return p, nil
}
