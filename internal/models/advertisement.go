package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the display state of an advertisement at a moment in time.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
)

// LabelPosition is the corner where the "Advertisement" label is drawn.
type LabelPosition string

const (
	LabelTopLeft     LabelPosition = "top-left"
	LabelTopRight    LabelPosition = "top-right"
	LabelBottomLeft  LabelPosition = "bottom-left"
	LabelBottomRight LabelPosition = "bottom-right"
)

// Valid reports whether p is one of the four supported corners.
func (p LabelPosition) Valid() bool {
	switch p {
	case LabelTopLeft, LabelTopRight, LabelBottomLeft, LabelBottomRight:
		return true
	}
	return false
}

// Advertisement is an image ad placed into one or more display slots.
// RuntimeSeconds is the rotation interval; nil means rotation does not apply.
type Advertisement struct {
	ID             uuid.UUID     `json:"id"`
	Title          *string       `json:"title,omitempty"`
	ImageURL       string        `json:"image_url"`
	LinkURL        string        `json:"link_url"`
	IsActive       bool          `json:"is_active"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	RuntimeSeconds *int          `json:"runtime_seconds,omitempty"`
	DisplayOrder   int           `json:"display_order"`
	LabelColor     *string       `json:"label_color,omitempty"`
	LabelPosition  LabelPosition `json:"label_position"`
	CreatedBy      uuid.UUID     `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so snapshots never alias pointer fields.
func (a Advertisement) Clone() Advertisement {
	c := a
	if a.Title != nil {
		t := *a.Title
		c.Title = &t
	}
	if a.RuntimeSeconds != nil {
		r := *a.RuntimeSeconds
		c.RuntimeSeconds = &r
	}
	if a.LabelColor != nil {
		l := *a.LabelColor
		c.LabelColor = &l
	}
	return c
}

// SlotAssignment places one advertisement into one slot.
type SlotAssignment struct {
	AdID        uuid.UUID `json:"ad_id"`
	Slot        Slot      `json:"ad_slot"`
	FillSection bool      `json:"fill_section"`
}

// AdSetting holds per-slot display settings owned by the site layout.
type AdSetting struct {
	Slot        Slot `json:"ad_slot"`
	UseFallback bool `json:"use_fallback"`
}
