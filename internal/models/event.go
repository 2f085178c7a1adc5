package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle event sent to the notification queue.
type EventType string

const (
	EventAdCreated   EventType = "ad_created"
	EventAdUpdated   EventType = "ad_updated"
	EventAdDeleted   EventType = "ad_deleted"
	EventAdToggled   EventType = "ad_toggled"
	EventAdActivated EventType = "ad_activated"
	EventAdExpired   EventType = "ad_expired"
)

// AdEvent is the payload delivered to the notification webhook.
type AdEvent struct {
	Type       EventType `json:"type"`
	AdID       uuid.UUID `json:"ad_id"`
	Title      string    `json:"title,omitempty"`
	ActorID    uuid.UUID `json:"actor_id"`
	IsActive   bool      `json:"is_active"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAdEvent builds an event for a.
func NewAdEvent(t EventType, a Advertisement, actor uuid.UUID, at time.Time) AdEvent {
	ev := AdEvent{
		Type:       t,
		AdID:       a.ID,
		ActorID:    actor,
		IsActive:   a.IsActive,
		StartDate:  a.StartDate,
		EndDate:    a.EndDate,
		OccurredAt: at.UTC(),
	}
	if a.Title != nil {
		ev.Title = *a.Title
	}
	return ev
}
