package schedule

import (
	"time"

	"github.com/DPJMedia/springford-ads/internal/models"
)

// Resolve returns the display status for an advertisement window at now.
// A disabled advertisement is always expired. The window is inclusive at both ends.
func Resolve(enabled bool, start, end, now time.Time) models.Status {
	switch {
	case !enabled:
		return models.StatusExpired
	case now.Before(start):
		return models.StatusScheduled
	case now.After(end):
		return models.StatusExpired
	default:
		return models.StatusActive
	}
}

// ResolveAd is Resolve applied to a stored advertisement.
func ResolveAd(a models.Advertisement, now time.Time) models.Status {
	return Resolve(a.IsActive, a.StartDate, a.EndDate, now)
}
