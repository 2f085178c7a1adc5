// Package notify forwards advertisement lifecycle events to the job queue.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DPJMedia/springford-ads/internal/models"
	"github.com/DPJMedia/springford-ads/pkg/queue"
)

const enqueueTimeout = 2 * time.Second

// Enqueuer pushes a job onto a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.JobType, payload interface{}) error
}

// Notifier enqueues events for the worker. Failures are logged and dropped.
type Notifier struct {
	q      Enqueuer
	logger *zap.Logger
}

// New creates a notifier.
func New(q Enqueuer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{q: q, logger: logger}
}

// Notify enqueues ev. It never returns an error to the caller.
func (n *Notifier) Notify(ctx context.Context, ev models.AdEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if err := n.q.Enqueue(ctx, queue.JobTypeAdEvent, ev); err != nil {
		n.logger.Warn("enqueue ad event failed", zap.Error(err), zap.String("type", string(ev.Type)), zap.String("ad_id", ev.AdID.String()))
		return
	}
	n.logger.Debug("ad event enqueued", zap.String("type", string(ev.Type)), zap.String("ad_id", ev.AdID.String()))
}

// Transitions returns callbacks that report scheduled->active and
// active->expired flips seen by a refresh loop.
func (n *Notifier) Transitions() (onActivated, onExpired func(models.Advertisement)) {
	emit := func(t models.EventType) func(models.Advertisement) {
		return func(a models.Advertisement) {
			n.Notify(context.Background(), models.NewAdEvent(t, a, a.CreatedBy, time.Now()))
		}
	}
	return emit(models.EventAdActivated), emit(models.EventAdExpired)
}
