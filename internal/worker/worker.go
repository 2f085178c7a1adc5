package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DPJMedia/springford-ads/pkg/queue"
	"github.com/DPJMedia/springford-ads/pkg/utils"
)

// JobSource yields jobs and takes back failed ones.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// EventDispatcher delivers advertisement event jobs to a webhook.
type EventDispatcher struct {
	src        JobSource
	webhookURL string
	secret     string
	client     *http.Client
	backoff    time.Duration
	logger     *zap.Logger
}

// NewEventDispatcher creates a webhook dispatcher.
func NewEventDispatcher(src JobSource, webhookURL, secret string, timeout time.Duration, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EventDispatcher{
		src:        src,
		webhookURL: webhookURL,
		secret:     secret,
		client:     &http.Client{Timeout: timeout},
		backoff:    queue.RetryBackoff,
		logger:     logger,
	}
}

// Process posts one job's payload to the webhook. Non-2xx responses are errors.
func (d *EventDispatcher) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAdEvent {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(job.Payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	now := time.Now()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", job.ID)
	if d.secret != "" {
		req.Header.Set("X-Signature-Timestamp", strconv.FormatInt(now.Unix(), 10))
		req.Header.Set("X-Signature", utils.SignPayload(d.secret, now, job.Payload))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status: %d", resp.StatusCode)
	}
	d.logger.Info("ad event delivered", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (d *EventDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("event worker stopping")
			return
		default:
		}

		job, err := d.src.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.logger.Warn("dequeue error", zap.Error(err))
			d.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		d.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := d.Process(ctx, job); err != nil {
			d.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := d.src.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				d.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			d.sleep(ctx)
		}
	}
}

func (d *EventDispatcher) sleep(ctx context.Context) {
	t := time.NewTimer(d.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
