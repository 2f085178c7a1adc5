// Package main runs the background worker that delivers ad lifecycle events to the webhook.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DPJMedia/springford-ads/config"
	"github.com/DPJMedia/springford-ads/internal/worker"
	"github.com/DPJMedia/springford-ads/pkg/queue"
	"github.com/DPJMedia/springford-ads/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if !cfg.Notify.Enabled || cfg.Notify.WebhookURL == "" {
		logger.Fatal("notifications disabled: set NOTIFY_WEBHOOK_URL")
	}

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, queue.QueueAdEvents, logger)
	if n, err := jobQueue.DeadLetters(ctx); err == nil && n > 0 {
		logger.Warn("dead-letter queue not empty", zap.Int64("jobs", n))
	}
	dispatcher := worker.NewEventDispatcher(jobQueue, cfg.Notify.WebhookURL, cfg.Notify.Secret, cfg.Notify.Timeout, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		dispatcher.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started", zap.String("queue", queue.QueueAdEvents))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(queue.PollTimeout + time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
