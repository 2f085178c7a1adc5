// Package main runs the ad scheduling HTTP server with WebSocket dashboards and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DPJMedia/springford-ads/config"
	"github.com/DPJMedia/springford-ads/internal/ads"
	"github.com/DPJMedia/springford-ads/internal/auth"
	"github.com/DPJMedia/springford-ads/internal/middleware"
	"github.com/DPJMedia/springford-ads/internal/models"
	"github.com/DPJMedia/springford-ads/internal/notify"
	"github.com/DPJMedia/springford-ads/internal/realtime"
	"github.com/DPJMedia/springford-ads/internal/slots"
	"github.com/DPJMedia/springford-ads/pkg/database"
	"github.com/DPJMedia/springford-ads/pkg/queue"
	"github.com/DPJMedia/springford-ads/pkg/redis"
	"github.com/DPJMedia/springford-ads/pkg/response"
	"github.com/DPJMedia/springford-ads/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var images ads.ImageStore
	if cfg.AWS.ImagesBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ImagesBucket:    cfg.AWS.ImagesBucket,
			PublicBaseURL:   cfg.AWS.PublicBaseURL,
			PublicRead:      cfg.AWS.PublicRead,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			images = s3Client
		}
	} else {
		logger.Warn("image uploads disabled: AWS_S3_IMAGES_BUCKET not set")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	jobQueue := queue.NewQueue(rdb.Client, queue.QueueAdEvents, logger)
	var notifier *notify.Notifier
	var adNotifier ads.Notifier
	if cfg.Notify.Enabled {
		notifier = notify.New(jobQueue, logger)
		adNotifier = notifier
	}

	// Advertisements
	adRepo := ads.NewRepository(pool)
	slotRepo := slots.NewRepository(pool)
	undo := ads.NewLedgerRegistry(cfg.Schedule.UndoTTL)
	defer undo.Close()
	adService := ads.NewService(adRepo, slotRepo, images, adNotifier, hub, undo, logger)
	adHandler := ads.NewHandler(adService, logger)
	slotHandler := slots.NewHandler(slotRepo, logger)

	// Server-wide watcher: one instance reports scheduled->active and
	// active->expired flips to the notification queue.
	var watcher *ads.RefreshLoop
	if notifier != nil {
		onActivated, onExpired := notifier.Transitions()
		watcher = ads.NewRefreshLoop(adService.ListAds, cfg.Schedule.ReloadInterval, cfg.Schedule.TickInterval, ads.RefreshHooks{
			OnActivated: onActivated,
			OnExpired:   onExpired,
		}, logger.Named("watcher"))
		watcher.Start()
		defer watcher.Stop()
	}

	newSessionLoop := func(hooks ads.RefreshHooks) *ads.RefreshLoop {
		return ads.NewRefreshLoop(adService.ListAds, cfg.Schedule.ReloadInterval, cfg.Schedule.TickInterval, hooks, logger.Named("dashboard"))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins, "/slots"))
	router.Use(middleware.Logger(logger))
	router.MaxMultipartMemory = storage.MaxImageSize

	// Health
	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"status": "ok", "dashboard_sessions": hub.Sessions()}
		if err := pool.Ping(hctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(hctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		if n, err := jobQueue.DeadLetters(hctx); err == nil {
			status["dead_letters"] = n
		}
		response.OK(c, status)
	})

	// Public: slot catalog and what each slot shows now
	router.GET("/slots", slotHandler.List)
	router.GET("/slots/:slot/placement", adHandler.Placement)

	// Back office (JWT + admin/editor)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService), middleware.RequireRole(models.RoleAdmin, models.RoleEditor))
	{
		api.GET("/ads", adHandler.List)
		api.POST("/ads", adHandler.Create)
		api.POST("/ads/rotation-check", adHandler.RotationCheck)
		api.POST("/ads/images", adHandler.UploadImage)
		api.GET("/ads/:id", adHandler.Get)
		api.PUT("/ads/:id", adHandler.Update)
		api.DELETE("/ads/:id", adHandler.Delete)
		api.POST("/ads/:id/duplicate", adHandler.Duplicate)
		api.PATCH("/ads/:id/toggle", adHandler.Toggle)

		api.GET("/undo", adHandler.PendingUndo)
		api.POST("/undo", adHandler.Undo)
		api.DELETE("/undo", adHandler.DismissUndo)
	}

	// WebSocket dashboard (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtService.ValidateSocket, newSessionLoop))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.Bool("notifications", notifier != nil))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
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
