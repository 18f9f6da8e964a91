package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/cropper/internal/api"
	"github.com/dunamismax/cropper/internal/config"
	"github.com/dunamismax/cropper/internal/domain"
	"github.com/dunamismax/cropper/internal/logging"
	"github.com/dunamismax/cropper/internal/pipeline"
	"github.com/dunamismax/cropper/internal/ratelimit"
	"github.com/dunamismax/cropper/internal/session"
	"github.com/dunamismax/cropper/internal/telemetry"
	"github.com/dunamismax/cropper/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cropper-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := pipeline.Startup(); err != nil {
		return fmt.Errorf("start image backend: %w", err)
	}
	defer pipeline.Shutdown()

	normalizer, err := pipeline.NewNormalizer(logger.Named("pipeline"))
	if err != nil {
		return fmt.Errorf("create normalizer: %w", err)
	}

	registry := prometheus.NewRegistry()
	sessions := session.NewManager(logger.Named("session"), normalizer, hostNotifier(cfg, logger), session.Config{
		Limits:        cfg.Cropper.Limits(),
		Defaults:      cfg.Normalizer.Options(),
		NotifyTimeout: cfg.Webhook.Timeout * time.Duration(max(1, cfg.Webhook.MaxAttempts)),
		Registerer:    registry,
	})
	defer sessions.Close()

	limiter, closeRedis, err := rateLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	aspect, _ := config.ParseAspectRatio(cfg.Cropper.AspectRatio)
	app := api.NewServer(logger.Named("api"), sessions, api.Config{
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		Widget: api.WidgetConfig{
			AspectRatio:      cfg.Cropper.AspectRatio,
			AspectRatioValue: aspect,
			Width:            cfg.Cropper.Width,
			Height:           cfg.Cropper.Height,
			MinZoom:          cfg.Cropper.MinZoom,
			MaxZoom:          cfg.Cropper.MaxZoom,
		},
		Registry:              registry,
		Tracer:                otel.Tracer("github.com/dunamismax/cropper/internal/api"),
		RateLimiter:           limiter,
		RateLimitUserIDHeader: cfg.RateLimit.UserIDHeader,
	})

	go expireIdle(ctx, sessions, cfg.API.SessionTTL, logger)

	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.API.Addr),
			zap.String("backend", pipeline.Backend()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func hostNotifier(cfg config.Config, logger *zap.Logger) session.Notifier {
	logEvent := session.NotifierFunc(func(_ context.Context, event domain.CropEvent) error {
		logger.Debug("crop event",
			zap.String("session_id", event.SessionID),
			zap.String("event", event.Event),
			zap.Int("estimated_kb", event.EstimatedSizeKB),
		)
		return nil
	})
	if cfg.Webhook.URL == "" {
		return logEvent
	}

	client := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		Timeout:       cfg.Webhook.Timeout,
		MaxAttempts:   cfg.Webhook.MaxAttempts,
		Logger:        logger.Named("webhook"),
	})
	return session.MultiNotifier{
		logEvent,
		webhook.Notifier{Client: client, Endpoint: cfg.Webhook.URL, IncludeData: cfg.Webhook.IncludeData},
	}
}

func rateLimiter(ctx context.Context, cfg config.Config, logger *zap.Logger) (ratelimit.Limiter, func(), error) {
	if !cfg.RateLimit.Enabled {
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable; rate limiter fails open until it recovers", zap.Error(err))
	}

	limiter, err := ratelimit.NewRedisTokenBucket(client, cfg.RateLimit.Capacity, cfg.RateLimit.Window, ratelimit.DefaultKeyPrefix)
	if err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("create rate limiter: %w", err)
	}
	logger.Info("rate limiting enabled",
		zap.Int("capacity", cfg.RateLimit.Capacity),
		zap.Duration("window", cfg.RateLimit.Window),
	)
	return limiter, closeClient, nil
}

func expireIdle(ctx context.Context, sessions *session.Manager, ttl time.Duration, logger *zap.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(max(ttl/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.ExpireIdle(ttl); n > 0 {
				logger.Debug("idle sweep", zap.Int("expired", n))
			}
		}
	}
}
