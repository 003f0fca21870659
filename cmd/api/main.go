package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"taskhub/api/internal/app"
	"taskhub/api/internal/config"
	"taskhub/api/internal/export"
	"taskhub/api/internal/logging"
	"taskhub/api/internal/metrics"
	"taskhub/api/internal/ratelimit"
	"taskhub/api/internal/search"
	"taskhub/api/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(db, cfg.MigrationsDir, log); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)
	appMetrics := metrics.New()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, log)

	service := app.New(cfg, dataStore, app.Options{
		Search:   searchService,
		Exporter: export.NewService(newExportUploader(ctx, cfg, log)),
		Metrics:  appMetrics,
		Logger:   log,
	})
	if err := service.Bootstrap(ctx); err != nil {
		log.WithError(err).Warn("bootstrap failed, default categories not seeded")
	}
	go searchService.ReindexAllFromPG(ctx)

	limiter, closeLimiter := newLimiter(cfg, log)
	defer closeLimiter()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, app.ServerOptions{
		Logger:             log,
		Metrics:            appMetrics,
		Limiter:            limiter,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("taskhub API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

// newLimiter prefers Redis so limits hold across replicas, and falls back to
// an in-process limiter when Redis is not configured or unreachable.
func newLimiter(cfg config.Config, log logrus.FieldLogger) (ratelimit.Limiter, func()) {
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitPerMinute)
		if err == nil {
			log.Info("using redis rate limiter")
			return redisLimiter, func() { _ = redisLimiter.Close() }
		}
		log.WithError(err).Warn("redis unavailable, using in-process rate limiter")
	}
	return ratelimit.NewLocalLimiter(cfg.RateLimitPerMinute), func() {}
}

// newExportUploader returns nil when object storage is not configured, which
// disables publishing exports.
func newExportUploader(ctx context.Context, cfg config.Config, log logrus.FieldLogger) export.Uploader {
	if strings.TrimSpace(cfg.MinIOEndpoint) == "" {
		return nil
	}
	minioStore, err := export.NewMinIOStore(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL, cfg.ExportURLTTL)
	if err != nil {
		log.WithError(err).Warn("minio client failed, export publishing disabled")
		return nil
	}
	bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := minioStore.EnsureBucket(bucketCtx); err != nil {
		log.WithError(err).Warn("export bucket unavailable, export publishing disabled")
		return nil
	}
	return minioStore
}
