package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"scorecard/api/internal/app"
	"scorecard/api/internal/assist"
	"scorecard/api/internal/blob"
	"scorecard/api/internal/cache"
	"scorecard/api/internal/config"
	"scorecard/api/internal/export"
	"scorecard/api/internal/logging"
	"scorecard/api/internal/metrics"
	"scorecard/api/internal/search"
	"scorecard/api/internal/store"
	"scorecard/api/internal/workbook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, warning := range cfg.InsecureDefaults() {
		logger.Warn("insecure credential default, set SCORECARD_REQUIRE_CREDENTIALS=true to refuse it", zap.String("setting", warning))
	}

	pool := store.DefaultPoolOptions()
	pool.MaxOpenConns = cfg.DBMaxConns
	db, err := store.Open(ctx, cfg.DatabaseURL, pool)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if _, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	dataStore := store.NewPostgresStore(db)

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
		index = meili
	}
	searchService := search.NewService(index, search.NewPostgres(dataStore), dataStore, logger)
	go func() {
		count, err := searchService.ReindexAll(ctx)
		if err != nil {
			logger.Warn("initial reindex failed", zap.Error(err))
			return
		}
		logger.Info("search index primed", zap.Int("nodes", count))
	}()

	var responses assist.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, "scorecard:assist:", cfg.AssistCacheTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisCache.Close()
		responses = redisCache
		logger.Info("assistant responses cached in redis")
	}

	content, err := contentStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	deps := app.Dependencies{
		Search:   searchService,
		Exporter: export.NewService(dataStore, logger),
		Docs:     content,
		Logger:   logger,
	}
	if cfg.AssistEnabled() {
		deps.Assist = assist.NewService(assist.Options{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIModel,
			MaxTokens: cfg.OpenAIMaxTokens,
			Timeout:   60 * time.Second,
		}, content, responses, logger)
	}
	if strings.TrimSpace(cfg.WorkbookDir) != "" {
		deps.Workbook = workbook.NewEditor(cfg.WorkbookDir)
		logger.Info("workbook file mode enabled", zap.String("dir", cfg.WorkbookDir))
	}

	service := app.NewService(cfg, dataStore, deps)
	httpServer := app.NewHTTPServer(service, app.HTTPOptions{
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
		Metrics:     metrics.NewHTTP(),
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("scorecard api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	logger.Info("scorecard api stopped")
	return nil
}

// contentStore serves docs and prompts from MinIO when an endpoint is
// configured and from the content directory otherwise.
func contentStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (blob.Store, error) {
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		return blob.NewDir(cfg.ContentDir), nil
	}
	objects, err := blob.NewMinio(blob.MinioOptions{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("content bucket: %w", err)
	}
	logger.Info("content served from minio", zap.String("bucket", cfg.MinioBucket))
	return objects, nil
}
