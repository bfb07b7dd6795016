// Package main is the entrypoint for the callscore API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/callscore/internal/ai"
	"github.com/kiranshivaraju/callscore/internal/ai/factory"
	"github.com/kiranshivaraju/callscore/internal/api"
	"github.com/kiranshivaraju/callscore/internal/api/handler"
	mw "github.com/kiranshivaraju/callscore/internal/api/middleware"
	"github.com/kiranshivaraju/callscore/internal/api/response"
	"github.com/kiranshivaraju/callscore/internal/cache"
	"github.com/kiranshivaraju/callscore/internal/calls"
	"github.com/kiranshivaraju/callscore/internal/config"
	"github.com/kiranshivaraju/callscore/internal/lexicon"
	"github.com/kiranshivaraju/callscore/internal/observe"
	"github.com/kiranshivaraju/callscore/internal/pipeline"
	"github.com/kiranshivaraju/callscore/internal/store"
	"github.com/kiranshivaraju/callscore/internal/transcribe"
)

const shutdownTimeout = 30 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"sentiment_provider", cfg.Classifier.Sentiment,
		"resolution_provider", cfg.Classifier.Resolution,
		"transcribers", cfg.Transcriber.Providers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Load the phrase lexicon
	lex, err := lexicon.Resolve(cfg.Analysis.LexiconPath)
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}
	slog.Info("lexicon loaded", "version", lex.Version(), "languages", lex.Languages())

	// 3. Metrics
	var metrics *observe.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Metrics.ServiceName,
			ServiceVersion: version,
		})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics shutdown", "error", err)
			}
		}()
		metrics, metricsHandler = provider.Metrics, provider.Handler
	}

	// 4. Build the assessment pipeline. Classifiers load lazily on first use.
	assessor, err := pipeline.New(lex, pipelineOptions(cfg, ai.NewRegistry(), metrics)...)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	// 5. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 6. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 7. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 8. Transcription backends
	chain, err := transcribe.New(cfg.Transcriber)
	if err != nil {
		return fmt.Errorf("create transcriber: %w", err)
	}

	// 9. Create store and service
	pgStore := store.NewPostgresStore(pool)

	svcOpts := []calls.Option{calls.WithTTLs(cfg.Redis.AssessmentTTL, cfg.Redis.JobStatusTTL)}
	if chain.Len() > 0 {
		svcOpts = append(svcOpts, calls.WithTranscriber(chain))
		slog.Info("transcription enabled", "chain", chain.Name())
	} else {
		slog.Warn("no transcriber configured, call jobs will be assessed on empty transcripts")
	}
	if metrics != nil {
		svcOpts = append(svcOpts, calls.WithRecorder(metrics))
	}
	svc := calls.NewService(assessor, pgStore, redisCache, svcOpts...)

	// 10. Build router with dependencies
	deps := api.Dependencies{
		RateLimit:      mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		TrustProxy:     cfg.Server.TrustProxy,

		HealthHandler:         healthHandler(pgStore, redisCache),
		AssessHandler:         handler.NewAssessHandler(svc),
		GetAssessmentHandler:  handler.NewGetAssessmentHandler(svc),
		LatestAssessment:      handler.NewLatestAssessmentHandler(svc),
		ListWorkerAssessments: handler.NewListWorkerAssessmentsHandler(svc),
		SubmitCallHandler:     handler.NewSubmitCallHandler(svc),
		GetJobHandler:         handler.NewGetJobHandler(svc),
	}

	router := api.NewRouter(deps)

	// 11. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// pipelineOptions translates configuration into pipeline options. A nil
// metrics disables the observer.
func pipelineOptions(cfg *config.Config, reg *ai.Registry, metrics *observe.Metrics) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithDefaultLanguage(cfg.Analysis.DefaultLanguage),
		pipeline.WithFinalSentiment(cfg.Analysis.UseFinalSentiment),
	}
	sentiment, resolution := factory.Accessors(reg, cfg.Classifier)
	if sentiment != nil {
		opts = append(opts, pipeline.WithSentimentClassifier(sentiment))
	}
	if resolution != nil {
		opts = append(opts, pipeline.WithResolutionClassifier(resolution))
	}
	if metrics != nil {
		opts = append(opts, pipeline.WithObserver(metrics))
	}
	return opts
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"version":  version,
			"services": checks,
		})
	}
}
