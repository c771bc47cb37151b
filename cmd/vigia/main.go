package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vigia-lab/vigia/cmd/vigia/internal/handlers"
	"github.com/vigia-lab/vigia/cmd/vigia/internal/middleware"
	"github.com/vigia-lab/vigia/internal/assistant"
	"github.com/vigia-lab/vigia/internal/config"
	"github.com/vigia-lab/vigia/internal/db"
	"github.com/vigia-lab/vigia/internal/evaluation"
	"github.com/vigia-lab/vigia/internal/health"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("Service failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.NewClient(&cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	store := db.NewSolicitudStore(dbClient.DB(), logger)
	if err := store.EnsureSchema(rootCtx); err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(rootCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Info("Connected to Redis", zap.String("addr", redisOpts.Addr))

	pollerCfg := assistant.PollerConfig{
		Interval:       time.Duration(cfg.Evaluation.PollIntervalSeconds) * time.Second,
		Timeout:        time.Duration(cfg.Evaluation.PollTimeoutSeconds) * time.Second,
		MaxRunRestarts: cfg.Evaluation.MaxRunRestarts,
	}

	newEvaluator := func(assistantID string) *assistant.Evaluator {
		client := assistant.NewClient(assistant.Config{
			APIKey:        cfg.OpenAI.APIKey,
			AssistantID:   assistantID,
			BaseURL:       cfg.OpenAI.BaseURL,
			Timeout:       cfg.OpenAI.Timeout,
			AnalysisModel: cfg.OpenAI.AnalysisModel,
		}, logger)
		return assistant.NewEvaluator(client, pollerCfg, logger)
	}

	ambiental := newEvaluator(cfg.OpenAI.AssistantAmbiental)
	social := newEvaluator(cfg.OpenAI.AssistantSocial)
	economica := newEvaluator(cfg.OpenAI.AssistantEconomica)

	// The ambiental client doubles as file uploader, cleaner and analyzer;
	// files and chat completions are account-wide, not per-assistant.
	var analyzer evaluation.Analyzer
	if cfg.OpenAI.AnalysisEnabled {
		analyzer = ambiental.Client
	}
	lock := evaluation.NewFinalizeLock(redisClient)
	gate := evaluation.NewConvergenceGate(store, ambiental.Client, lock, analyzer, logger)
	orch := evaluation.NewOrchestrator(store, gate, logger)
	dispatcher := evaluation.NewDispatcher(rootCtx, logger)

	service, err := evaluation.NewService(orch, map[evaluation.Track]evaluation.Assistant{
		evaluation.TrackAmbiental: ambiental,
		evaluation.TrackSocial:    social,
		evaluation.TrackEconomica: economica,
	}, dispatcher, logger)
	if err != nil {
		return err
	}

	handler := handlers.NewSolicitudHandler(store, ambiental.Client, service, logger)
	filesHandler := handlers.NewFilesHandler(ambiental.Client, logger)

	tracing := middleware.NewTracingMiddleware(logger)
	idempotency := middleware.NewIdempotencyMiddleware(redisClient, logger)

	mux := http.NewServeMux()
	mux.Handle("POST /vigia/solicitud", idempotency.Middleware(http.HandlerFunc(handler.CreateSolicitud)))
	mux.HandleFunc("GET /vigia/solicitud/{id}", handler.GetSolicitud)
	mux.HandleFunc("GET /vigia/solicitudes", handler.ListSolicitudes)
	mux.HandleFunc("PUT /vigia/solicitud/{id}", handler.UpdateSolicitud)
	mux.HandleFunc("DELETE /vigia/solicitud/{id}", handler.DeleteSolicitud)
	mux.HandleFunc("DELETE /vigia/files", filesHandler.SweepFiles)

	healthManager := health.NewManager(15*time.Second, logger)
	healthManager.RegisterChecker(health.NewPostgresChecker(dbClient.DB()))
	healthManager.RegisterChecker(health.NewRedisChecker(redisClient))
	healthManager.Start(rootCtx)
	mux.HandleFunc("GET /health", healthManager.HealthHandler())
	mux.HandleFunc("GET /readiness", healthManager.ReadinessHandler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: tracing.Middleware(mux),
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("Metrics server listening", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	metricsServer.Shutdown(shutdownCtx)

	// Let in-flight evaluations finish before dropping the process.
	waitCtx, cancelWait := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelWait()
	if err := dispatcher.Wait(waitCtx); err != nil {
		logger.Warn("Background evaluations still running at shutdown", zap.Error(err))
	}
	return nil
}
