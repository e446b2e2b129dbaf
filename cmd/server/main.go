package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/backend"
	"github.com/stemsi/problem-bridge/internal/bridge"
	"github.com/stemsi/problem-bridge/internal/config"
	"github.com/stemsi/problem-bridge/internal/database"
	"github.com/stemsi/problem-bridge/internal/handler"
	"github.com/stemsi/problem-bridge/internal/logger"
	"github.com/stemsi/problem-bridge/internal/repository"
	"github.com/stemsi/problem-bridge/internal/router"
	"github.com/stemsi/problem-bridge/internal/service"
	"github.com/stemsi/problem-bridge/internal/validator"
	"github.com/stemsi/problem-bridge/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("backend", cfg.BackendURL).
		Dur("save_debounce", cfg.SaveDebounce).
		Dur("submit_debounce", cfg.SubmitDebounce).
		Msg("Starting Problem Bridge")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	activityRepo := repository.NewActivityRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	activityRecorder := service.NewActivityRecorder(rdb)
	activityService := service.NewActivityService(activityRepo)
	gradeNotifier := service.NewGradeNotifier(rdb)
	sessionService := service.NewSessionService(rdb, cfg)

	backendClient := backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
	})
	backends := func(token string) bridge.Backend {
		return backendClient.WithToken(token)
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Bridge:  handler.NewBridgeHandler(cfg, backends, sessionService, gradeNotifier, activityRecorder, log),
		Problem: handler.NewProblemHandler(activityService, gradeNotifier, log),
		System: handler.NewSystemHandler(rdb, map[string]database.Pinger{
			"postgres": database.PostgresPinger(pool),
			"redis":    database.RedisPinger(rdb),
		}, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	activityWorker := worker.NewActivityWorker(activityRepo, rdb, cfg.ActivityBatchSize, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		activityWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked bridge
	// sockets are not tracked by Shutdown and close with the process.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the activity worker and wait for its buffer to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
