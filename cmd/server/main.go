package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zombar/promptscore/internal/config"
	"github.com/zombar/promptscore/internal/metrics"
	"github.com/zombar/promptscore/internal/tracing"
)

const version = "1.0.0"

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		configPath = flag.String("config", os.Getenv("PROMPTSCORE_CONFIG"), "YAML config file (env: PROMPTSCORE_CONFIG)")
		port       = flag.Int("port", 0, "Server port, overrides config and PORT")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err, "config_path", *configPath)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid port flag", "error", err)
			os.Exit(1)
		}
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("promptscore service initializing", "version", version)

	// Initialize tracing
	tp, err := tracing.InitTracer(cfg.ServiceName)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	businessMetrics := metrics.NewBusinessMetrics("promptscore")

	svc, err := newServices(cfg, businessMetrics, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go svc.sweeper.Run(ctx)

	if svc.worker != nil {
		go func() {
			if err := svc.worker.Start(); err != nil {
				logger.Error("worker stopped", "error", err)
			}
		}()
	}

	// Create server with extended timeouts for LLM rewriting
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      svc.handler(cfg.ServiceName),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("promptscore service starting",
			"port", cfg.Port,
			"llm_provider", cfg.LLM.Provider,
			"redis_cache", cfg.Redis.URL != "",
			"job_queue", svc.jobs != nil,
			"worker", svc.worker != nil,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if svc.worker != nil {
		svc.worker.Shutdown()
	}

	logger.Info("server stopped")
}
