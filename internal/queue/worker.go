package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// queuePriorities weights the named queues; higher value = higher priority
var queuePriorities = map[string]int{
	QueueScoring:      6, // deterministic, fast
	QueueOptimization: 4, // may wait on an LLM
}

// Worker wraps the Asynq server for processing tasks
type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	concurrency int
	logger      *slog.Logger
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr   string
	Concurrency int
}

// NewWorker creates a new queue worker running p's handlers
func NewWorker(cfg WorkerConfig, p *Processor) *Worker {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	serverCfg := asynq.Config{
		Concurrency:    cfg.Concurrency,
		Queues:         queuePriorities,
		StrictPriority: false,
		RetryDelayFunc: retryDelay,

		// Graceful shutdown timeout
		ShutdownTimeout: 30 * time.Second,

		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)

			p.logger.Error("task processing error",
				"task_type", task.Type(),
				"error", err,
				"retry_count", retried,
				"max_retries", maxRetry,
			)
		}),
	}

	mux := asynq.NewServeMux()
	p.Register(mux)

	return &Worker{
		server:      asynq.NewServer(redisOpt, serverCfg),
		mux:         mux,
		concurrency: cfg.Concurrency,
		logger:      p.logger,
	}
}

// Start starts the worker to begin processing tasks
func (w *Worker) Start() error {
	w.logger.Info("starting asynq worker",
		"concurrency", w.concurrency,
		"queues", queuePriorities,
	)

	// Run is blocking - starts processing tasks
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the worker
func (w *Worker) Shutdown() {
	w.logger.Info("shutting down asynq worker")
	w.server.Shutdown()
}

// 10s, 30s, 1m, 2m, 5m
var optimizeRetryDelays = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
}

// retryDelay backs off between attempts of an optimization task waiting on
// an LLM. Score tasks are enqueued without retries.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < len(optimizeRetryDelays) {
		return optimizeRetryDelays[n]
	}
	return optimizeRetryDelays[len(optimizeRetryDelays)-1]
}
