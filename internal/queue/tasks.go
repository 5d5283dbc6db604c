package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/promptscore/internal/analyzer"
	"github.com/zombar/promptscore/internal/cache"
	"github.com/zombar/promptscore/internal/metrics"
	"github.com/zombar/promptscore/internal/models"
	"github.com/zombar/promptscore/internal/optimizer"
	"github.com/zombar/promptscore/internal/tracing"
)

// Processor runs scoring and optimization tasks and records job state
type Processor struct {
	analyzer  *analyzer.Analyzer
	optimizer *optimizer.Service
	jobs      cache.Store[models.ScoreJob]
	metrics   *metrics.BusinessMetrics
	logger    *slog.Logger
	now       func() time.Time
	attempt   func(ctx context.Context) (retried, maxRetry int)
}

// NewProcessor creates a task processor
func NewProcessor(opt *optimizer.Service, jobs cache.Store[models.ScoreJob], m *metrics.BusinessMetrics, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		analyzer:  opt.Analyzer(),
		optimizer: opt,
		jobs:      jobs,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		attempt:   taskAttempt,
	}
}

// taskAttempt reads the retry state asynq attaches to the handler context.
// Outside a worker both are zero, which counts as the final attempt.
func taskAttempt(ctx context.Context) (int, int) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return retried, maxRetry
}

// Register adds the processor's handlers to mux
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeScorePrompt, p.handleScorePrompt)
	mux.HandleFunc(TypeOptimizePrompt, p.handleOptimizePrompt)
}

// handleScorePrompt scores an optimized prompt against its original
func (p *Processor) handleScorePrompt(ctx context.Context, t *asynq.Task) error {
	var payload ScorePromptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		p.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %w: %w", err, asynq.SkipRetry)
	}

	ctx, span := p.startTaskSpan(ctx, TypeScorePrompt, payload.JobID, payload.TraceID, payload.SpanID, payload.EnqueuedAt,
		attribute.String("media_type", string(payload.MediaType)),
	)
	defer span.End()

	start := p.now()
	p.updateJob(ctx, payload.JobID, KindScore, func(job *models.ScoreJob) {
		job.Status = models.JobProcessing
	})

	score, err := p.analyzer.Score(payload.Original, payload.Optimized, payload.MediaType, payload.Answers, payload.AdditionalDetails)
	if err != nil {
		return p.fail(ctx, TypeScorePrompt, payload.JobID, KindScore, start, err)
	}

	p.updateJob(ctx, payload.JobID, KindScore, func(job *models.ScoreJob) {
		job.Status = models.JobCompleted
		job.Score = &score
		job.Error = ""
	})
	p.metrics.ObserveScore(ctx, "score", payload.MediaType, score)
	p.metrics.RecordTask(ctx, TypeScorePrompt, "success", p.now().Sub(start))

	p.logger.Info("score task completed",
		"job_id", payload.JobID,
		"overall", score.Overall,
		"intent_preservation", score.IntentPreservation,
	)
	return nil
}

// handleOptimizePrompt runs a quick or build optimization
func (p *Processor) handleOptimizePrompt(ctx context.Context, t *asynq.Task) error {
	var payload OptimizePromptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		p.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %w: %w", err, asynq.SkipRetry)
	}

	retryCount, maxRetry := p.attempt(ctx)
	ctx, span := p.startTaskSpan(ctx, TypeOptimizePrompt, payload.JobID, payload.TraceID, payload.SpanID, payload.EnqueuedAt,
		attribute.String("mode", payload.Mode),
		attribute.Int("retry_count", retryCount),
		attribute.Int("max_retry", maxRetry),
	)
	defer span.End()

	// LLM failures are retried; the last attempt answers from the rules
	if retryCount < maxRetry {
		ctx = optimizer.WithoutFallback(ctx)
	}

	start := p.now()
	p.updateJob(ctx, payload.JobID, KindOptimize, func(job *models.ScoreJob) {
		job.Status = models.JobProcessing
	})

	var (
		opt *models.Optimization
		err error
	)
	switch payload.Mode {
	case optimizer.ModeQuick, "":
		opt, err = p.optimizer.QuickOptimize(ctx, payload.Request.Request)
	case optimizer.ModeBuild:
		opt, err = p.optimizer.Build(ctx, payload.Request)
	default:
		err = analyzer.InvalidArgument("unknown optimization mode %q", payload.Mode)
	}
	if err != nil {
		return p.fail(ctx, TypeOptimizePrompt, payload.JobID, KindOptimize, start, err)
	}

	p.updateJob(ctx, payload.JobID, KindOptimize, func(job *models.ScoreJob) {
		job.Status = models.JobCompleted
		job.Optimization = opt
		job.Score = &opt.Quality
		job.Error = ""
	})
	p.metrics.RecordTask(ctx, TypeOptimizePrompt, "success", p.now().Sub(start))

	p.logger.Info("optimize task completed",
		"job_id", payload.JobID,
		"mode", payload.Mode,
		"source", opt.Source,
		"before", opt.Summary.Before,
		"after", opt.Summary.After,
		"retry_count", retryCount,
	)
	return nil
}

// fail records a failed job. Retriable errors are returned for asynq to
// retry while attempts remain; everything else is final.
func (p *Processor) fail(ctx context.Context, taskType, jobID, kind string, start time.Time, err error) error {
	tracing.RecordError(ctx, err)
	p.metrics.RecordTask(ctx, taskType, "error", p.now().Sub(start))

	retried, maxRetry := p.attempt(ctx)
	if isRetriable(err) && retried < maxRetry {
		p.logger.Warn("retriable task error, will retry",
			"task_type", taskType,
			"job_id", jobID,
			"retry_count", retried,
			"max_retries", maxRetry,
			"error", err,
		)
		p.updateJob(ctx, jobID, kind, func(job *models.ScoreJob) {
			job.Status = models.JobQueued
			job.Error = err.Error()
		})
		return err
	}

	p.logger.Error("permanent task error",
		"task_type", taskType,
		"job_id", jobID,
		"retry_count", retried,
		"max_retries", maxRetry,
		"error", err,
	)
	p.updateJob(ctx, jobID, kind, func(job *models.ScoreJob) {
		job.Status = models.JobFailed
		job.Error = err.Error()
	})
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// updateJob applies fn to the stored job, creating it if it expired
func (p *Processor) updateJob(ctx context.Context, jobID, kind string, fn func(*models.ScoreJob)) {
	if jobID == "" {
		return
	}
	now := p.now()
	job, ok := p.jobs.Get(ctx, jobID)
	if !ok {
		job = models.ScoreJob{ID: jobID, Kind: kind, CreatedAt: now}
	}
	fn(&job)
	job.UpdatedAt = now
	p.jobs.Set(ctx, jobID, job)
}

// startTaskSpan starts a consumer span, parented on the enqueuing span when
// the payload carries its IDs
func (p *Processor) startTaskSpan(ctx context.Context, taskType, jobID, traceID, spanID string, enqueuedAt int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var queueWait time.Duration
	if enqueuedAt > 0 {
		queueWait = p.now().Sub(time.Unix(0, enqueuedAt))
	}

	ctx, linked := tracing.ContextWithRemoteParent(ctx, traceID, spanID)

	attrs = append(attrs,
		attribute.String("task.type", taskType),
		attribute.String("job.id", jobID),
		attribute.Float64("queue.wait_time_seconds", queueWait.Seconds()),
		attribute.Int64("enqueued_at", enqueuedAt),
		attribute.Bool("trace.linked", linked),
	)

	ctx, span := otel.Tracer(tracing.TracerName).Start(ctx, "asynq.task.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
	span.AddEvent("task_processing_started", trace.WithAttributes(
		attribute.Float64("wait_time_seconds", queueWait.Seconds()),
	))

	p.logger.Info("processing task",
		"task_type", taskType,
		"job_id", jobID,
		"queue_wait_seconds", queueWait.Seconds(),
	)
	return ctx, span
}

// isRetriable determines if an error is transient (connection/timeout)
// rather than caused by the task input
func isRetriable(err error) bool {
	if err == nil || errors.Is(err, analyzer.ErrInvalidArgument) {
		return false
	}
	if errors.Is(err, optimizer.ErrLLMUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	retriablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"too many requests",
		"context deadline exceeded",
		"i/o timeout",
		"no such host",
		"network is unreachable",
	}

	for _, pattern := range retriablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
