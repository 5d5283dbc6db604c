package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/promptscore/internal/cache"
	"github.com/zombar/promptscore/internal/models"
	"github.com/zombar/promptscore/internal/optimizer"
)

// Task type constants
const (
	TypeScorePrompt    = "promptscore:score_prompt"
	TypeOptimizePrompt = "promptscore:optimize_prompt"
)

// Queue names
const (
	QueueScoring      = "scoring"
	QueueOptimization = "optimization"
)

// Job kinds recorded on models.ScoreJob
const (
	KindScore    = "score"
	KindOptimize = "optimize"
)

// ScorePromptPayload represents the payload for scoring an optimized prompt
type ScorePromptPayload struct {
	JobID             string             `json:"job_id"`
	Original          string             `json:"original"`
	Optimized         string             `json:"optimized"`
	MediaType         models.MediaType   `json:"media_type"`
	Answers           models.UserAnswers `json:"answers,omitempty"`
	AdditionalDetails string             `json:"additional_details,omitempty"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// OptimizePromptPayload represents the payload for a quick or build optimization
type OptimizePromptPayload struct {
	JobID   string                 `json:"job_id"`
	Mode    string                 `json:"mode"` // quick, build
	Request optimizer.BuildRequest `json:"request"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// enqueuer is the part of *asynq.Client the Client uses
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client enqueues scoring tasks and records their jobs as queued
type Client struct {
	client enqueuer
	jobs   cache.Store[models.ScoreJob]
	now    func() time.Time
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client writing job state to jobs
func NewClient(cfg ClientConfig, jobs cache.Store[models.ScoreJob]) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
		jobs:   jobs,
		now:    time.Now,
	}
}

// EnqueueScore enqueues a scoring task and returns the queued job
func (c *Client) EnqueueScore(ctx context.Context, payload ScorePromptPayload) (models.ScoreJob, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	payload.EnqueuedAt = c.now().UnixNano()
	payload.TraceID, payload.SpanID = traceIDs(ctx, TypeScorePrompt, payload.JobID, payload.EnqueuedAt)

	opts := []asynq.Option{
		asynq.MaxRetry(0), // scoring is deterministic
		asynq.Timeout(time.Minute),
		asynq.Queue(QueueScoring),
		asynq.Retention(24 * time.Hour),
	}
	return c.enqueue(ctx, TypeScorePrompt, KindScore, payload.JobID, payload, opts)
}

// EnqueueOptimize enqueues an optimization task and returns the queued job
func (c *Client) EnqueueOptimize(ctx context.Context, payload OptimizePromptPayload) (models.ScoreJob, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if payload.Mode == "" {
		payload.Mode = optimizer.ModeQuick
	}
	payload.EnqueuedAt = c.now().UnixNano()
	payload.TraceID, payload.SpanID = traceIDs(ctx, TypeOptimizePrompt, payload.JobID, payload.EnqueuedAt)

	opts := []asynq.Option{
		asynq.MaxRetry(len(optimizeRetryDelays)), // LLM calls may fail transiently
		asynq.Timeout(5 * time.Minute),           // LLM rewrites can be slow
		asynq.Queue(QueueOptimization),
		asynq.Retention(24 * time.Hour),
	}
	return c.enqueue(ctx, TypeOptimizePrompt, KindOptimize, payload.JobID, payload, opts)
}

func (c *Client) enqueue(ctx context.Context, taskType, kind, jobID string, payload any, opts []asynq.Option) (models.ScoreJob, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return models.ScoreJob{}, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	now := c.now()
	job := models.ScoreJob{
		ID:        jobID,
		Kind:      kind,
		Status:    models.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.jobs.Set(ctx, jobID, job)

	task := asynq.NewTask(taskType, payloadBytes, asynq.TaskID(jobID))
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		c.jobs.Delete(ctx, jobID)
		return models.ScoreJob{}, fmt.Errorf("failed to enqueue %s task: %w", kind, err)
	}

	return job, nil
}

// Job returns the current state of a job
func (c *Client) Job(ctx context.Context, id string) (models.ScoreJob, bool) {
	return c.jobs.Get(ctx, id)
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}

// traceIDs captures the span in ctx for the worker and records an enqueue event
func traceIDs(ctx context.Context, taskType, jobID string, enqueuedAt int64) (string, string) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return "", ""
	}

	span.AddEvent("task_enqueued", trace.WithAttributes(
		attribute.String("task.type", taskType),
		attribute.String("task.id", jobID),
		attribute.Int64("enqueued_at", enqueuedAt),
	))

	sc := span.SpanContext()
	return sc.TraceID().String(), sc.SpanID().String()
}
