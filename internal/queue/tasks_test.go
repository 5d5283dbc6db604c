package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/promptscore/internal/analyzer"
	"github.com/zombar/promptscore/internal/cache"
	"github.com/zombar/promptscore/internal/metrics"
	"github.com/zombar/promptscore/internal/models"
	"github.com/zombar/promptscore/internal/optimizer"
)

func newTestProcessor(t *testing.T) (*Processor, cache.Store[models.ScoreJob], *metrics.BusinessMetrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewBusinessMetricsWith("test", prometheus.NewRegistry())
	jobs := cache.NewMemory[models.ScoreJob]("jobs", cache.DefaultJobTTL)
	svc := optimizer.New(analyzer.New(), optimizer.Config{Metrics: m, Logger: logger})
	return NewProcessor(svc, jobs, m, logger), jobs, m
}

func newTask(t *testing.T, taskType string, payload any) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(taskType, data)
}

func TestHandleScorePrompt(t *testing.T) {
	p, jobs, m := newTestProcessor(t)
	ctx := context.Background()

	task := newTask(t, TypeScorePrompt, ScorePromptPayload{
		JobID:     "job-score",
		Original:  "cat",
		Optimized: "Create a high-quality, photorealistic image of a beautiful cat, centered in the frame",
		MediaType: models.MediaImage,
	})
	require.NoError(t, p.handleScorePrompt(ctx, task))

	job, ok := jobs.Get(ctx, "job-score")
	require.True(t, ok)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, KindScore, job.Kind)
	require.NotNil(t, job.Score)
	assert.Equal(t, 75, job.Score.Overall)
	assert.Equal(t, 60, job.Score.IntentPreservation)
	assert.Empty(t, job.Error)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues(TypeScorePrompt, "success")))
}

func TestHandleScorePromptInvalidMediaType(t *testing.T) {
	p, jobs, m := newTestProcessor(t)
	ctx := context.Background()

	task := newTask(t, TypeScorePrompt, ScorePromptPayload{
		JobID:     "job-bad",
		Original:  "cat",
		Optimized: "a cat",
		MediaType: "hologram",
	})
	err := p.handleScorePrompt(ctx, task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.True(t, errors.Is(err, analyzer.ErrInvalidArgument))

	job, ok := jobs.Get(ctx, "job-bad")
	require.True(t, ok)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.NotEmpty(t, job.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues(TypeScorePrompt, "error")))
}

func TestHandleInvalidPayload(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	err := p.handleScorePrompt(context.Background(), asynq.NewTask(TypeScorePrompt, []byte("not json")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = p.handleOptimizePrompt(context.Background(), asynq.NewTask(TypeOptimizePrompt, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleOptimizeQuick(t *testing.T) {
	p, jobs, _ := newTestProcessor(t)
	ctx := context.Background()

	task := newTask(t, TypeOptimizePrompt, OptimizePromptPayload{
		JobID: "job-quick",
		Mode:  optimizer.ModeQuick,
		Request: optimizer.BuildRequest{
			Request: optimizer.Request{Prompt: "create image of cat", TargetModel: "DALL-E 3", MediaType: models.MediaImage},
		},
	})
	require.NoError(t, p.handleOptimizePrompt(ctx, task))

	job, ok := jobs.Get(ctx, "job-quick")
	require.True(t, ok)
	assert.Equal(t, models.JobCompleted, job.Status)
	require.NotNil(t, job.Optimization)
	assert.Equal(t, "Create an image of a cat.", job.Optimization.OptimizedPrompt)
	assert.True(t, job.Optimization.Summary.IntentPreserved)
	require.NotNil(t, job.Score)
	assert.Equal(t, job.Optimization.Quality.Overall, job.Score.Overall)
}

func TestHandleOptimizeBuild(t *testing.T) {
	p, jobs, _ := newTestProcessor(t)
	ctx := context.Background()

	task := newTask(t, TypeOptimizePrompt, OptimizePromptPayload{
		JobID: "job-build",
		Mode:  optimizer.ModeBuild,
		Request: optimizer.BuildRequest{
			Request: optimizer.Request{Prompt: "create image of cat", TargetModel: "DALL-E 3", MediaType: models.MediaImage},
			Answers: models.UserAnswers{"style": {Type: models.AnswerOption, Value: "watercolor"}},
		},
	})
	require.NoError(t, p.handleOptimizePrompt(ctx, task))

	job, ok := jobs.Get(ctx, "job-build")
	require.True(t, ok)
	require.NotNil(t, job.Optimization)
	assert.Equal(t, optimizer.ModeBuild, job.Optimization.Mode)
	assert.Contains(t, job.Optimization.OptimizedPrompt, "watercolor")
}

func TestHandleOptimizeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		payload OptimizePromptPayload
	}{
		{
			name: "unknown mode",
			payload: OptimizePromptPayload{JobID: "job-mode", Mode: "turbo", Request: optimizer.BuildRequest{
				Request: optimizer.Request{Prompt: "create image of cat", TargetModel: "x", MediaType: models.MediaImage},
			}},
		},
		{
			name: "prompt too short",
			payload: OptimizePromptPayload{JobID: "job-short", Mode: optimizer.ModeQuick, Request: optimizer.BuildRequest{
				Request: optimizer.Request{Prompt: "cat", TargetModel: "x", MediaType: models.MediaImage},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, jobs, _ := newTestProcessor(t)
			ctx := context.Background()

			err := p.handleOptimizePrompt(ctx, newTask(t, TypeOptimizePrompt, tt.payload))
			assert.True(t, errors.Is(err, asynq.SkipRetry))

			job, ok := jobs.Get(ctx, tt.payload.JobID)
			require.True(t, ok)
			assert.Equal(t, models.JobFailed, job.Status)
		})
	}
}

// downRewriter fails every call like an unreachable LLM
type downRewriter struct{ calls int }

func (d *downRewriter) Name() string { return "down" }

func (d *downRewriter) RewritePrompt(context.Context, string, models.MediaType, string) (string, error) {
	d.calls++
	return "", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
}

func (d *downRewriter) GenerateQuestions(context.Context, string, models.MediaType, string, []string) ([]models.Question, error) {
	d.calls++
	return nil, errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
}

func (d *downRewriter) BuildPrompt(context.Context, string, models.MediaType, string, models.UserAnswers, string) (string, error) {
	d.calls++
	return "", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
}

func newLLMProcessor(t *testing.T, rw optimizer.Rewriter, retried, maxRetry int) (*Processor, cache.Store[models.ScoreJob], *metrics.BusinessMetrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewBusinessMetricsWith("test", prometheus.NewRegistry())
	jobs := cache.NewMemory[models.ScoreJob]("jobs", cache.DefaultJobTTL)
	svc := optimizer.New(analyzer.New(), optimizer.Config{LLM: rw, Metrics: m, Logger: logger})

	p := NewProcessor(svc, jobs, m, logger)
	p.attempt = func(context.Context) (int, int) { return retried, maxRetry }
	return p, jobs, m
}

func quickTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	return newTask(t, TypeOptimizePrompt, OptimizePromptPayload{
		JobID: jobID,
		Mode:  optimizer.ModeQuick,
		Request: optimizer.BuildRequest{
			Request: optimizer.Request{Prompt: "create image of cat", TargetModel: "DALL-E 3", MediaType: models.MediaImage},
		},
	})
}

func TestHandleOptimizeRetriesWhenLLMDown(t *testing.T) {
	rw := &downRewriter{}
	p, jobs, m := newLLMProcessor(t, rw, 1, 5)
	ctx := context.Background()

	err := p.handleOptimizePrompt(ctx, quickTask(t, "job-down"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "asynq should retry")
	assert.True(t, errors.Is(err, optimizer.ErrLLMUnavailable))
	assert.Equal(t, 1, rw.calls)

	job, ok := jobs.Get(ctx, "job-down")
	require.True(t, ok)
	assert.Equal(t, models.JobQueued, job.Status)
	assert.Contains(t, job.Error, "connection refused")
	assert.Nil(t, job.Optimization)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LLMFallbacksTotal.WithLabelValues("down", "rewrite")))
}

func TestHandleOptimizeFallsBackOnLastAttempt(t *testing.T) {
	rw := &downRewriter{}
	p, jobs, m := newLLMProcessor(t, rw, 5, 5)
	ctx := context.Background()

	require.NoError(t, p.handleOptimizePrompt(ctx, quickTask(t, "job-last")))

	job, ok := jobs.Get(ctx, "job-last")
	require.True(t, ok)
	assert.Equal(t, models.JobCompleted, job.Status)
	require.NotNil(t, job.Optimization)
	assert.Equal(t, optimizer.SourceRules, job.Optimization.Source)
	assert.Equal(t, "Create an image of a cat.", job.Optimization.OptimizedPrompt)
	assert.Empty(t, job.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMFallbacksTotal.WithLabelValues("down", "rewrite")))
}

func TestFailKeepsRetriableJobsQueued(t *testing.T) {
	p, jobs, _ := newTestProcessor(t)
	p.attempt = func(context.Context) (int, int) { return 2, 5 }
	ctx := context.Background()

	err := p.fail(ctx, TypeOptimizePrompt, "job-retry", KindOptimize, p.now(), errors.New("ollama: connection refused"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	job, ok := jobs.Get(ctx, "job-retry")
	require.True(t, ok)
	assert.Equal(t, models.JobQueued, job.Status)
	assert.Contains(t, job.Error, "connection refused")
}

func TestFailMarksRetriableJobFailedOnLastAttempt(t *testing.T) {
	tests := []struct {
		name     string
		retried  int
		maxRetry int
	}{
		{"retries exhausted", 5, 5},
		{"no retries configured", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, jobs, _ := newTestProcessor(t)
			p.attempt = func(context.Context) (int, int) { return tt.retried, tt.maxRetry }
			ctx := context.Background()

			err := p.fail(ctx, TypeOptimizePrompt, "job-final", KindOptimize, p.now(), errors.New("ollama: connection refused"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, asynq.SkipRetry))

			job, ok := jobs.Get(ctx, "job-final")
			require.True(t, ok)
			assert.Equal(t, models.JobFailed, job.Status)
			assert.Contains(t, job.Error, "connection refused")
		})
	}
}
