package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/promptscore/internal/analyzer"
	"github.com/zombar/promptscore/internal/cache"
	"github.com/zombar/promptscore/internal/metrics"
	"github.com/zombar/promptscore/internal/models"
	"github.com/zombar/promptscore/internal/optimizer"
	"github.com/zombar/promptscore/internal/queue"
	"github.com/zombar/promptscore/internal/tracing"
	"github.com/zombar/promptscore/pkg/logging"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// JobQueue enqueues background jobs and reports their state
type JobQueue interface {
	EnqueueScore(ctx context.Context, payload queue.ScorePromptPayload) (models.ScoreJob, error)
	EnqueueOptimize(ctx context.Context, payload queue.OptimizePromptPayload) (models.ScoreJob, error)
	Job(ctx context.Context, id string) (models.ScoreJob, bool)
}

// StatsSource reports cache statistics
type StatsSource interface {
	Stats(ctx context.Context) cache.Stats
}

// Config holds the handler's collaborators. Jobs may be nil when no queue
// backend is configured.
type Config struct {
	Optimizer *optimizer.Service
	Jobs      JobQueue
	Caches    []StatsSource
	Metrics   *metrics.BusinessMetrics
	Logger    *slog.Logger
}

// Handler handles HTTP requests
type Handler struct {
	analyzer  *analyzer.Analyzer
	optimizer *optimizer.Service
	jobs      JobQueue
	caches    []StatsSource
	metrics   *metrics.BusinessMetrics
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewHandler creates a new API handler with CORS support
func NewHandler(cfg Config) http.Handler {
	h := newHandler(cfg)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(h.mux)
}

func newHandler(cfg Config) *Handler {
	if cfg.Optimizer == nil {
		cfg.Optimizer = optimizer.New(analyzer.New(), optimizer.Config{Metrics: cfg.Metrics, Logger: cfg.Logger})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &Handler{
		analyzer:  cfg.Optimizer.Analyzer(),
		optimizer: cfg.Optimizer,
		jobs:      cfg.Jobs,
		caches:    cfg.Caches,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		mux:       http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("/metrics", promhttp.Handler())
	h.mux.HandleFunc("/api/analyze", h.handleAnalyze)
	h.mux.HandleFunc("/api/intent", h.handleIntent)
	h.mux.HandleFunc("/api/score", h.handleScore)
	h.mux.HandleFunc("/api/optimize/quick", h.handleQuickOptimize)
	h.mux.HandleFunc("/api/optimize/questions", h.handleQuestions)
	h.mux.HandleFunc("/api/optimize/build", h.handleBuild)
	h.mux.HandleFunc("/api/jobs", h.handleCreateJob)
	h.mux.HandleFunc("/api/jobs/", h.handleJobStatus)
	h.mux.HandleFunc("/api/cache/stats", h.handleCacheStats)
	h.mux.HandleFunc("/health", h.handleHealth)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

type analyzeRequest struct {
	Prompt    *string `json:"prompt"`
	MediaType string  `json:"media_type"`
}

// handleAnalyze analyzes a single prompt
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == nil {
		respondError(w, "prompt field is required", http.StatusBadRequest)
		return
	}
	mediaType, err := parseMediaType(req.MediaType)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "analyzer.analyze",
		attribute.String("media_type", string(mediaType)),
		attribute.Int("prompt.length", len(*req.Prompt)),
	)
	defer span.End()

	analysis, err := h.analyzer.Analyze(*req.Prompt, mediaType)
	if err != nil {
		tracing.RecordError(ctx, err)
		h.metrics.ObserveFailure("analyze", mediaType)
		h.respondErr(w, r, err)
		return
	}
	tracing.SetSpanAttributes(ctx,
		attribute.Int("analysis.completeness", analysis.CompletenessScore),
		attribute.Int("analysis.missing_elements", len(analysis.MissingElements)),
	)

	respondJSON(w, analysis, http.StatusOK)
}

type scoreRequest struct {
	Original          *string            `json:"original"`
	Optimized         *string            `json:"optimized"`
	MediaType         string             `json:"media_type"`
	Answers           models.UserAnswers `json:"user_answers,omitempty"`
	AdditionalDetails string             `json:"additional_details,omitempty"`
}

func (req scoreRequest) validate() error {
	if req.Original == nil {
		return analyzer.InvalidArgument("original field is required")
	}
	if req.Optimized == nil {
		return analyzer.InvalidArgument("optimized field is required")
	}
	return nil
}

// handleIntent checks an optimized prompt for unrequested details
func (h *Handler) handleIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.respondErr(w, r, err)
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "analyzer.validate_intent",
		attribute.Int("answers.count", len(req.Answers)),
	)
	defer span.End()

	result := h.analyzer.ValidateIntent(*req.Original, *req.Optimized, req.Answers, req.AdditionalDetails)
	tracing.SetSpanAttributes(ctx,
		attribute.Bool("intent.preserved", result.Preserved),
		attribute.Int("intent.score", result.Score),
	)
	h.metrics.ObserveIntent("intent", result)

	respondJSON(w, result, http.StatusOK)
}

// handleScore computes the comprehensive quality score
func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.respondErr(w, r, err)
		return
	}
	mediaType, err := parseMediaType(req.MediaType)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "analyzer.score",
		attribute.String("media_type", string(mediaType)),
	)
	defer span.End()

	score, err := h.analyzer.Score(*req.Original, *req.Optimized, mediaType, req.Answers, req.AdditionalDetails)
	if err != nil {
		tracing.RecordError(ctx, err)
		h.metrics.ObserveFailure("score", mediaType)
		h.respondErr(w, r, err)
		return
	}
	tracing.SetSpanAttributes(ctx, attribute.Int("score.overall", score.Overall))
	h.metrics.ObserveScore(ctx, "score", mediaType, score)

	respondJSON(w, score, http.StatusOK)
}

// handleQuickOptimize rewrites a prompt without clarifying questions
func (h *Handler) handleQuickOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req optimizer.Request
	if !decodeBody(w, r, &req) {
		return
	}

	opt, err := h.optimizer.QuickOptimize(r.Context(), req)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, opt, http.StatusOK)
}

// handleQuestions returns clarifying questions for a prompt
func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req optimizer.Request
	if !decodeBody(w, r, &req) {
		return
	}

	set, err := h.optimizer.AnalyzeForQuestions(r.Context(), req)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, set, http.StatusOK)
}

// handleBuild builds the final prompt from answers
func (h *Handler) handleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req optimizer.BuildRequest
	if !decodeBody(w, r, &req) {
		return
	}

	opt, err := h.optimizer.Build(r.Context(), req)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, opt, http.StatusOK)
}

type createJobRequest struct {
	Kind string `json:"kind"` // score, optimize
	scoreRequest
	Mode    string                 `json:"mode,omitempty"`
	Request optimizer.BuildRequest `json:"request"`
}

// handleCreateJob queues a scoring or optimization job
func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.jobs == nil {
		respondError(w, "Job queue is not configured", http.StatusServiceUnavailable)
		return
	}

	var req createJobRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	var (
		job models.ScoreJob
		err error
	)
	switch req.Kind {
	case queue.KindScore:
		if err := req.scoreRequest.validate(); err != nil {
			h.respondErr(w, r, err)
			return
		}
		mediaType, err := parseMediaType(req.MediaType)
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		job, err = h.jobs.EnqueueScore(ctx, queue.ScorePromptPayload{
			Original:          *req.Original,
			Optimized:         *req.Optimized,
			MediaType:         mediaType,
			Answers:           req.Answers,
			AdditionalDetails: req.AdditionalDetails,
		})
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
	case queue.KindOptimize:
		normalized, verr := req.Request.Normalize()
		if verr != nil {
			h.respondErr(w, r, verr)
			return
		}
		if req.Mode != "" && req.Mode != optimizer.ModeQuick && req.Mode != optimizer.ModeBuild {
			respondError(w, "mode must be quick or build", http.StatusBadRequest)
			return
		}
		job, err = h.jobs.EnqueueOptimize(ctx, queue.OptimizePromptPayload{Mode: req.Mode, Request: normalized})
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
	default:
		respondError(w, "kind must be score or optimize", http.StatusBadRequest)
		return
	}

	tracing.SetSpanAttributes(ctx,
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", job.Kind),
	)
	logging.LogRequest(h.logger, r, "job queued",
		slog.String("job_id", job.ID),
		slog.String("kind", job.Kind),
	)

	respondJSON(w, map[string]interface{}{
		"job_id":  job.ID,
		"kind":    job.Kind,
		"status":  job.Status,
		"message": "Job queued for processing",
	}, http.StatusAccepted)
}

// handleJobStatus handles job status requests
func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.jobs == nil {
		respondError(w, "Job queue is not configured", http.StatusServiceUnavailable)
		return
	}

	// Extract job ID from path
	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if idx := strings.Index(jobID, "/"); idx != -1 {
		jobID = jobID[:idx]
	}
	if jobID == "" {
		respondError(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	job, ok := h.jobs.Job(r.Context(), jobID)
	if !ok {
		respondJSON(w, map[string]interface{}{
			"job_id":  jobID,
			"status":  "not_found",
			"message": "Job not found - it may have expired",
		}, http.StatusNotFound)
		return
	}

	respondJSON(w, job, http.StatusOK)
}

// handleCacheStats reports size, hits and misses per cache
func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := make([]cache.Stats, 0, len(h.caches))
	for _, c := range h.caches {
		stats = append(stats, c.Stats(r.Context()))
	}
	respondJSON(w, map[string]interface{}{"caches": stats}, http.StatusOK)
}

// respondErr maps invalid input to 400 and everything else to 500
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, analyzer.ErrInvalidArgument) {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tracing.RecordError(r.Context(), err)
	logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, err, r)
	respondError(w, "Internal server error", http.StatusInternalServerError)
}

func parseMediaType(s string) (models.MediaType, error) {
	mt, err := models.ParseMediaType(s)
	if err != nil {
		return "", analyzer.InvalidArgument("%v", err)
	}
	return mt, nil
}

// decodeBody decodes a JSON body, responding 400 on failure
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
