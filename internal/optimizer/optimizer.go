package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/promptscore/internal/analyzer"
	"github.com/zombar/promptscore/internal/cache"
	"github.com/zombar/promptscore/internal/llm"
	"github.com/zombar/promptscore/internal/metrics"
	"github.com/zombar/promptscore/internal/models"
	"github.com/zombar/promptscore/internal/tracing"
)

// Optimization modes
const (
	ModeQuick = "quick"
	ModeBuild = "build"
)

// AdditionalDetailsField names the free-text field offered with questions
const AdditionalDetailsField = "additional_details"

// ErrLLMUnavailable marks an LLM call that failed while fallback was disabled
var ErrLLMUnavailable = errors.New("llm unavailable")

type noFallbackKey struct{}

// WithoutFallback makes QuickOptimize and Build return failed LLM calls as
// errors wrapping ErrLLMUnavailable instead of answering from the rules.
// Rewrites that add unrequested details still fall back.
func WithoutFallback(ctx context.Context) context.Context {
	return context.WithValue(ctx, noFallbackKey{}, true)
}

func fallbackDisabled(ctx context.Context) bool {
	disabled, _ := ctx.Value(noFallbackKey{}).(bool)
	return disabled
}

// Rewriter produces optimized prompts and clarifying questions. The ollama
// and openai clients and Rules implement it.
type Rewriter interface {
	Name() string
	RewritePrompt(ctx context.Context, prompt string, mediaType models.MediaType, targetModel string) (string, error)
	GenerateQuestions(ctx context.Context, prompt string, mediaType models.MediaType, targetModel string, missing []string) ([]models.Question, error)
	BuildPrompt(ctx context.Context, prompt string, mediaType models.MediaType, targetModel string, answers models.UserAnswers, additionalDetails string) (string, error)
}

// Config holds the optional collaborators of a Service
type Config struct {
	LLM           Rewriter // nil uses Rules only
	Optimizations cache.Store[models.Optimization]
	Questions     cache.Store[models.QuestionSet]
	Metrics       *metrics.BusinessMetrics
	Logger        *slog.Logger
}

// Service optimizes prompts and reports how much they improved
type Service struct {
	analyzer      *analyzer.Analyzer
	llm           Rewriter
	rules         Rules
	optimizations cache.Store[models.Optimization]
	questions     cache.Store[models.QuestionSet]
	metrics       *metrics.BusinessMetrics
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a Service. Missing caches are replaced by in-memory ones with
// the default TTLs.
func New(a *analyzer.Analyzer, cfg Config) *Service {
	if a == nil {
		a = analyzer.New()
	}
	if cfg.Optimizations == nil {
		cfg.Optimizations = cache.NewMemory[models.Optimization]("optimizations", cache.DefaultOptimizationTTL)
	}
	if cfg.Questions == nil {
		cfg.Questions = cache.NewMemory[models.QuestionSet]("questions", cache.DefaultQuestionTTL)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		analyzer:      a,
		llm:           cfg.LLM,
		optimizations: cfg.Optimizations,
		questions:     cfg.Questions,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// Analyzer returns the analyzer the service scores with
func (s *Service) Analyzer() *analyzer.Analyzer {
	return s.analyzer
}

// QuickOptimize rewrites a prompt without asking questions. Results are
// memoised per prompt, media type and target model.
func (s *Service) QuickOptimize(ctx context.Context, req Request) (*models.Optimization, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "optimizer.QuickOptimize",
		attribute.String("media_type", string(req.MediaType)),
		attribute.String("target_model", req.TargetModel),
	)
	defer span.End()

	key := cache.AnalysisKey(req.Prompt, string(req.MediaType), req.TargetModel)
	if cached, ok := s.optimizations.Get(ctx, key); ok {
		tracing.SetSpanAttributes(ctx, attribute.Bool("cache.hit", true))
		cached.ID = uuid.New().String()
		cached.CreatedAt = s.now()
		return &cached, nil
	}
	tracing.SetSpanAttributes(ctx, attribute.Bool("cache.hit", false))

	optimized, source, err := s.rewrite(ctx, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.metrics.ObserveFailure("optimize_quick", req.MediaType)
		return nil, err
	}

	opt, err := s.assemble(req, optimized, source, ModeQuick, nil, "")
	if err != nil {
		tracing.RecordError(ctx, err)
		s.metrics.ObserveFailure("optimize_quick", req.MediaType)
		return nil, err
	}

	s.optimizations.Set(ctx, key, *opt)
	s.metrics.ObserveScore(ctx, "optimize_quick", req.MediaType, opt.Quality)

	s.logger.Debug("quick optimization complete",
		"media_type", req.MediaType,
		"source", source,
		"before", opt.Summary.Before,
		"after", opt.Summary.After,
	)
	return opt, nil
}

// AnalyzeForQuestions analyzes a prompt and proposes clarifying questions
// for its missing elements, along with a quick-optimized preview
func (s *Service) AnalyzeForQuestions(ctx context.Context, req Request) (*models.QuestionSet, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "optimizer.AnalyzeForQuestions",
		attribute.String("media_type", string(req.MediaType)),
		attribute.String("target_model", req.TargetModel),
	)
	defer span.End()

	key := cache.QuestionsKey(req.Prompt, string(req.MediaType), req.TargetModel)
	if cached, ok := s.questions.Get(ctx, key); ok {
		tracing.SetSpanAttributes(ctx, attribute.Bool("cache.hit", true))
		return &cached, nil
	}
	tracing.SetSpanAttributes(ctx, attribute.Bool("cache.hit", false))

	analysis, err := s.analyzer.Analyze(req.Prompt, req.MediaType)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.metrics.ObserveFailure("optimize_questions", req.MediaType)
		return nil, err
	}

	questions, source := s.generateQuestions(ctx, req, analysis.MissingElements)
	preview, _, _ := s.rewrite(ctx, req)

	set := models.QuestionSet{
		OriginalPrompt:         req.Prompt,
		TargetModel:            req.TargetModel,
		MediaType:              req.MediaType,
		Analysis:               analysis,
		Questions:              questions,
		AdditionalDetailsField: AdditionalDetailsField,
		QuickOptimized:         preview,
		Source:                 source,
	}
	s.questions.Set(ctx, key, set)

	tracing.SetSpanAttributes(ctx, attribute.Int("questions.count", len(questions)))
	return &set, nil
}

// Build composes the final prompt from the user's answers and scores it,
// treating answered details as user-specified
func (s *Service) Build(ctx context.Context, req BuildRequest) (*models.Optimization, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "optimizer.Build",
		attribute.String("media_type", string(req.MediaType)),
		attribute.String("target_model", req.TargetModel),
		attribute.Int("answers.count", len(req.Answers)),
	)
	defer span.End()

	optimized, source, err := s.build(ctx, req)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.metrics.ObserveFailure("optimize_build", req.MediaType)
		return nil, err
	}

	opt, err := s.assemble(req.Request, optimized, source, ModeBuild, req.Answers, req.AdditionalDetails)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.metrics.ObserveFailure("optimize_build", req.MediaType)
		return nil, err
	}

	s.metrics.ObserveScore(ctx, "optimize_build", req.MediaType, opt.Quality)
	return opt, nil
}

// rewrite asks the LLM for a quick rewrite and falls back to the rules when
// the call fails or the result adds unrequested details
func (s *Service) rewrite(ctx context.Context, req Request) (string, string, error) {
	if s.llm != nil {
		out, err := s.llm.RewritePrompt(ctx, req.Prompt, req.MediaType, req.TargetModel)
		if err != nil && fallbackDisabled(ctx) {
			return "", "", s.unavailable(llm.OpRewrite, err)
		}
		if err == nil {
			err = s.checkIntent(req.Prompt, out, nil, "")
		}
		if err == nil {
			return out, s.llm.Name(), nil
		}
		s.fallback(ctx, llm.OpRewrite, err)
	}

	out, _ := s.rules.RewritePrompt(ctx, req.Prompt, req.MediaType, req.TargetModel)
	return out, s.rules.Name(), nil
}

func (s *Service) generateQuestions(ctx context.Context, req Request, missing []string) ([]models.Question, string) {
	if s.llm != nil {
		questions, err := s.llm.GenerateQuestions(ctx, req.Prompt, req.MediaType, req.TargetModel, missing)
		if err == nil && len(questions) > 0 {
			return questions, s.llm.Name()
		}
		if err == nil {
			err = fmt.Errorf("no questions returned")
		}
		s.fallback(ctx, llm.OpQuestions, err)
	}

	questions, _ := s.rules.GenerateQuestions(ctx, req.Prompt, req.MediaType, req.TargetModel, missing)
	return questions, s.rules.Name()
}

func (s *Service) build(ctx context.Context, req BuildRequest) (string, string, error) {
	if s.llm != nil {
		out, err := s.llm.BuildPrompt(ctx, req.Prompt, req.MediaType, req.TargetModel, req.Answers, req.AdditionalDetails)
		if err != nil && fallbackDisabled(ctx) {
			return "", "", s.unavailable(llm.OpBuild, err)
		}
		if err == nil {
			err = s.checkIntent(req.Prompt, out, req.Answers, req.AdditionalDetails)
		}
		if err == nil {
			return out, s.llm.Name(), nil
		}
		s.fallback(ctx, llm.OpBuild, err)
	}

	out, _ := s.rules.BuildPrompt(ctx, req.Prompt, req.MediaType, req.TargetModel, req.Answers, req.AdditionalDetails)
	return out, s.rules.Name(), nil
}

func (s *Service) unavailable(operation string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", s.llm.Name(), operation, ErrLLMUnavailable, err)
}

func (s *Service) checkIntent(original, optimized string, answers models.UserAnswers, additionalDetails string) error {
	result := s.analyzer.ValidateIntent(original, optimized, answers, additionalDetails)
	if !result.Preserved {
		return fmt.Errorf("rewrite added unrequested details: %v", result.AddedDetails)
	}
	return nil
}

func (s *Service) fallback(ctx context.Context, operation string, err error) {
	provider := s.llm.Name()
	s.logger.Warn("llm call failed, using rule-based fallback",
		"provider", provider,
		"operation", operation,
		"error", err,
		"trace_id", tracing.TraceIDFromContext(ctx),
	)
	s.metrics.RecordFallback(provider, operation)
}

// assemble scores optimized against the original and builds the result
func (s *Service) assemble(req Request, optimized, source, mode string, answers models.UserAnswers, additionalDetails string) (*models.Optimization, error) {
	before, err := s.analyzer.Analyze(req.Prompt, req.MediaType)
	if err != nil {
		return nil, fmt.Errorf("analyze original: %w", err)
	}
	after, err := s.analyzer.Analyze(optimized, req.MediaType)
	if err != nil {
		return nil, fmt.Errorf("analyze optimized: %w", err)
	}

	baseline, err := s.analyzer.Score(req.Prompt, req.Prompt, req.MediaType, nil, "")
	if err != nil {
		return nil, fmt.Errorf("score original: %w", err)
	}
	quality, err := s.analyzer.Score(req.Prompt, optimized, req.MediaType, answers, additionalDetails)
	if err != nil {
		return nil, fmt.Errorf("score optimized: %w", err)
	}

	return &models.Optimization{
		ID:              uuid.New().String(),
		OriginalPrompt:  req.Prompt,
		OptimizedPrompt: optimized,
		TargetModel:     req.TargetModel,
		MediaType:       req.MediaType,
		Mode:            mode,
		Source:          source,
		Analysis:        before,
		Summary: models.OptimizationSummary{
			Before:          baseline.Overall,
			After:           quality.Overall,
			Improvements:    improvements(before, after),
			IntentPreserved: quality.IntentPreservation == 100,
		},
		Metadata: models.OptimizationMetadata{
			WordCount:         models.ScoreSnapshot{Before: float64(before.WordCount), After: float64(after.WordCount)},
			ClarityScore:      models.ScoreSnapshot{Before: before.ClarityScore, After: after.ClarityScore},
			SpecificityScore:  models.ScoreSnapshot{Before: before.SpecificityScore, After: after.SpecificityScore},
			StructureScore:    models.ScoreSnapshot{Before: before.StructureScore, After: after.StructureScore},
			CompletenessScore: after.CompletenessScore,
		},
		Quality:           quality,
		UserAnswers:       answers,
		AdditionalDetails: additionalDetails,
		CreatedAt:         s.now(),
	}, nil
}

// improvements lists what changed for the better between two analyses
func improvements(before, after models.PromptAnalysis) []string {
	var out []string

	if before.GrammarIssuesFound && !after.GrammarIssuesFound {
		out = append(out, "Fixed grammar issues")
	}
	if before.StructureIssuesFound && !after.StructureIssuesFound {
		out = append(out, "Improved structure and punctuation")
	}
	if added := len(before.MissingElements) - len(after.MissingElements); added > 0 {
		out = append(out, fmt.Sprintf("Added %d missing element(s)", added))
	}
	if delta := after.ClarityScore - before.ClarityScore; delta > 0 {
		out = append(out, fmt.Sprintf("Clarity improved by %.0f points", delta))
	}
	if delta := after.StructureScore - before.StructureScore; delta > 0 {
		out = append(out, fmt.Sprintf("Structure improved by %.0f points", delta))
	}

	if out == nil {
		out = []string{}
	}
	return out
}
