package models

import (
	"fmt"
	"strings"
	"time"
)

// MediaType is the kind of output a prompt targets
type MediaType string

const (
	MediaText  MediaType = "text"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// ParseMediaType normalizes and validates a media type string
func ParseMediaType(s string) (MediaType, error) {
	mt := MediaType(strings.ToLower(strings.TrimSpace(s)))
	if !mt.Valid() {
		return "", fmt.Errorf("unknown media type %q", s)
	}
	return mt, nil
}

// Valid reports whether mt is one of the supported media types
func (mt MediaType) Valid() bool {
	switch mt {
	case MediaText, MediaImage, MediaVideo, MediaAudio:
		return true
	}
	return false
}

// PromptAnalysis is the structured analysis of a single prompt.
//
// GrammarIssuesFound and StructureIssuesFound are true when a problem was
// detected; the JSON names are kept for compatibility with existing clients.
type PromptAnalysis struct {
	CompletenessScore    int      `json:"completeness_score"`
	MissingElements      []string `json:"missing_elements"`
	GrammarIssuesFound   bool     `json:"grammar_fixed"`
	StructureIssuesFound bool     `json:"structure_improved"`
	WordCount            int      `json:"word_count"`
	ClarityScore         float64  `json:"clarity_score"`
	SpecificityScore     float64  `json:"specificity_score"`
	StructureScore       float64  `json:"structure_score"`
	Issues               []string `json:"issues"`
}

// IntentResult reports unsolicited creative details added by an optimizer
type IntentResult struct {
	Preserved    bool     `json:"preserved"`
	Violations   []string `json:"violations"`
	AddedDetails []string `json:"added_details"`
	Score        int      `json:"score"` // 0-100, 100 = nothing added
}

// DimensionScore is one scored dimension with human-readable factors
type DimensionScore struct {
	Score   float64  `json:"score"`
	Factors []string `json:"factors"`
}

// Breakdown holds the per-dimension factors of a QualityScore
type Breakdown struct {
	Clarity            DimensionScore `json:"clarity"`
	Specificity        DimensionScore `json:"specificity"`
	Structure          DimensionScore `json:"structure"`
	Completeness       DimensionScore `json:"completeness"`
	IntentPreservation DimensionScore `json:"intent_preservation"`
}

// QualityScore combines analyzer and intent results into one weighted score
type QualityScore struct {
	Overall            int       `json:"overall"`
	Clarity            float64   `json:"clarity"`
	Specificity        float64   `json:"specificity"`
	Structure          float64   `json:"structure"`
	Completeness       int       `json:"completeness"`
	IntentPreservation int       `json:"intent_preservation"`
	Breakdown          Breakdown `json:"breakdown"`
}

// AnswerType describes how a clarifying question was answered
type AnswerType string

const (
	AnswerOption  AnswerType = "option"
	AnswerCustom  AnswerType = "custom"
	AnswerDefault AnswerType = "default"
	AnswerSkipped AnswerType = "skipped"
)

// Sentinel answer values that carry no user preference
const (
	NoPreference = "no_preference"
	DefaultValue = "default"
)

// QuestionAnswer is a user's answer to one clarifying question
type QuestionAnswer struct {
	Type       AnswerType `json:"type"`
	Value      string     `json:"value"`
	CustomText string     `json:"customText,omitempty"`
}

// Text returns the effective answer text: custom text when present, else value
func (a QuestionAnswer) Text() string {
	if a.CustomText != "" {
		return a.CustomText
	}
	return a.Value
}

// UserAnswers maps question IDs to answers
type UserAnswers map[string]QuestionAnswer

// Question is a clarifying question offered before building a prompt
type Question struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Type     string   `json:"type"`     // select, select_or_text, textarea
	Priority string   `json:"priority"` // high, medium, low
	Options  []string `json:"options,omitempty"`
}

// ScoreSnapshot is a before/after pair of one metric
type ScoreSnapshot struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// OptimizationMetadata summarises how an optimization moved each metric
type OptimizationMetadata struct {
	WordCount         ScoreSnapshot `json:"word_count"`
	ClarityScore      ScoreSnapshot `json:"clarity_score"`
	SpecificityScore  ScoreSnapshot `json:"specificity_score"`
	StructureScore    ScoreSnapshot `json:"structure_score"`
	CompletenessScore int           `json:"completeness_score"`
}

// OptimizationSummary is the short quality report attached to an optimization
type OptimizationSummary struct {
	Before          int      `json:"before"`
	After           int      `json:"after"`
	Improvements    []string `json:"improvements"`
	IntentPreserved bool     `json:"intent_preserved"`
}

// Optimization is the outcome of rewriting a prompt
type Optimization struct {
	ID                string               `json:"id"`
	OriginalPrompt    string               `json:"original_prompt"`
	OptimizedPrompt   string               `json:"optimized_prompt"`
	TargetModel       string               `json:"target_model"`
	MediaType         MediaType            `json:"media_type"`
	Mode              string               `json:"mode"` // quick, build
	Source            string               `json:"source"` // rules, ollama, openai
	Analysis          PromptAnalysis       `json:"analysis"`
	Summary           OptimizationSummary  `json:"quality_summary"`
	Metadata          OptimizationMetadata `json:"metadata"`
	Quality           QualityScore         `json:"quality"`
	UserAnswers       UserAnswers          `json:"user_answers,omitempty"`
	AdditionalDetails string               `json:"additional_details,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

// QuestionSet is returned when a prompt is analyzed for clarifying questions
type QuestionSet struct {
	OriginalPrompt         string         `json:"original_prompt"`
	TargetModel            string         `json:"target_model"`
	MediaType              MediaType      `json:"media_type"`
	Analysis               PromptAnalysis `json:"analysis"`
	Questions              []Question     `json:"questions"`
	AdditionalDetailsField string         `json:"additional_details_field"`
	QuickOptimized         string         `json:"quick_optimized"`
	Source                 string         `json:"source"`
}

// JobStatus is the lifecycle state of an asynchronous job
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ScoreJob tracks an asynchronous scoring or optimization request
type ScoreJob struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"` // score, optimize
	Status       JobStatus     `json:"status"`
	Score        *QualityScore `json:"score,omitempty"`
	Optimization *Optimization `json:"optimization,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
