package analyzer

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zombar/promptscore/internal/models"
)

// Analyzer scores prompts and checks optimized prompts for intent drift.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct{}

// New creates a new Analyzer
func New() *Analyzer {
	return &Analyzer{}
}

var (
	articleNounPattern  = regexp.MustCompile(`(?i)\b(cat|dog|image|picture|photo)\b`)
	articledNounPattern = regexp.MustCompile(`(?i)\b(a|an|the)\s+(cat|dog|image|picture|photo)\b`)
	informalPattern     = regexp.MustCompile(`(?i)\b(draw|make|create)\s+me\s+`)
	punctuationPattern  = regexp.MustCompile(`[.,;:]`)
	descriptivePattern  = regexp.MustCompile(`(?i)\b(beautiful|detailed|specific|clear|precise|exact)\b`)
)

// Issue messages reported by the analyzer
const (
	IssueMissingArticle   = "Missing article (a/an/the)"
	IssueInformalLanguage = `Informal language - consider using "create" instead of "draw me"`
	IssueTooShort         = "Prompt is too short"
	IssueNoPunctuation    = "Prompt lacks proper punctuation and structure"
)

// Missing element names
const (
	ElementStyle          = "style"
	ElementComposition    = "composition"
	ElementBackground     = "background"
	ElementQuality        = "quality_indicators"
	ElementTone           = "tone"
	ElementFormat         = "format"
	ElementContext        = "context"
	ElementDuration       = "duration"
	ElementTechnicalSpecs = "technical_specs"
)

// Analyze identifies missing elements, grammar and structure issues and
// computes the four headline scores for a single prompt
func (a *Analyzer) Analyze(prompt string, mediaType models.MediaType) (models.PromptAnalysis, error) {
	if err := checkMediaType(mediaType); err != nil {
		return models.PromptAnalysis{}, err
	}

	wordCount := countWords(prompt)
	missing := missingElements(prompt, mediaType)

	grammarIssues := checkGrammar(prompt)
	structureIssues := checkStructure(wordCount, prompt)

	issues := make([]string, 0, len(grammarIssues)+len(structureIssues))
	issues = append(issues, grammarIssues...)
	issues = append(issues, structureIssues...)

	return models.PromptAnalysis{
		CompletenessScore:    completenessScore(len(missing), mediaType),
		MissingElements:      missing,
		GrammarIssuesFound:   len(grammarIssues) > 0,
		StructureIssuesFound: len(structureIssues) > 0,
		WordCount:            wordCount,
		ClarityScore:         clarityScore(prompt, wordCount, len(grammarIssues)),
		SpecificityScore:     specificityScore(prompt, wordCount),
		StructureScore:       structureScore(prompt, wordCount, len(structureIssues)),
		Issues:               issues,
	}, nil
}

// countWords counts whitespace-delimited tokens
func countWords(text string) int {
	return len(strings.Fields(text))
}

// MaxMissingElements returns how many elements are checked for a media type
func MaxMissingElements(mediaType models.MediaType) int {
	if mediaType == models.MediaImage {
		return 4
	}
	return 3
}

func missingElements(prompt string, mediaType models.MediaType) []string {
	missing := []string{}
	check := func(present bool, name string) {
		if !present {
			missing = append(missing, name)
		}
	}

	switch mediaType {
	case models.MediaImage:
		check(HasStyle(prompt), ElementStyle)
		check(HasComposition(prompt), ElementComposition)
		check(HasBackground(prompt), ElementBackground)
		check(HasQualityIndicators(prompt), ElementQuality)
	case models.MediaText:
		check(HasTone(prompt), ElementTone)
		check(HasFormat(prompt), ElementFormat)
		check(HasContext(prompt), ElementContext)
	case models.MediaVideo, models.MediaAudio:
		check(HasDuration(prompt), ElementDuration)
		check(HasStyle(prompt), ElementStyle)
		check(HasTechnicalSpecs(prompt), ElementTechnicalSpecs)
	}
	return missing
}

// checkGrammar flags a bare subject noun when no article+noun pair appears
// anywhere in the prompt, and the informal "draw me" construction
func checkGrammar(prompt string) []string {
	issues := []string{}

	if articleNounPattern.MatchString(prompt) && !articledNounPattern.MatchString(prompt) {
		issues = append(issues, IssueMissingArticle)
	}
	if informalPattern.MatchString(prompt) {
		issues = append(issues, IssueInformalLanguage)
	}

	return issues
}

func checkStructure(wordCount int, prompt string) []string {
	issues := []string{}

	if wordCount < 3 {
		issues = append(issues, IssueTooShort)
	}
	if wordCount > 5 && !punctuationPattern.MatchString(prompt) {
		issues = append(issues, IssueNoPunctuation)
	}

	return issues
}

func completenessScore(missingCount int, mediaType models.MediaType) int {
	ratio := float64(missingCount) / float64(MaxMissingElements(mediaType))
	return int(math.Round(math.Max(0, 100-ratio*100)))
}

func clarityScore(prompt string, wordCount, grammarIssues int) float64 {
	score := 100.0
	score -= float64(grammarIssues) * 15

	if utf8.RuneCountInString(prompt) < 10 {
		score -= 20
	}
	if wordCount > 5 && !punctuationPattern.MatchString(prompt) {
		score -= 10
	}

	return clamp(score)
}

func specificityScore(prompt string, wordCount int) float64 {
	bonus := float64(len(descriptivePattern.FindAllString(prompt, -1))) * 5
	base := math.Min(100, float64(wordCount)/20*100)
	return clamp(base + bonus)
}

func structureScore(prompt string, wordCount, structureIssues int) float64 {
	score := 100.0
	score -= float64(structureIssues) * 20

	if punctuationPattern.MatchString(prompt) {
		score += 10
	}
	if wordCount > 5 {
		score += 5
	}

	return clamp(score)
}

// clamp bounds a score to [0,100]
func clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
