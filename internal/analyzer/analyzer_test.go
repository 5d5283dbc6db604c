package analyzer

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/zombar/promptscore/internal/models"
)

func TestAnalyzeSimpleImagePrompt(t *testing.T) {
	a := New()

	result, err := a.Analyze("create image of cat", models.MediaImage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.WordCount != 4 {
		t.Errorf("expected 4 words, got %d", result.WordCount)
	}
	if len(result.MissingElements) == 0 {
		t.Error("expected missing elements for a bare prompt")
	}
	if result.CompletenessScore >= 100 {
		t.Errorf("expected completeness below 100, got %d", result.CompletenessScore)
	}

	expectedMissing := []string{ElementStyle, ElementComposition, ElementBackground, ElementQuality}
	if !reflect.DeepEqual(result.MissingElements, expectedMissing) {
		t.Errorf("expected missing %v, got %v", expectedMissing, result.MissingElements)
	}
	if result.CompletenessScore != 0 {
		t.Errorf("expected completeness 0, got %d", result.CompletenessScore)
	}
	if result.ClarityScore != 85 {
		t.Errorf("expected clarity 85, got %v", result.ClarityScore)
	}
	if result.SpecificityScore != 20 {
		t.Errorf("expected specificity 20, got %v", result.SpecificityScore)
	}
	if result.StructureScore != 100 {
		t.Errorf("expected structure 100, got %v", result.StructureScore)
	}
	if !result.GrammarIssuesFound {
		t.Error("expected grammar issue to be flagged")
	}
	if result.StructureIssuesFound {
		t.Error("expected no structure issue")
	}
	if len(result.Issues) != 1 || result.Issues[0] != IssueMissingArticle {
		t.Errorf("expected only the missing article issue, got %v", result.Issues)
	}
}

func TestAnalyzeMissingElementsByMediaType(t *testing.T) {
	a := New()

	tests := []struct {
		name      string
		prompt    string
		mediaType models.MediaType
		expected  []string
	}{
		{"text prompt", "write something", models.MediaText, []string{ElementTone, ElementFormat, ElementContext}},
		{"text prompt with tone and format", "write a friendly article", models.MediaText, []string{ElementContext}},
		{"image with style", "create a photorealistic image of a cat", models.MediaImage, []string{ElementComposition, ElementBackground, ElementQuality}},
		{"image with background", "create image of cat in a garden", models.MediaImage, []string{ElementStyle, ElementComposition, ElementQuality}},
		{"video prompt", "a cat video", models.MediaVideo, []string{ElementDuration, ElementStyle, ElementTechnicalSpecs}},
		{"audio prompt with specs", "a short cartoon jingle in hd", models.MediaAudio, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.Analyze(tt.prompt, tt.mediaType)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result.MissingElements, tt.expected) {
				t.Errorf("expected missing %v, got %v", tt.expected, result.MissingElements)
			}
		})
	}
}

func TestCompletenessScore(t *testing.T) {
	tests := []struct {
		missing   int
		mediaType models.MediaType
		expected  int
	}{
		{0, models.MediaImage, 100},
		{1, models.MediaImage, 75},
		{4, models.MediaImage, 0},
		{1, models.MediaText, 67},
		{2, models.MediaVideo, 33},
		{3, models.MediaAudio, 0},
	}

	for _, tt := range tests {
		if got := completenessScore(tt.missing, tt.mediaType); got != tt.expected {
			t.Errorf("completenessScore(%d, %s) = %d, expected %d", tt.missing, tt.mediaType, got, tt.expected)
		}
	}
}

func TestCheckGrammar(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"bare noun", "create image of cat", []string{IssueMissingArticle}},
		{"article present", "create an image of a cat", []string{}},
		{"one articled noun is enough", "a cat photo", []string{}},
		{"informal", "draw me a dog", []string{IssueInformalLanguage}},
		{"informal and bare", "make me picture", []string{IssueMissingArticle, IssueInformalLanguage}},
		{"informal needs trailing space", "draw me", []string{}},
		{"noun inside a word", "category listing", []string{}},
		{"empty", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkGrammar(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestCheckStructure(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"too short", "cat", []string{IssueTooShort}},
		{"three words", "a small cat", []string{}},
		{"long without punctuation", "a small cat sitting on a chair", []string{IssueNoPunctuation}},
		{"long with punctuation", "a small cat, sitting on a chair", []string{}},
		{"empty", "", []string{IssueTooShort}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkStructure(countWords(tt.input), tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestAnalyzeShortPrompt(t *testing.T) {
	a := New()

	result, err := a.Analyze("cat", models.MediaImage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.WordCount != 1 {
		t.Errorf("expected 1 word, got %d", result.WordCount)
	}
	if len(result.Issues) != 2 {
		t.Errorf("expected 2 issues, got %v", result.Issues)
	}
	// 100 - 15 (article) - 20 (under 10 characters)
	if result.ClarityScore != 65 {
		t.Errorf("expected clarity 65, got %v", result.ClarityScore)
	}
	if result.SpecificityScore != 5 {
		t.Errorf("expected specificity 5, got %v", result.SpecificityScore)
	}
	if result.StructureScore != 80 {
		t.Errorf("expected structure 80, got %v", result.StructureScore)
	}
}

func TestAnalyzeLongDetailedPrompt(t *testing.T) {
	a := New()

	prompt := "Create a high-quality, photorealistic image of a beautiful orange tabby cat, centered in the frame, " +
		"with soft natural lighting, blurred background, warm vibrant colors, showcasing detailed fur texture, " +
		"professional photography style"

	result, err := a.Analyze(prompt, models.MediaImage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.WordCount <= 10 {
		t.Errorf("expected more than 10 words, got %d", result.WordCount)
	}
	if len(result.MissingElements) != 0 {
		t.Errorf("expected nothing missing, got %v", result.MissingElements)
	}
	if result.CompletenessScore != 100 {
		t.Errorf("expected completeness 100, got %d", result.CompletenessScore)
	}
	if result.SpecificityScore != 100 {
		t.Errorf("expected specificity capped at 100, got %v", result.SpecificityScore)
	}
}

func TestSpecificityCountsDescriptiveWords(t *testing.T) {
	// 4 words -> 20, plus 2 descriptive words
	got := specificityScore("beautiful and detailed cat", 4)
	if got != 30 {
		t.Errorf("expected 30, got %v", got)
	}

	// word-boundary match only
	got = specificityScore("unclear imprecise", 2)
	if got != 10 {
		t.Errorf("expected 10, got %v", got)
	}
}

func TestAnalyzeScoresStayInRange(t *testing.T) {
	a := New()

	inputs := []string{
		"",
		"   ",
		"cat",
		"create image of cat 🐱 with @#$%^&*() characters",
		"create image of 猫 (cat in Chinese)",
		strings.Repeat("a", 5000),
		strings.Repeat("beautiful detailed precise exact clear specific ", 40),
		strings.Repeat("draw me cat ", 50),
	}
	mediaTypes := []models.MediaType{models.MediaText, models.MediaImage, models.MediaVideo, models.MediaAudio}

	for _, input := range inputs {
		for _, mt := range mediaTypes {
			result, err := a.Analyze(input, mt)
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", input, err)
			}
			if result.CompletenessScore < 0 || result.CompletenessScore > 100 {
				t.Errorf("completeness out of range for %q: %d", input, result.CompletenessScore)
			}
			for name, score := range map[string]float64{
				"clarity":     result.ClarityScore,
				"specificity": result.SpecificityScore,
				"structure":   result.StructureScore,
			} {
				if score < 0 || score > 100 {
					t.Errorf("%s out of range for %q: %v", name, input, score)
				}
			}
			if len(result.MissingElements) > MaxMissingElements(mt) {
				t.Errorf("too many missing elements for %s: %v", mt, result.MissingElements)
			}
		}
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := New()

	first, err := a.Analyze("draw me a cat in a garden, watercolor", models.MediaImage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := a.Analyze("draw me a cat in a garden, watercolor", models.MediaImage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestAnalyzeRejectsUnknownMediaType(t *testing.T) {
	a := New()

	_, err := a.Analyze("create image of cat", models.MediaType("hologram"))
	if err == nil {
		t.Fatal("expected error for unknown media type")
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestLexiconSubstringMatching(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Details
	}{
		{
			name:  "term inside a longer word",
			input: "the warmth of the fireplace",
			expected: Details{
				Colors: []string{"warm"},
			},
		},
		{
			name:     "no false red",
			input:    "scarlett",
			expected: Details{},
		},
		{
			name:  "multi word terms",
			input: "An Orange Tabby in an OIL PAINTING",
			expected: Details{
				Colors: []string{"orange", "orange tabby", "tabby"},
				Styles: []string{"painting", "oil painting"},
			},
		},
		{
			name:  "background order follows vocabulary",
			input: "a city scene by the beach",
			expected: Details{
				Backgrounds: []string{"beach", "city", "scene"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDetails(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestDetailsAddDeduplicates(t *testing.T) {
	var d Details
	d.Add("a red cat")
	d.Add("a RED dog and a blue bird")

	expected := []string{"red", "blue"}
	if !reflect.DeepEqual(d.Colors, expected) {
		t.Errorf("expected %v, got %v", expected, d.Colors)
	}
}

func TestHasContext(t *testing.T) {
	if HasContext("one two three four five six seven eight nine ten") {
		t.Error("ten words should not count as context")
	}
	if !HasContext("one two three four five six seven eight nine ten eleven") {
		t.Error("eleven words should count as context")
	}
}
