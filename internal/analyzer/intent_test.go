package analyzer

import (
	"reflect"
	"strings"
	"testing"

	"github.com/zombar/promptscore/internal/models"
)

func TestValidateIntentFlagsUnsolicitedColors(t *testing.T) {
	a := New()

	result := a.ValidateIntent("create image of cat", "Create an image of an orange tabby cat with green eyes", nil, "")

	if result.Preserved {
		t.Fatal("expected intent violation")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", result.Violations)
	}
	if !strings.HasPrefix(result.Violations[0], "Added colors not specified:") {
		t.Errorf("unexpected violation %q", result.Violations[0])
	}
	expectedAdded := []string{"green", "orange", "orange tabby", "tabby"}
	if !reflect.DeepEqual(result.AddedDetails, expectedAdded) {
		t.Errorf("expected added %v, got %v", expectedAdded, result.AddedDetails)
	}
	if result.Score != 80 {
		t.Errorf("expected score 80, got %d", result.Score)
	}
}

func TestValidateIntentAcceptsAnsweredDetails(t *testing.T) {
	a := New()

	answers := models.UserAnswers{
		"style": {Type: models.AnswerOption, Value: "photorealistic"},
		"details": {
			Type:       models.AnswerCustom,
			Value:      "orange tabby",
			CustomText: "orange tabby with green eyes",
		},
	}

	result := a.ValidateIntent(
		"create image of cat",
		"Create a photorealistic image of an orange tabby cat with green eyes",
		answers,
		"",
	)

	if !result.Preserved {
		t.Errorf("expected intent preserved, got violations %v", result.Violations)
	}
	if result.Score != 100 {
		t.Errorf("expected score 100, got %d", result.Score)
	}
	if len(result.Violations) != 0 || len(result.AddedDetails) != 0 {
		t.Errorf("expected empty violations and added details, got %v / %v", result.Violations, result.AddedDetails)
	}
}

func TestValidateIntentAcceptsAdditionalDetails(t *testing.T) {
	a := New()

	result := a.ValidateIntent(
		"create image of cat",
		"Create an image of a cat in a garden with golden hour lighting",
		nil,
		"garden, golden hour lighting",
	)

	if !result.Preserved {
		t.Errorf("expected intent preserved, got violations %v", result.Violations)
	}
}

func TestValidateIntentCategories(t *testing.T) {
	a := New()

	tests := []struct {
		name      string
		optimized string
		prefix    string
	}{
		{"styles", "Create a photorealistic, watercolor-style image of a cat", "Added styles not specified:"},
		{"backgrounds", "Create an image of a cat in a cozy library with bookshelves", "Added backgrounds not specified:"},
		{"moods", "Create an image of a cat, peaceful", "Added moods not specified:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := a.ValidateIntent("create image of cat", tt.optimized, nil, "")
			if result.Preserved {
				t.Fatal("expected intent violation")
			}
			found := false
			for _, v := range result.Violations {
				if strings.HasPrefix(v, tt.prefix) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a violation starting with %q, got %v", tt.prefix, result.Violations)
			}
		})
	}
}

func TestValidateIntentCountsCategoriesNotTerms(t *testing.T) {
	a := New()

	one := a.ValidateIntent("a cat", "a red blue cat", nil, "")
	if one.Score != 80 {
		t.Errorf("expected 80 for one category, got %d", one.Score)
	}

	two := a.ValidateIntent("a cat", "a red cat in a garden", nil, "")
	if two.Score != 60 {
		t.Errorf("expected 60 for two categories, got %d", two.Score)
	}
	if two.Score > one.Score {
		t.Error("more violating categories must not raise the score")
	}
}

func TestValidateIntentLongPromptBonus(t *testing.T) {
	a := New()

	optimized := "a red cat" + strings.Repeat(" sitting quietly", 10)
	result := a.ValidateIntent("a cat", optimized, nil, "")

	if len(result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", result.Violations)
	}
	if result.Score != 85 {
		t.Errorf("expected 85 with the length bonus, got %d", result.Score)
	}
}

func TestValidateIntentIgnoresPlaceholderAnswers(t *testing.T) {
	a := New()

	answers := models.UserAnswers{
		"style": {Type: models.AnswerSkipped, Value: models.NoPreference},
		"color": {Type: models.AnswerDefault, Value: models.DefaultValue},
	}

	result := a.ValidateIntent("a cat", "a cat", answers, "")
	if !result.Preserved {
		t.Errorf("expected intent preserved, got %v", result.Violations)
	}
}

func TestValidateIntentPrefersCustomText(t *testing.T) {
	a := New()

	answers := models.UserAnswers{
		"color": {Type: models.AnswerCustom, Value: "red", CustomText: "blue"},
	}

	result := a.ValidateIntent("a cat", "a red cat", answers, "")
	if result.Preserved {
		t.Error("expected the option value to be ignored when custom text is present")
	}

	result = a.ValidateIntent("a cat", "a blue cat", answers, "")
	if !result.Preserved {
		t.Errorf("expected custom text to be allowed, got %v", result.Violations)
	}
}

func TestValidateIntentIdenticalPrompts(t *testing.T) {
	a := New()

	prompts := []string{
		"",
		"a cat",
		"a red cat in a cozy garden, watercolor",
		"An Orange Tabby in an OIL PAINTING at the beach",
	}

	for _, p := range prompts {
		result := a.ValidateIntent(p, p, nil, "")
		if !result.Preserved || result.Score != 100 {
			t.Errorf("expected %q to preserve its own intent, got %+v", p, result)
		}
	}
}

func TestPreservationScoreBounds(t *testing.T) {
	for n := 0; n <= 10; n++ {
		for _, text := range []string{"short", strings.Repeat("x", 150)} {
			score := preservationScore(n, text)
			if score < 0 || score > 100 {
				t.Errorf("preservationScore(%d) = %d, out of range", n, score)
			}
		}
	}
}
