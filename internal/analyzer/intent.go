package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zombar/promptscore/internal/models"
)

const (
	violationPenalty    = 20
	longPromptBonus     = 5
	longPromptThreshold = 100
)

// ValidateIntent checks that optimized introduces no colors, styles,
// backgrounds or moods that the user did not ask for in the original prompt,
// their answers or their additional details
func (a *Analyzer) ValidateIntent(original, optimized string, answers models.UserAnswers, additionalDetails string) models.IntentResult {
	specified := userSpecifiedDetails(original, answers, additionalDetails)
	found := ExtractDetails(optimized)

	violations := []string{}
	added := []string{}

	categories := []struct {
		name      string
		optimized []string
		user      []string
	}{
		{"colors", found.Colors, specified.Colors},
		{"styles", found.Styles, specified.Styles},
		{"backgrounds", found.Backgrounds, specified.Backgrounds},
		{"moods", found.Moods, specified.Moods},
	}

	for _, c := range categories {
		unsolicited := difference(c.optimized, c.user)
		if len(unsolicited) == 0 {
			continue
		}
		violations = append(violations, fmt.Sprintf("Added %s not specified: %s", c.name, strings.Join(unsolicited, ", ")))
		added = append(added, unsolicited...)
	}

	return models.IntentResult{
		Preserved:    len(violations) == 0,
		Violations:   violations,
		AddedDetails: added,
		Score:        preservationScore(len(violations), optimized),
	}
}

// userSpecifiedDetails collects every creative term the user supplied
func userSpecifiedDetails(original string, answers models.UserAnswers, additionalDetails string) Details {
	var d Details
	d.Add(original)

	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		value := answers[id].Text()
		if value == "" || value == models.NoPreference || value == models.DefaultValue {
			continue
		}
		d.Add(value)
	}

	if additionalDetails != "" {
		d.Add(additionalDetails)
	}
	return d
}

// difference returns the terms of found that are absent from allowed, in order
func difference(found, allowed []string) []string {
	out := []string{}
	for _, term := range found {
		if !containsTerm(allowed, term) {
			out = append(out, term)
		}
	}
	return out
}

// preservationScore deducts per violating category; optimized prompts longer
// than 100 characters get a small bonus back
func preservationScore(violationCount int, optimized string) int {
	if violationCount == 0 {
		return 100
	}
	score := 100 - violationCount*violationPenalty
	if len([]rune(optimized)) > longPromptThreshold {
		score += longPromptBonus
	}
	return max(0, min(100, score))
}
