package analyzer

import (
	"fmt"
	"math"
	"strconv"

	"github.com/zombar/promptscore/internal/models"
)

// Weights of each dimension in the overall score
const (
	WeightClarity      = 0.25
	WeightSpecificity  = 0.25
	WeightStructure    = 0.20
	WeightCompleteness = 0.15
	WeightIntent       = 0.15
)

// Score analyzes both prompts, validates intent preservation and combines the
// five dimensions into one weighted score with a factor breakdown
func (a *Analyzer) Score(original, optimized string, mediaType models.MediaType, answers models.UserAnswers, additionalDetails string) (models.QualityScore, error) {
	before, err := a.Analyze(original, mediaType)
	if err != nil {
		return models.QualityScore{}, fmt.Errorf("analyze original prompt: %w", err)
	}
	after, err := a.Analyze(optimized, mediaType)
	if err != nil {
		return models.QualityScore{}, fmt.Errorf("analyze optimized prompt: %w", err)
	}
	intent := a.ValidateIntent(original, optimized, answers, additionalDetails)

	return combine(before, after, intent), nil
}

func combine(before, after models.PromptAnalysis, intent models.IntentResult) models.QualityScore {
	clarity := clarityDimension(before, after)
	specificity := specificityDimension(before, after)
	structure := structureDimension(before, after)
	completeness := after.CompletenessScore

	overall := int(math.Round(
		clarity.Score*WeightClarity +
			specificity.Score*WeightSpecificity +
			structure.Score*WeightStructure +
			float64(completeness)*WeightCompleteness +
			float64(intent.Score)*WeightIntent,
	))

	intentFactors := []string{"Intent fully preserved"}
	if !intent.Preserved {
		intentFactors = append([]string{"Intent violations detected"}, intent.Violations...)
	}

	return models.QualityScore{
		Overall:            overall,
		Clarity:            clarity.Score,
		Specificity:        specificity.Score,
		Structure:          structure.Score,
		Completeness:       completeness,
		IntentPreservation: intent.Score,
		Breakdown: models.Breakdown{
			Clarity:     clarity,
			Specificity: specificity,
			Structure:   structure,
			Completeness: models.DimensionScore{
				Score: float64(completeness),
				Factors: []string{
					fmt.Sprintf("Missing elements: %d", len(after.MissingElements)),
					fmt.Sprintf("Completeness: %d%%", completeness),
				},
			},
			IntentPreservation: models.DimensionScore{
				Score:   float64(intent.Score),
				Factors: intentFactors,
			},
		},
	}
}

func clarityDimension(before, after models.PromptAnalysis) models.DimensionScore {
	factors := []string{deltaFactor("Clarity", after.ClarityScore-before.ClarityScore)}
	factors = append(factors, bucket(after.ClarityScore,
		"High clarity achieved", "Moderate clarity", "Clarity needs improvement"))

	return models.DimensionScore{Score: after.ClarityScore, Factors: factors}
}

func specificityDimension(before, after models.PromptAnalysis) models.DimensionScore {
	factors := []string{deltaFactor("Specificity", after.SpecificityScore-before.SpecificityScore)}
	if added := after.WordCount - before.WordCount; added > 0 {
		factors = append(factors, fmt.Sprintf("Added %d words for detail", added))
	}
	factors = append(factors, bucket(after.SpecificityScore,
		"Highly specific", "Moderately specific", "Needs more specificity"))

	return models.DimensionScore{Score: after.SpecificityScore, Factors: factors}
}

func structureDimension(before, after models.PromptAnalysis) models.DimensionScore {
	factors := []string{deltaFactor("Structure", after.StructureScore-before.StructureScore)}
	factors = append(factors, bucket(after.StructureScore,
		"Well-structured prompt", "Adequate structure", "Structure needs improvement"))

	return models.DimensionScore{Score: after.StructureScore, Factors: factors}
}

func deltaFactor(name string, delta float64) string {
	switch {
	case delta > 0:
		return fmt.Sprintf("%s improved by %s points", name, formatPoints(delta))
	case delta < 0:
		return fmt.Sprintf("%s decreased by %s points", name, formatPoints(-delta))
	default:
		return name + " maintained"
	}
}

// bucket picks the label for high (>=80), moderate (>=60) or low scores
func bucket(score float64, high, moderate, low string) string {
	switch {
	case score >= 80:
		return high
	case score >= 60:
		return moderate
	default:
		return low
	}
}

// formatPoints prints a score delta with at most two decimals
func formatPoints(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
