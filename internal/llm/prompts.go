package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/zombar/promptscore/internal/models"
)

// Operation names used in logs and metrics
const (
	OpRewrite   = "rewrite"
	OpQuestions = "questions"
	OpBuild     = "build"
)

// MaxQuestions caps how many clarifying questions are kept from a model reply
const MaxQuestions = 6

// RewriteInstructions tells the model to fix a prompt without adding content
func RewriteInstructions(mediaType models.MediaType, targetModel string) string {
	return fmt.Sprintf(`You improve prompts written for %s generation with %s.

Rules:
- Fix grammar, articles and punctuation
- Replace informal phrasing such as "draw me" with "create"
- Keep every subject, object and detail the user wrote
- Do NOT add colors, styles, backgrounds, settings, moods or lighting the user did not ask for
- Do NOT add commentary, quotes or a preamble

Return ONLY the improved prompt.`, mediaType, targetModel)
}

// QuestionsInstructions asks the model for clarifying questions as a JSON array
func QuestionsInstructions(mediaType models.MediaType, targetModel string, missing []string) string {
	missingList := "none"
	if len(missing) > 0 {
		missingList = strings.Join(missing, ", ")
	}

	return fmt.Sprintf(`You help users complete prompts for %s generation with %s.

The prompt is missing: %s.

Ask up to %d short clarifying questions, most important first. Each question must let the user choose instead of assuming an answer.

Return ONLY a JSON array of objects with fields:
- id: short snake_case identifier
- question: the question text
- type: "select", "select_or_text" or "textarea"
- priority: "high", "medium" or "low"
- options: array of suggested answers (empty for textarea)`, mediaType, targetModel, missingList, MaxQuestions)
}

// BuildInstructions tells the model to compose a prompt from the user's answers only
func BuildInstructions(mediaType models.MediaType, targetModel string) string {
	return fmt.Sprintf(`You write the final prompt for %s generation with %s.

Rules:
- Start from the original prompt and the user's answers
- Use ONLY details the user supplied; never invent colors, styles, backgrounds or moods
- Skip answers marked as no preference
- Write one clear, well punctuated prompt

Return ONLY the final prompt.`, mediaType, targetModel)
}

// BuildInput renders the original prompt, answers and additional details as
// the user message for a build request
func BuildInput(prompt string, answers models.UserAnswers, additionalDetails string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original prompt: %s\n", prompt)

	if lines := AnswerLines(answers); len(lines) > 0 {
		b.WriteString("\nAnswers:\n")
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if strings.TrimSpace(additionalDetails) != "" {
		fmt.Fprintf(&b, "\nAdditional details: %s\n", strings.TrimSpace(additionalDetails))
	}
	return b.String()
}

// AnswerLines returns "id: text" for every answer that carries a preference, in id order
func AnswerLines(answers models.UserAnswers) []string {
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := []string{}
	for _, id := range ids {
		text := strings.TrimSpace(answers[id].Text())
		if text == "" || text == models.NoPreference || text == models.DefaultValue {
			continue
		}
		lines = append(lines, id+": "+text)
	}
	return lines
}

// CleanPrompt strips labels and wrapping quotes models sometimes add around a prompt
func CleanPrompt(response string) string {
	out := strings.TrimSpace(response)
	for _, label := range []string{"Improved prompt:", "Optimized prompt:", "Final prompt:", "Prompt:"} {
		if len(out) >= len(label) && strings.EqualFold(out[:len(label)], label) {
			out = strings.TrimSpace(out[len(label):])
		}
	}
	if len(out) >= 2 {
		first, last := out[0], out[len(out)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			out = strings.TrimSpace(out[1 : len(out)-1])
		}
	}
	return out
}

// ParseQuestions extracts the JSON array of questions from a model reply
func ParseQuestions(response string) ([]models.Question, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var questions []models.Question
	if err := json.Unmarshal([]byte(response[start:end+1]), &questions); err != nil {
		return nil, fmt.Errorf("failed to parse questions JSON: %w", err)
	}
	return NormalizeQuestions(questions), nil
}

// NormalizeQuestions drops unusable entries, fills defaults and caps the count
func NormalizeQuestions(in []models.Question) []models.Question {
	out := make([]models.Question, 0, len(in))
	seen := map[string]bool{}

	for _, q := range in {
		q.ID = strings.TrimSpace(q.ID)
		q.Question = strings.TrimSpace(q.Question)
		if q.ID == "" || q.Question == "" || seen[q.ID] {
			continue
		}
		seen[q.ID] = true

		switch q.Type {
		case "select", "select_or_text", "textarea":
		default:
			q.Type = "select_or_text"
		}
		switch q.Priority {
		case "high", "medium", "low":
		default:
			q.Priority = "medium"
		}
		if q.Type != "textarea" && !containsOption(q.Options, models.NoPreference) {
			q.Options = append(q.Options, models.NoPreference)
		}

		out = append(out, q)
		if len(out) == MaxQuestions {
			break
		}
	}
	return out
}

func containsOption(options []string, want string) bool {
	for _, o := range options {
		if o == want {
			return true
		}
	}
	return false
}
