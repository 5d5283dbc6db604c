package optimizer

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zombar/promptscore/internal/analyzer"
	"github.com/zombar/promptscore/internal/models"
)

// SourceRules marks results produced without an LLM
const SourceRules = "rules"

var informalRequest = regexp.MustCompile(`(?i)\b(draw|make|create)\s+me\s+`)

// articleNouns are the subject nouns the analyzer expects an article before
var articleNouns = map[string]bool{
	"cat": true, "dog": true, "image": true, "picture": true, "photo": true,
}

// articleTriggers are words after which a bare subject noun gets an article
var articleTriggers = map[string]bool{
	"create": true, "draw": true, "make": true, "generate": true, "of": true,
	"with": true, "and": true, "show": true, "render": true, "paint": true,
	"design": true, "for": true, "about": true, "featuring": true,
}

// Rules is the deterministic Rewriter used when no LLM is configured or the
// LLM fails. It never introduces words the user did not write.
type Rules struct{}

// Name identifies the rule-based rewriter
func (Rules) Name() string {
	return SourceRules
}

// RewritePrompt applies Rewrite
func (Rules) RewritePrompt(_ context.Context, prompt string, _ models.MediaType, _ string) (string, error) {
	return Rewrite(prompt), nil
}

// GenerateQuestions applies QuestionsFor
func (Rules) GenerateQuestions(_ context.Context, _ string, mediaType models.MediaType, _ string, missing []string) ([]models.Question, error) {
	return QuestionsFor(missing, mediaType), nil
}

// BuildPrompt applies Compose
func (Rules) BuildPrompt(_ context.Context, prompt string, _ models.MediaType, _ string, answers models.UserAnswers, additionalDetails string) (string, error) {
	return Compose(prompt, answers, additionalDetails), nil
}

// Rewrite fixes the mechanical problems the analyzer reports: informal
// "draw me" requests, bare subject nouns, capitalisation and a missing
// terminal period.
func Rewrite(prompt string) string {
	text := strings.Join(strings.Fields(prompt), " ")
	if text == "" {
		return ""
	}

	text = informalRequest.ReplaceAllString(text, "create ")
	text = addArticles(text)
	return finishSentence(text)
}

func addArticles(text string) string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words)+2)

	for i, word := range words {
		bare := strings.ToLower(strings.TrimRightFunc(word, unicode.IsPunct))
		if articleNouns[bare] {
			prev := ""
			if i > 0 {
				prev = strings.ToLower(words[i-1])
			}
			// a previous word ending in punctuation starts a new clause
			if i == 0 || (articleTriggers[prev] && !strings.HasSuffix(prev, ",")) {
				out = append(out, indefiniteArticle(bare))
			}
		}
		out = append(out, word)
	}
	return strings.Join(out, " ")
}

func indefiniteArticle(noun string) string {
	if noun != "" && strings.ContainsRune("aeiou", rune(noun[0])) {
		return "an"
	}
	return "a"
}

// finishSentence capitalises the first letter and ensures terminal punctuation
func finishSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	r, size := utf8.DecodeRuneInString(text)
	text = string(unicode.ToUpper(r)) + text[size:]

	last, _ := utf8.DecodeLastRuneInString(text)
	if !strings.ContainsRune(".!?", last) {
		text = strings.TrimRightFunc(text, func(r rune) bool { return r == ',' || r == ';' || r == ':' })
		text += "."
	}
	return text
}

// questionTemplate describes the rule-based question for one missing element
type questionTemplate struct {
	question string
	kind     string
	priority string
	options  []string
}

var questionTemplates = map[string]questionTemplate{
	analyzer.ElementStyle: {
		question: "What visual style should it have?",
		kind:     "select_or_text",
		priority: "high",
		options:  []string{"photorealistic", "cartoon", "watercolor", "oil painting", "digital art", "minimalist"},
	},
	analyzer.ElementComposition: {
		question: "How should the subject be framed?",
		kind:     "select_or_text",
		priority: "medium",
		options:  []string{"centered", "close-up", "full body", "portrait", "landscape"},
	},
	analyzer.ElementBackground: {
		question: "Where should the scene take place?",
		kind:     "select_or_text",
		priority: "medium",
		options:  []string{"indoor", "outdoor", "studio", "garden", "city", "forest", "beach"},
	},
	analyzer.ElementQuality: {
		question: "What level of quality or detail do you need?",
		kind:     "select_or_text",
		priority: "low",
		options:  []string{"high quality", "detailed", "professional", "4k"},
	},
	analyzer.ElementTone: {
		question: "What tone should the writing have?",
		kind:     "select_or_text",
		priority: "high",
		options:  []string{"professional", "casual", "formal", "friendly", "humorous"},
	},
	analyzer.ElementFormat: {
		question: "What format should the output use?",
		kind:     "select_or_text",
		priority: "medium",
		options:  []string{"paragraph", "list", "bullet points", "essay", "article"},
	},
	analyzer.ElementContext: {
		question: "Who is the audience and what is it for?",
		kind:     "textarea",
		priority: "low",
	},
	analyzer.ElementDuration: {
		question: "How long should it be?",
		kind:     "select_or_text",
		priority: "high",
		options:  []string{"15 seconds", "30 seconds", "1 minute", "3 minutes"},
	},
	analyzer.ElementTechnicalSpecs: {
		question: "Any technical requirements?",
		kind:     "select_or_text",
		priority: "low",
		options:  []string{"hd", "4k", "24 fps", "60 fps"},
	},
}

// QuestionsFor returns one clarifying question per missing element, in the
// analyzer's element order
func QuestionsFor(missing []string, _ models.MediaType) []models.Question {
	questions := make([]models.Question, 0, len(missing))
	for _, element := range missing {
		tmpl, ok := questionTemplates[element]
		if !ok {
			continue
		}

		q := models.Question{
			ID:       element,
			Question: tmpl.question,
			Type:     tmpl.kind,
			Priority: tmpl.priority,
		}
		if tmpl.kind != "textarea" {
			q.Options = append(append([]string{}, tmpl.options...), models.NoPreference)
		}
		questions = append(questions, q)
	}
	return questions
}

// fragmentFormats phrase an answer for a known question id
var fragmentFormats = map[string]string{
	analyzer.ElementStyle:       "%s style",
	analyzer.ElementComposition: "%s composition",
	analyzer.ElementBackground:  "set in %s",
}

// Compose builds a prompt from the original plus the user's answers and
// additional details. Only text the user supplied is added.
func Compose(prompt string, answers models.UserAnswers, additionalDetails string) string {
	base := strings.TrimRight(Rewrite(prompt), ".!?")

	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := []string{base}
	for _, id := range ids {
		text := strings.TrimSpace(answers[id].Text())
		if text == "" || text == models.NoPreference || text == models.DefaultValue {
			continue
		}
		text = strings.TrimRight(text, ".!?,;: ")
		if format, ok := fragmentFormats[id]; ok {
			text = strings.Replace(format, "%s", text, 1)
		}
		parts = append(parts, text)
	}

	if details := strings.TrimRight(strings.TrimSpace(additionalDetails), ".!?,;: "); details != "" {
		parts = append(parts, details)
	}

	return finishSentence(strings.Join(parts, ", "))
}
