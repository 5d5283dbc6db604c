package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/zombar/promptscore/internal/llm"
	"github.com/zombar/promptscore/internal/models"
)

const (
	DefaultModel     = "gpt-4o-mini"
	DefaultTimeout   = 60 * time.Second
	maxOutputTokens  = 1200
	maxRetryAttempts = 3
)

// promptResponse is the structured reply for rewrite and build requests
type promptResponse struct {
	Prompt string `json:"prompt" jsonschema:"required,description=The improved prompt text only"`
}

// questionsResponse is the structured reply for question generation
type questionsResponse struct {
	Questions []questionItem `json:"questions" jsonschema:"required"`
}

type questionItem struct {
	ID       string   `json:"id" jsonschema:"required,description=Short snake_case identifier"`
	Question string   `json:"question" jsonschema:"required"`
	Type     string   `json:"type" jsonschema:"required,enum=select,enum=select_or_text,enum=textarea"`
	Priority string   `json:"priority" jsonschema:"required,enum=high,enum=medium,enum=low"`
	Options  []string `json:"options" jsonschema:"required"`
}

var (
	promptSchema    = GenerateSchema[promptResponse]()
	questionsSchema = GenerateSchema[questionsResponse]()
)

// Client calls the OpenAI Responses API with strict JSON output
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger

	// waits between attempts; replaced in tests
	rateLimitWaits   []time.Duration
	serverErrorWaits []time.Duration
}

// New creates a new OpenAI client
func New(apiKey, model string, opts ...option.RequestOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &Client{
		client:           &client,
		model:            model,
		timeout:          DefaultTimeout,
		logger:           slog.Default(),
		rateLimitWaits:   []time.Duration{20 * time.Second, 40 * time.Second, 60 * time.Second},
		serverErrorWaits: []time.Duration{2 * time.Second, 10 * time.Second, 30 * time.Second},
	}, nil
}

// Name identifies the provider in logs, metrics and optimization results
func (c *Client) Name() string {
	return "openai"
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// RewritePrompt fixes grammar and structure of prompt without adding details
func (c *Client) RewritePrompt(ctx context.Context, prompt string, mediaType models.MediaType, targetModel string) (string, error) {
	var out promptResponse
	err := c.generate(ctx, "RewrittenPrompt", "Rewritten prompt JSON", promptSchema,
		llm.RewriteInstructions(mediaType, targetModel), prompt, &out)
	if err != nil {
		return "", err
	}

	rewritten := llm.CleanPrompt(out.Prompt)
	if rewritten == "" {
		return "", errors.New("openai: empty rewrite returned")
	}
	return rewritten, nil
}

// GenerateQuestions asks the model for clarifying questions about prompt
func (c *Client) GenerateQuestions(ctx context.Context, prompt string, mediaType models.MediaType, targetModel string, missing []string) ([]models.Question, error) {
	var out questionsResponse
	err := c.generate(ctx, "ClarifyingQuestions", "Clarifying questions JSON", questionsSchema,
		llm.QuestionsInstructions(mediaType, targetModel, missing), prompt, &out)
	if err != nil {
		return nil, err
	}

	questions := make([]models.Question, 0, len(out.Questions))
	for _, q := range out.Questions {
		questions = append(questions, models.Question{
			ID:       q.ID,
			Question: q.Question,
			Type:     q.Type,
			Priority: q.Priority,
			Options:  q.Options,
		})
	}

	questions = llm.NormalizeQuestions(questions)
	if len(questions) == 0 {
		return nil, errors.New("openai: no usable questions returned")
	}
	return questions, nil
}

// BuildPrompt composes the final prompt from the user's answers
func (c *Client) BuildPrompt(ctx context.Context, prompt string, mediaType models.MediaType, targetModel string, answers models.UserAnswers, additionalDetails string) (string, error) {
	var out promptResponse
	err := c.generate(ctx, "BuiltPrompt", "Final prompt JSON", promptSchema,
		llm.BuildInstructions(mediaType, targetModel), llm.BuildInput(prompt, answers, additionalDetails), &out)
	if err != nil {
		return "", err
	}

	built := llm.CleanPrompt(out.Prompt)
	if built == "" {
		return "", errors.New("openai: empty prompt returned")
	}
	return built, nil
}

func (c *Client) generate(ctx context.Context, name, description string, schema map[string]interface{}, instructions, input string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        name,
			Schema:      schema,
			Strict:      openai.Bool(true),
			Description: openai.String(description),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(maxOutputTokens),
		Instructions:    openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return fmt.Errorf("openai %s request failed: %w", name, err)
	}

	if err := decodeModelJSON(resp.OutputText(), out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, params responses.ResponseNewParams) (*responses.Response, error) {
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		resp, err := c.client.Responses.New(ctx, params)
		if err == nil {
			return resp, nil
		}

		var wait time.Duration
		switch {
		case isRateLimitError(err):
			wait = c.rateLimitWaits[attempt]
		case isServerError(err):
			wait = c.serverErrorWaits[attempt]
		default:
			return nil, err
		}
		if attempt == maxRetryAttempts-1 {
			return nil, err
		}

		c.logger.Warn("openai request failed, retrying",
			"model", c.model,
			"attempt", attempt+1,
			"wait", wait.String(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues", maxRetryAttempts)
}

// decodeModelJSON unmarshals a model reply, tolerating surrounding code fences
func decodeModelJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start > 0 {
		text = text[start:]
	}
	if end := strings.LastIndex(text, "}"); end >= 0 && end < len(text)-1 {
		text = text[:end+1]
	}
	if text == "" {
		return errors.New("empty response")
	}
	return json.Unmarshal([]byte(text), out)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
