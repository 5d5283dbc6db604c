package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/zombar/promptscore/internal/llm"
	"github.com/zombar/promptscore/internal/models"
)

const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "gpt-oss:20b"
	DefaultTimeout = 120 * time.Second
)

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a new Ollama client
func New(ollamaURL, model string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Client{
		client:  api.NewClient(baseURL, http.DefaultClient),
		model:   model,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}, nil
}

// Name identifies the provider in logs, metrics and optimization results
func (c *Client) Name() string {
	return "ollama"
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// GenerateResponse generates a response from the LLM
func (c *Client) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("ollama request", "model", c.model, "timeout", c.timeout.String(), "prompt_length", len(prompt))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: new(bool), // false
	}

	var response strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	result := strings.TrimSpace(response.String())
	c.logger.Debug("ollama response", "model", c.model, "response_length", len(result))
	return result, nil
}

// RewritePrompt fixes grammar and structure of prompt without adding details
func (c *Client) RewritePrompt(ctx context.Context, prompt string, mediaType models.MediaType, targetModel string) (string, error) {
	response, err := c.GenerateResponse(ctx, rewritePrompt(prompt, mediaType, targetModel))
	if err != nil {
		return "", err
	}

	rewritten := llm.CleanPrompt(response)
	if rewritten == "" {
		return "", fmt.Errorf("empty rewrite returned")
	}
	return rewritten, nil
}

// GenerateQuestions asks the model for clarifying questions about prompt
func (c *Client) GenerateQuestions(ctx context.Context, prompt string, mediaType models.MediaType, targetModel string, missing []string) ([]models.Question, error) {
	full := fmt.Sprintf("%s\n\nPrompt:\n%s\n\nQuestions (JSON array):",
		llm.QuestionsInstructions(mediaType, targetModel, missing), prompt)

	response, err := c.GenerateResponse(ctx, full)
	if err != nil {
		return nil, err
	}

	questions, err := llm.ParseQuestions(response)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("no usable questions in response")
	}
	return questions, nil
}

// BuildPrompt composes the final prompt from the user's answers
func (c *Client) BuildPrompt(ctx context.Context, prompt string, mediaType models.MediaType, targetModel string, answers models.UserAnswers, additionalDetails string) (string, error) {
	full := fmt.Sprintf("%s\n\n%s\nFinal prompt:",
		llm.BuildInstructions(mediaType, targetModel), llm.BuildInput(prompt, answers, additionalDetails))

	response, err := c.GenerateResponse(ctx, full)
	if err != nil {
		return "", err
	}

	built := llm.CleanPrompt(response)
	if built == "" {
		return "", fmt.Errorf("empty prompt returned")
	}
	return built, nil
}

func rewritePrompt(prompt string, mediaType models.MediaType, targetModel string) string {
	return fmt.Sprintf("%s\n\nPrompt:\n%s\n\nImproved prompt:",
		llm.RewriteInstructions(mediaType, targetModel), prompt)
}
