package optimizer

import (
	"fmt"
	"log/slog"

	"github.com/zombar/promptscore/internal/config"
	"github.com/zombar/promptscore/internal/ollama"
	"github.com/zombar/promptscore/internal/openai"
)

// NewRewriter returns the configured LLM backend, or nil for rules only.
// An Ollama client that cannot be created degrades to rules; a broken
// OpenAI setup is an error since it needs an explicit key.
func NewRewriter(cfg config.LLMConfig, logger *slog.Logger) (Rewriter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Provider {
	case config.ProviderOllama:
		client, err := ollama.New(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			logger.Warn("failed to initialize Ollama client, falling back to rule-based optimization",
				"error", err,
				"ollama_url", cfg.OllamaURL,
				"ollama_model", cfg.OllamaModel,
			)
			return nil, nil
		}
		logger.Info("Ollama client initialized", "model", cfg.OllamaModel, "url", cfg.OllamaURL)
		return client, nil
	case config.ProviderOpenAI:
		client, err := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, fmt.Errorf("initialize openai client: %w", err)
		}
		logger.Info("OpenAI client initialized", "model", client.Model())
		return client, nil
	case config.ProviderNone, "":
		logger.Info("LLM disabled, using rule-based optimization")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
