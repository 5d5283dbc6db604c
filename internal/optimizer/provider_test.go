package optimizer

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/promptscore/internal/config"
)

func TestNewRewriter(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	tests := []struct {
		name     string
		cfg      config.LLMConfig
		wantName string
		wantErr  bool
	}{
		{"none", config.LLMConfig{Provider: config.ProviderNone}, "", false},
		{"empty", config.LLMConfig{}, "", false},
		{"ollama", config.LLMConfig{Provider: config.ProviderOllama, OllamaURL: "http://localhost:11434", OllamaModel: "llama3"}, "ollama", false},
		{"openai", config.LLMConfig{Provider: config.ProviderOpenAI, OpenAIAPIKey: "sk-test"}, "openai", false},
		{"openai without key", config.LLMConfig{Provider: config.ProviderOpenAI}, "", true},
		{"unknown", config.LLMConfig{Provider: "bard"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm, err := NewRewriter(tt.cfg, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantName == "" {
				assert.Nil(t, llm)
				return
			}
			require.NotNil(t, llm)
			assert.Equal(t, tt.wantName, llm.Name())
		})
	}
}
