// Package chatmodel constructs the LLM backend and adapts discovered
// tool schemas into the shape the model expects for function calling.
package chatmodel

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"mcpchat/internal/domain"
)

// New creates the chat model from configuration. An API key may be
// omitted when a baseURL points at a local OpenAI-compatible endpoint.
func New(ctx context.Context, config domain.ModelConfig) (model.ToolCallingChatModel, error) {
	if strings.TrimSpace(config.Model) == "" {
		return nil, fmt.Errorf("model name is required")
	}

	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		if envVar := strings.TrimSpace(config.APIKeyEnvVar); envVar != "" {
			apiKey = os.Getenv(envVar)
			if apiKey == "" {
				return nil, fmt.Errorf("API key not found in env var %s", envVar)
			}
		}
	}
	if apiKey == "" && strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("API key is required: set model.apiKey or model.apiKeyEnvVar, or point model.baseURL at a local endpoint")
	}

	provider := config.Provider
	switch provider {
	case domain.DefaultModelProvider, "":
		cfg := &openai.ChatModelConfig{
			Model:  config.Model,
			APIKey: apiKey,
		}
		if config.BaseURL != "" {
			cfg.BaseURL = config.BaseURL
		}
		return openai.NewChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
