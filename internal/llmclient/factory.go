// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
)

// NewClient creates the LLMClient for the configured provider.
func NewClient(ctx context.Context, cfg config.ClassifierConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGoogleClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, OpenAIBaseURL, logger)
	case config.ProviderMistral:
		return NewOpenAIClient(cfg, MistralBaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI, config.ProviderMistral)
	}
}
