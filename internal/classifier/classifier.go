// internal/classifier/classifier.go
package classifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/llmclient"
)

// New builds the classifier selected by cfg.Provider. The returned close
// function releases the underlying LLM client, if any.
func New(ctx context.Context, cfg config.ClassifierConfig, logger *zap.Logger) (schemas.Classifier, func() error, error) {
	if cfg.Provider == config.ProviderStub {
		return NewStubClassifier(logger), func() error { return nil }, nil
	}

	client, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewLLMClassifier(client, cfg.Temperature, logger), client.Close, nil
}
