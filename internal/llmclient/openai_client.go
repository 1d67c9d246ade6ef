// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
)

// Base URLs of the OpenAI-compatible providers.
const (
	OpenAIBaseURL  = "https://api.openai.com/v1"
	MistralBaseURL = "https://api.mistral.ai/v1"
)

// OpenAIClient implements schemas.LLMClient against any OpenAI-compatible
// chat completions API.
type OpenAIClient struct {
	client     openai.Client
	model      string
	timeout    time.Duration
	maxElapsed time.Duration
	logger     *zap.Logger
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the client. baseURL applies when cfg.Endpoint is empty.
func NewOpenAIClient(cfg config.ClassifierConfig, baseURL string, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for provider %q", cfg.Provider)
	}
	if cfg.Endpoint != "" {
		baseURL = cfg.Endpoint
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		// Retries are ours.
		option.WithMaxRetries(0),
	)
	return &OpenAIClient{
		client:     client,
		model:      cfg.Model,
		timeout:    cfg.APITimeout,
		maxElapsed: cfg.MaxRetryElapsed,
		logger:     logger.Named("llm_client." + cfg.Provider),
	}, nil
}

// Generate sends a system and user message and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(req.Options.Temperature),
	}
	if req.Options.ForceJSONFormat || len(req.Fields) > 0 {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	return generateWithRetry(ctx, c.logger, c.maxElapsed, isTransientOpenAI, func(ctx context.Context) (string, error) {
		callCtx, cancel := withOptionalTimeout(ctx, c.timeout)
		defer cancel()

		start := time.Now()
		resp, err := c.client.Chat.Completions.New(callCtx, params)
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return "", fmt.Errorf("chat completion returned no content")
		}
		c.logger.Debug("LLM generation complete.",
			zap.Duration("duration", time.Since(start)),
			zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int64("total_tokens", resp.Usage.TotalTokens),
		)
		return resp.Choices[0].Message.Content, nil
	})
}

// Close implements schemas.LLMClient.
func (c *OpenAIClient) Close() error { return nil }

func isTransientOpenAI(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return isTransientStatus(apiErr.StatusCode)
	}
	return isTransientNetErr(err)
}
