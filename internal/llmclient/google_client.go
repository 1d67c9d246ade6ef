// internal/llmclient/google_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
)

// GoogleClient implements schemas.LLMClient on the Gemini API.
type GoogleClient struct {
	client     *genai.Client
	model      string
	timeout    time.Duration
	maxElapsed time.Duration
	logger     *zap.Logger
}

var _ schemas.LLMClient = (*GoogleClient)(nil)

// NewGoogleClient initializes the client. Endpoint overrides the API base URL.
func NewGoogleClient(ctx context.Context, cfg config.ClassifierConfig, logger *zap.Logger) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimSuffix(cfg.Endpoint, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GoogleClient{
		client:     client,
		model:      cfg.Model,
		timeout:    cfg.APITimeout,
		maxElapsed: cfg.MaxRetryElapsed,
		logger:     logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends the prompts and returns the text of the first candidate.
func (c *GoogleClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Options.Temperature)),
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Options.ForceJSONFormat || len(req.Fields) > 0 {
		genCfg.ResponseMIMEType = "application/json"
	}
	if len(req.Fields) > 0 {
		genCfg.ResponseSchema = responseSchema(req.Fields)
	}

	return generateWithRetry(ctx, c.logger, c.maxElapsed, isTransientGenai, func(ctx context.Context) (string, error) {
		callCtx, cancel := withOptionalTimeout(ctx, c.timeout)
		defer cancel()

		start := time.Now()
		resp, err := c.client.Models.GenerateContent(callCtx, c.model, genai.Text(req.UserPrompt), genCfg)
		if err != nil {
			return "", fmt.Errorf("gemini request failed: %w", err)
		}
		text := resp.Text()
		if text == "" {
			return "", fmt.Errorf("gemini returned no text for model %s", c.model)
		}

		fields := []zap.Field{zap.Duration("duration", time.Since(start))}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields, zap.Int32("prompt_tokens", u.PromptTokenCount), zap.Int32("total_tokens", u.TotalTokenCount))
		}
		c.logger.Debug("LLM generation complete.", fields...)
		return text, nil
	})
}

// Close implements schemas.LLMClient. genai clients hold no closable resources.
func (c *GoogleClient) Close() error { return nil }

func isTransientGenai(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return isTransientStatus(apiErr.Code)
	}
	return isTransientNetErr(err)
}

// responseSchema maps the shape's fields onto a Gemini object schema.
func responseSchema(fields []schemas.FieldSpec) *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(fields)),
	}
	for _, f := range fields {
		t := genai.TypeString
		if f.Type == schemas.FieldBoolean {
			t = genai.TypeBoolean
		}
		s.Properties[f.Name] = &genai.Schema{Type: t, Description: f.Description}
		s.PropertyOrdering = append(s.PropertyOrdering, f.Name)
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
