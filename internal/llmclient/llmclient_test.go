package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
)

// -- Test Setup Helpers --

func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func testClassifierConfig(provider, endpoint string) config.ClassifierConfig {
	return config.ClassifierConfig{
		Provider:        provider,
		Model:           "test-model",
		APIKey:          "test-api-key",
		Endpoint:        endpoint,
		APITimeout:      5 * time.Second,
		MaxRetryElapsed: 5 * time.Second,
	}
}

func pageAnalysisRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "You analyze web pages.",
		UserPrompt:   "Is this the login page?",
		Options:      schemas.GenerationOptions{Temperature: 0, ForceJSONFormat: true},
		Fields:       schemas.ShapePageAnalysis.Fields(),
	}
}

// -- OpenAI-compatible client --

func chatCompletionBody(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": content},
		}},
		"usage": map[string]interface{}{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(b)
}

func TestOpenAIClient_Generate(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletionBody(`{"is_page_reached": true}`))
	}))
	t.Cleanup(server.Close)

	logger, _ := setupTestLogger(t)
	client, err := NewOpenAIClient(testClassifierConfig(config.ProviderMistral, server.URL), MistralBaseURL, logger)
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), pageAnalysisRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"is_page_reached": true}`, out)

	assert.Equal(t, "test-model", captured["model"])
	format, ok := captured["response_format"].(map[string]interface{})
	require.True(t, ok, "response_format must be sent")
	assert.Equal(t, "json_object", format["type"])
	messages, ok := captured["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAIClient_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error": {"message": "overloaded"}}`)
			return
		}
		_, _ = io.WriteString(w, chatCompletionBody(`{"url": "https://example.com"}`))
	}))
	t.Cleanup(server.Close)

	logger, logs := setupTestLogger(t)
	client, err := NewOpenAIClient(testClassifierConfig(config.ProviderOpenAI, server.URL), OpenAIBaseURL, logger)
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), pageAnalysisRequest())
	require.NoError(t, err)
	assert.Contains(t, out, "example.com")
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("Transient LLM error, retrying.").Len())
}

func TestOpenAIClient_PermanentError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "bad key"}}`)
	}))
	t.Cleanup(server.Close)

	logger, _ := setupTestLogger(t)
	client, err := NewOpenAIClient(testClassifierConfig(config.ProviderOpenAI, server.URL), OpenAIBaseURL, logger)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), pageAnalysisRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	logger, _ := setupTestLogger(t)
	cfg := testClassifierConfig(config.ProviderOpenAI, "")
	cfg.APIKey = ""
	_, err := NewOpenAIClient(cfg, OpenAIBaseURL, logger)
	assert.Error(t, err)
}

// -- Gemini client --

func TestGoogleClient_Generate(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "models/test-model:generateContent")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"is_page_reached\": false}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 12, "totalTokenCount": 20}
		}`)
	}))
	t.Cleanup(server.Close)

	logger, _ := setupTestLogger(t)
	client, err := NewGoogleClient(context.Background(), testClassifierConfig(config.ProviderGemini, server.URL), logger)
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), pageAnalysisRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"is_page_reached": false}`, out)

	genCfg, ok := captured["generationConfig"].(map[string]interface{})
	require.True(t, ok, "generationConfig must be sent")
	assert.Equal(t, "application/json", genCfg["responseMimeType"])
	assert.NotNil(t, genCfg["responseSchema"])
}

func TestResponseSchema(t *testing.T) {
	s := responseSchema(schemas.ShapeChangeEmailSectionAnalysis.Fields())
	require.Contains(t, s.Properties, "is_page_reached")
	require.Contains(t, s.Properties, "next_action_location")
	assert.Equal(t, []string{"is_page_reached"}, s.Required)
	assert.Equal(t, []string{"is_page_reached", "next_action_location"}, s.PropertyOrdering)
}

// -- Shared helpers --

func TestIsTransientStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, isTransientStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, isTransientStatus(code), code)
	}
}

func TestGenerateWithRetry_StopsOnCancel(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	_, err := generateWithRetry(ctx, logger, time.Second, func(error) bool { return true }, func(context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestNewClient(t *testing.T) {
	logger, _ := setupTestLogger(t)

	c, err := NewClient(context.Background(), testClassifierConfig(config.ProviderMistral, ""), logger)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = NewClient(context.Background(), testClassifierConfig(config.ProviderGemini, ""), logger)
	require.NoError(t, err)
	assert.IsType(t, &GoogleClient{}, c)

	_, err = NewClient(context.Background(), testClassifierConfig("anthropic", ""), logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
}
