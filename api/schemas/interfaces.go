package schemas

import (
	"context"
	"encoding/json"
	"time"
)

// -- Browser Driver Interface --

// BrowserDriver is the narrow set of page operations the navigation flow needs.
// Every blocking call takes its own timeout (or relies on the context deadline)
// so callers can turn a stuck page into a recorded soft failure instead of a hang.
//
//go:generate mockery --name BrowserDriver --output ../../internal/mocks --outpkg mocks
type BrowserDriver interface {
	// Navigate loads url and waits according to the strategy.
	Navigate(ctx context.Context, url string, wait WaitStrategy) error
	// CurrentURL reports the location of the active page.
	CurrentURL(ctx context.Context) (string, error)
	// EvaluateScript runs a JavaScript function expression with the given
	// arguments and returns its JSON-serialized result.
	EvaluateScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error)
	Click(ctx context.Context, selector string, timeout time.Duration) error       // Clicks the first element matching a CSS selector.
	ClickByText(ctx context.Context, text string, timeout time.Duration) error     // Clicks the first link/button whose text contains text.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error // Replaces the value of an input.
	WaitForLoad(ctx context.Context, timeout time.Duration) error                 // Waits for the DOM to be ready.
	WaitIdle(ctx context.Context, timeout time.Duration) error                    // Waits for the page to settle.
	// Close tears down the page and the browser process behind it.
	Close(ctx context.Context) error
}

// -- Classifier Interface --

// Classifier turns a prompt plus a raw page description into a structured
// judgment. Implementations unmarshal their answer into out, which is always a
// pointer to the struct matching req.Shape.
type Classifier interface {
	Classify(ctx context.Context, req ClassificationRequest, out interface{}) error
}

// -- Search Interface --

// SearchProvider returns candidate URLs for a free-text query, most relevant first.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// -- LLM Client Schemas & Interface --

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts and the expected response structure.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
	// Fields, when set, describes the JSON object the model must return.
	// Providers that support schema-constrained output use it directly.
	Fields []FieldSpec `json:"fields,omitempty"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
