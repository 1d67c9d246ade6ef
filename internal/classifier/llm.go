// internal/classifier/llm.go
package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/llmutil"
)

// LLMClassifier asks a language model for a JSON object matching the
// requested shape.
type LLMClassifier struct {
	client      schemas.LLMClient
	temperature float64
	logger      *zap.Logger
}

var _ schemas.Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier wraps client.
func NewLLMClassifier(client schemas.LLMClient, temperature float64, logger *zap.Logger) *LLMClassifier {
	return &LLMClassifier{
		client:      client,
		temperature: temperature,
		logger:      logger.Named("classifier.llm"),
	}
}

// Classify implements schemas.Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, req schemas.ClassificationRequest, out interface{}) error {
	fields := req.Shape.Fields()
	if fields == nil {
		return fmt.Errorf("unknown output shape %q", req.Shape)
	}

	genReq := schemas.GenerationRequest{
		SystemPrompt: systemPrompt(req.Shape, fields),
		UserPrompt:   req.Prompt,
		Options: schemas.GenerationOptions{
			Temperature:     c.temperature,
			ForceJSONFormat: true,
		},
		Fields: fields,
	}

	text, err := c.client.Generate(ctx, genReq)
	if err != nil {
		return fmt.Errorf("classification (%s) failed: %w", req.Shape, err)
	}
	c.logger.Debug("Classifier answered.", zap.String("shape", string(req.Shape)), zap.String("answer", llmutil.Truncate(text, 300)))

	if err := llmutil.DecodeInto(text, out); err != nil {
		return fmt.Errorf("classification (%s) returned malformed output: %w", req.Shape, err)
	}
	if v, ok := out.(schemas.Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("classification (%s) returned an unusable answer: %w", req.Shape, err)
		}
	}
	return nil
}

// systemPrompt pins the model to a single JSON object with the shape's keys.
func systemPrompt(shape schemas.OutputShape, fields []schemas.FieldSpec) string {
	var b strings.Builder
	b.WriteString("You are a precise web navigation assistant. ")
	fmt.Fprintf(&b, "Respond with a single JSON object (%s) and nothing else. Keys:\n", shape)
	for _, f := range fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "- %q (%s, %s): %s\n", f.Name, f.Type, req, f.Description)
	}
	return b.String()
}
