package extraction

import (
	"context"
	"encoding/json"

	"github.com/casaflow-io/casaflowgo/internal/utils"
)

// ContentGenerator is the narrow boundary to the generative vision model.
// Prompt construction and response parsing stay on this side of it.
type ContentGenerator interface {
	GenerateDocument(ctx context.Context, prompt, mimeType string, data []byte) (string, error)
}

// VisionTier extracts the canonical schema by sending the whole document to
// a generative vision model with a structured-output instruction.
type VisionTier struct {
	gen ContentGenerator
}

// NewVisionTier creates the vision extraction tier
func NewVisionTier(gen ContentGenerator) *VisionTier {
	return &VisionTier{gen: gen}
}

// Name identifies the tier
func (t *VisionTier) Name() string { return string(StrategyVision) }

// Extract sends the document plus the schema prompt and parses the model's
// JSON reply. Markdown code fences are stripped first; a reply that still
// isn't JSON is an InvalidModelResponseError, not retried here. Confidence
// is the schema fill rate, independent of anything the model claims.
func (t *VisionTier) Extract(ctx context.Context, doc []byte) (*ExtractionResult, error) {
	raw, err := t.gen.GenerateDocument(ctx, VisionExtractionPrompt, "application/pdf", doc)
	if err != nil {
		return nil, &ExternalServiceError{Service: "vision model", Err: err}
	}

	cleaned := utils.SanitizeJSON(raw)

	var result ExtractionResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, &InvalidModelResponseError{Raw: raw, Err: err}
	}

	result.StrategyUsed = StrategyVision
	result.DocConfidence = result.Confidence()
	return &result, nil
}
