package extraction

import (
	"context"
	"errors"
	"log"
)

// Tier is one extraction strategy. Tiers are independently testable and
// substitutable; the orchestrator only sees this interface.
type Tier interface {
	Name() string
	Extract(ctx context.Context, doc []byte) (*ExtractionResult, error)
}

// Orchestrator runs the extraction tiers in a fixed fallback order and
// stops at the first result whose confidence clears the acceptance
// threshold. It never inflates a tier's confidence.
type Orchestrator struct {
	acroform  Tier
	vision    Tier
	threshold float64
}

// NewOrchestrator wires the available tiers. Either may be nil when the
// corresponding capability is not configured.
func NewOrchestrator(acroform, vision Tier, acceptThreshold float64) *Orchestrator {
	return &Orchestrator{
		acroform:  acroform,
		vision:    vision,
		threshold: acceptThreshold,
	}
}

// Extract runs the fallback chain: AcroForm first, vision second.
//
// A document with zero native fields skips the AcroForm tier entirely. A
// document whose fields exist but are mostly empty (fill rate at or below
// the threshold) also falls through, because unfilled templates are common
// and a weak native result must not mask a scanned copy of the same form.
// A vision-tier failure propagates; there is nowhere safer to degrade to.
func (o *Orchestrator) Extract(ctx context.Context, doc []byte) (*ExtractionResult, error) {
	if o.acroform == nil && o.vision == nil {
		return nil, &ConfigurationError{Capability: "extraction tier (acroform or vision)"}
	}

	if o.acroform != nil {
		result, err := o.acroform.Extract(ctx, doc)
		switch {
		case errors.Is(err, ErrNoFormFields):
			// not a failure, the tier simply does not apply
		case err != nil:
			log.Printf("⚠️ AcroForm tier failed, falling back to vision: %v", err)
		case result.DocConfidence > o.threshold:
			log.Printf("✅ AcroForm tier accepted (confidence %.2f)", result.DocConfidence)
			return result, nil
		default:
			log.Printf("📄 AcroForm fill rate %.2f at or below %.2f, falling through to vision",
				result.DocConfidence, o.threshold)
		}
	}

	if o.vision == nil {
		return nil, &ConfigurationError{Capability: "vision extraction (no model credentials)"}
	}

	return o.vision.Extract(ctx, doc)
}
