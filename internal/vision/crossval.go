package vision

import (
	"github.com/casaflow-io/casaflowgo/internal/extraction"
)

// cross-validation score weights. Signature presence dominates because it is
// the strongest signal that a real, executed document was analyzed.
const (
	weightSignatures = 0.4
	weightQuality    = 0.2
	weightAgreement  = 0.3
	weightExtraction = 0.1
)

// Score combines text-extraction confidence, signature presence and visual
// quality into one number in [0,1] expressing how far the textual and visual
// evidence agree. Downstream consumers should trust this, not the raw
// extraction confidence.
//
// Agreement earns full credit at zero discrepancies, half credit at two or
// fewer, nothing beyond that. The score is monotonically non-decreasing in
// signature presence.
func Score(ext *extraction.ExtractionResult, visual *ValidationResult) float64 {
	if visual == nil {
		return 0
	}

	score := 0.0

	if visual.SignatureDetection.HasSignatures {
		score += weightSignatures
	}

	score += weightQuality * visual.VisualQuality.Score

	switch n := len(visual.CrossValidation.Discrepancies); {
	case n == 0:
		score += weightAgreement
	case n <= 2:
		score += weightAgreement / 2
	}

	if ext != nil {
		score += weightExtraction * ext.DocConfidence
	}

	return score
}
