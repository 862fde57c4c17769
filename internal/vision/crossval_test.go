package vision

import (
	"math"
	"testing"

	"github.com/casaflow-io/casaflowgo/internal/extraction"
)

func TestScoreNilVisual(t *testing.T) {
	if s := Score(&extraction.ExtractionResult{DocConfidence: 1}, nil); s != 0 {
		t.Errorf("Nil visual must score 0, got %f", s)
	}
}

func TestScoreFullAgreement(t *testing.T) {
	visual := &ValidationResult{
		SignatureDetection: SignatureDetection{HasSignatures: true},
		VisualQuality:      VisualQuality{Readable: true, Score: 1.0},
		CrossValidation:    CrossValidation{TextMatchesVisual: true, Discrepancies: []string{}},
	}
	ext := &extraction.ExtractionResult{DocConfidence: 1.0}

	if s := Score(ext, visual); math.Abs(s-1.0) > 1e-9 {
		t.Errorf("Perfect evidence should score 1.0, got %f", s)
	}
}

func TestScoreWeights(t *testing.T) {
	// signatures only
	visual := &ValidationResult{
		SignatureDetection: SignatureDetection{HasSignatures: true},
		CrossValidation:    CrossValidation{Discrepancies: []string{"a", "b", "c"}},
	}
	if s := Score(nil, visual); s != 0.4 {
		t.Errorf("Signatures alone should contribute 0.4, got %f", s)
	}

	// two discrepancies earn half the agreement weight
	visual = &ValidationResult{
		CrossValidation: CrossValidation{Discrepancies: []string{"a", "b"}},
	}
	if s := Score(nil, visual); s != 0.15 {
		t.Errorf("Two discrepancies should earn half agreement (0.15), got %f", s)
	}

	// zero discrepancies earn it in full
	visual = &ValidationResult{
		CrossValidation: CrossValidation{Discrepancies: []string{}},
	}
	if s := Score(nil, visual); s != 0.3 {
		t.Errorf("Zero discrepancies should earn 0.3, got %f", s)
	}
}

func TestScoreMonotonicInSignatures(t *testing.T) {
	without := &ValidationResult{
		VisualQuality:   VisualQuality{Score: 0.8},
		CrossValidation: CrossValidation{Discrepancies: []string{"a"}},
	}
	with := &ValidationResult{
		SignatureDetection: SignatureDetection{HasSignatures: true},
		VisualQuality:      VisualQuality{Score: 0.8},
		CrossValidation:    CrossValidation{Discrepancies: []string{"a"}},
	}
	ext := &extraction.ExtractionResult{DocConfidence: 0.5}

	if Score(ext, with) <= Score(ext, without) {
		t.Error("Adding signature evidence must never lower the score")
	}
}
