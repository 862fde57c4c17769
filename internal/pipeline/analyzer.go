// Package pipeline runs inbound documents through the full intelligence
// chain: text extraction, form classification, tiered data extraction and,
// when a raster engine is present, visual validation with cross-scoring.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/casaflow-io/casaflowgo/internal/database"
	"github.com/casaflow-io/casaflowgo/internal/extraction"
	"github.com/casaflow-io/casaflowgo/internal/forms"
	"github.com/casaflow-io/casaflowgo/internal/models"
	"github.com/casaflow-io/casaflowgo/internal/pdftext"
	"github.com/casaflow-io/casaflowgo/internal/raster"
	"github.com/casaflow-io/casaflowgo/internal/vision"
)

// Uploader persists document bytes and returns the storage key
type Uploader interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Analyzer drives one document through classification, extraction and
// validation, persisting both the document record and its analysis.
type Analyzer struct {
	db           *database.DB
	storage      Uploader
	orchestrator *extraction.Orchestrator
	engine       *raster.Engine
	validator    *vision.Validator
	rasterOpts   raster.Options
}

// New builds an Analyzer. engine and validator may be nil; the pipeline
// then skips visual validation rather than failing.
func New(db *database.DB, storage Uploader, orchestrator *extraction.Orchestrator, engine *raster.Engine, validator *vision.Validator, rasterOpts raster.Options) *Analyzer {
	return &Analyzer{
		db:           db,
		storage:      storage,
		orchestrator: orchestrator,
		engine:       engine,
		validator:    validator,
		rasterOpts:   rasterOpts,
	}
}

// Input is one attachment pulled off an inbound message
type Input struct {
	Filename     string
	ContentType  string
	Data         []byte
	MessageID    string
	AttachmentID string
}

// Result bundles everything Analyze produced for one document
type Result struct {
	Document   *models.Document
	Analysis   *models.DocumentAnalysis
	Extraction *extraction.ExtractionResult
}

// Analyze runs the full chain on one attachment.
//
// An unrecognized document still gets a persisted analysis (with
// IsRecognizedForm false) so repeated deliveries of the same junk are cheap
// to answer. Extraction and validation only run on recognized forms.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Result, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("document %s is empty", in.Filename)
	}

	key := fmt.Sprintf("inbound/%s/%s", uuid.NewString(), in.Filename)
	if _, err := a.storage.UploadFile(ctx, key, in.Data, in.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	doc := &models.Document{
		Filename:    in.Filename,
		ContentType: in.ContentType,
		StorageKey:  key,
		SizeBytes:   int64(len(in.Data)),
		MessageID:   in.MessageID,
	}
	if err := a.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, fmt.Errorf("failed to persist document: %w", err)
	}

	text, err := pdftext.ExtractText(in.Data)
	if err != nil {
		log.Printf("⚠️ Text extraction failed for %s, classifying on empty text: %v", in.Filename, err)
		text = ""
	}

	detection := forms.Detect(text)
	relevance := forms.ScoreRelevance(in.Filename, in.ContentType, text)

	analysis := &models.DocumentAnalysis{
		DocumentID:       doc.ID,
		IsRecognizedForm: detection.IsRecognizedForm,
		FormType:         string(detection.FormType),
		FormConfidence:   detection.Confidence,
		Relevance:        relevance,
		AttachmentID:     in.AttachmentID,
	}
	if raw, err := json.Marshal(detection.Identifiers); err == nil {
		analysis.Identifiers = datatypes.JSON(raw)
	}

	if !detection.IsRecognizedForm {
		log.Printf("📄 %s not recognized as a standard form (confidence %d)", in.Filename, detection.Confidence)
		if err := a.db.WithContext(ctx).Create(analysis).Error; err != nil {
			return nil, fmt.Errorf("failed to persist analysis: %w", err)
		}
		return &Result{Document: doc, Analysis: analysis}, nil
	}

	ext, err := a.orchestrator.Extract(ctx, in.Data)
	if err != nil {
		return nil, fmt.Errorf("extraction failed for %s: %w", in.Filename, err)
	}
	analysis.StrategyUsed = string(ext.StrategyUsed)
	analysis.DocConfidence = ext.DocConfidence
	if raw, err := json.Marshal(ext); err == nil {
		analysis.Extraction = datatypes.JSON(raw)
	}

	a.validate(ctx, in, ext, analysis)

	if err := a.db.WithContext(ctx).Create(analysis).Error; err != nil {
		return nil, fmt.Errorf("failed to persist analysis: %w", err)
	}

	log.Printf("✅ Analyzed %s: form=%s strategy=%s confidence=%.2f",
		in.Filename, analysis.FormType, analysis.StrategyUsed, analysis.DocConfidence)
	return &Result{Document: doc, Analysis: analysis, Extraction: ext}, nil
}

// validate runs the visual pass when the raster engine and validator are
// both present. A missing engine degrades the pipeline, it never fails it:
// the analysis simply carries no visual section.
func (a *Analyzer) validate(ctx context.Context, in Input, ext *extraction.ExtractionResult, analysis *models.DocumentAnalysis) {
	if a.engine == nil || a.validator == nil {
		return
	}
	if err := a.engine.Available(); err != nil {
		log.Printf("⚠️ Raster engine unavailable, skipping visual validation: %v", err)
		return
	}

	pages, err := a.engine.Rasterize(in.Data, a.rasterOpts)
	if errors.Is(err, raster.ErrEngineUnavailable) {
		log.Printf("⚠️ Raster engine unavailable, skipping visual validation: %v", err)
		return
	}
	if err != nil {
		log.Printf("⚠️ Rasterization failed for %s, skipping visual validation: %v", in.Filename, err)
		return
	}

	visual, err := a.validator.Validate(ctx, pages, ext)
	if err != nil {
		log.Printf("⚠️ Visual validation failed for %s: %v", in.Filename, err)
		return
	}

	if raw, err := json.Marshal(visual); err == nil {
		analysis.Visual = datatypes.JSON(raw)
	}
	score := vision.Score(ext, visual)
	analysis.CrossValidation = &score
}

// MostRelevant picks the attachment analysis worth acting on when one
// message carries several documents: recognized forms first, then by
// relevance, then by extraction confidence.
func MostRelevant(results []*Result) *Result {
	var best *Result
	for _, r := range results {
		if r == nil || r.Analysis == nil {
			continue
		}
		if best == nil || moreRelevant(r.Analysis, best.Analysis) {
			best = r
		}
	}
	return best
}

func moreRelevant(a, b *models.DocumentAnalysis) bool {
	if a.IsRecognizedForm != b.IsRecognizedForm {
		return a.IsRecognizedForm
	}
	if a.Relevance != b.Relevance {
		return a.Relevance > b.Relevance
	}
	return a.DocConfidence > b.DocConfidence
}
