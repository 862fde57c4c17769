package models

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentAnalysis is the persisted outcome of running a document through
// the intelligence pipeline: form detection, tiered extraction and, when
// rasterization was available, visual validation. Created once per document;
// immutable afterwards except for the owning attachment back-reference.
type DocumentAnalysis struct {
	ID         string `gorm:"column:analysis_id;primaryKey;type:uuid;default:gen_random_uuid()" json:"analysisId"`
	DocumentID string `gorm:"column:document_id;uniqueIndex;not null" json:"documentId"`

	// Form detection
	IsRecognizedForm bool           `gorm:"column:is_recognized_form;index" json:"isRecognizedForm"`
	FormType         string         `gorm:"column:form_type;index" json:"formType"`
	FormConfidence   int            `gorm:"column:form_confidence" json:"formConfidence"` // 0-100
	Identifiers      datatypes.JSON `gorm:"column:identifiers;type:jsonb" json:"identifiers"`

	// Extraction
	StrategyUsed  string         `gorm:"column:strategy_used" json:"strategyUsed"` // acroform | vision
	DocConfidence float64        `gorm:"column:doc_confidence" json:"docConfidence"`
	Extraction    datatypes.JSON `gorm:"column:extraction;type:jsonb" json:"extraction"`

	// Visual validation (null when the raster engine was unavailable)
	Visual          datatypes.JSON `gorm:"column:visual;type:jsonb" json:"visual,omitempty"`
	CrossValidation *float64       `gorm:"column:cross_validation" json:"crossValidation,omitempty"`

	// Relevance ranks multiple attachments on one message (0-100)
	Relevance    int    `gorm:"column:relevance" json:"relevance"`
	AttachmentID string `gorm:"column:attachment_id;index" json:"attachmentId"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName specifies the table name
func (DocumentAnalysis) TableName() string {
	return "document_analyses"
}
