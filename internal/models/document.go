package models

import (
	"time"
)

// Document is an ingested offer document (PDF). Content lives in the
// object store under StorageKey; the row is read-only after creation.
type Document struct {
	ID          string `gorm:"column:document_id;primaryKey;type:uuid;default:gen_random_uuid()" json:"documentId"`
	Filename    string `gorm:"column:filename;not null" json:"filename"`
	ContentType string `gorm:"column:content_type;default:'application/pdf'" json:"contentType"`
	StorageKey  string `gorm:"column:storage_key;uniqueIndex;not null" json:"storageKey"`
	SizeBytes   int64  `gorm:"column:size_bytes" json:"sizeBytes"`
	MessageID   string `gorm:"column:message_id;index" json:"messageId"` // inbound message this arrived on

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName specifies the table name
func (Document) TableName() string {
	return "documents"
}
