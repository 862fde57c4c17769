package models

import (
	"time"

	"gorm.io/datatypes"
)

// OfferStatus defines possible offer lifecycle states
type OfferStatus string

const (
	OfferStatusPendingReview     OfferStatus = "PENDING_REVIEW"
	OfferStatusAwaitingSignature OfferStatus = "AWAITING_SELLER_SIGNATURE"
	OfferStatusAccepted          OfferStatus = "ACCEPTED"
	OfferStatusDeclined          OfferStatus = "DECLINED"
	OfferStatusCountered         OfferStatus = "COUNTERED"
	OfferStatusExpired           OfferStatus = "EXPIRED"
	OfferStatusSuperseded        OfferStatus = "SUPERSEDED"
)

// IsTerminal reports whether the status can never be left again
func (s OfferStatus) IsTerminal() bool {
	switch s {
	case OfferStatusAccepted, OfferStatusDeclined, OfferStatusExpired, OfferStatusSuperseded:
		return true
	}
	return false
}

// MessageClassification is the inbound-message classification produced by
// the (external) email pipeline
type MessageClassification string

const (
	ClassificationNewOffer     MessageClassification = "NEW_OFFER"
	ClassificationUpdatedOffer MessageClassification = "UPDATED_OFFER"
	ClassificationAmendment    MessageClassification = "AMENDMENT"
)

// Offer represents a purchase offer on a listing. All writes to Status go
// through the state machine in internal/offers; no other code path may
// mutate it.
type Offer struct {
	ID        string `gorm:"column:offer_id;primaryKey;type:uuid;default:gen_random_uuid()" json:"offerId"`
	ListingID string `gorm:"column:listing_id;not null;index:idx_offers_listing_buyer" json:"listingId"`
	BuyerID   string `gorm:"column:buyer_id;not null;index:idx_offers_listing_buyer" json:"buyerId"`
	ThreadID  string `gorm:"column:thread_id;index" json:"threadId"`
	MessageID string `gorm:"column:message_id;uniqueIndex" json:"messageId"` // source message, idempotency key

	BuyerName  string `gorm:"column:buyer_name" json:"buyerName"`
	BuyerEmail string `gorm:"column:buyer_email" json:"buyerEmail"`

	Status       OfferStatus `gorm:"column:status;default:'PENDING_REVIEW';index" json:"status"`
	StatusReason string      `gorm:"column:status_reason" json:"statusReason,omitempty"`

	Price       float64        `gorm:"column:price" json:"price"`
	Deposit     float64        `gorm:"column:deposit" json:"deposit"`
	ClosingDate *time.Time     `gorm:"column:closing_date" json:"closingDate,omitempty"`
	ExpiryDate  *time.Time     `gorm:"column:expiry_date;index" json:"expiryDate,omitempty"`
	Conditions  datatypes.JSON `gorm:"column:conditions;type:jsonb" json:"conditions,omitempty"`

	AnalysisID          string `gorm:"column:analysis_id;index" json:"analysisId"`
	OriginalDocumentKey string `gorm:"column:original_document_key" json:"originalDocumentKey"`
	SignedDocumentKey   string `gorm:"column:signed_document_key" json:"signedDocumentKey,omitempty"`

	SigningRequestID string     `gorm:"column:signing_request_id;index" json:"signingRequestId,omitempty"`
	SignatureID      string     `gorm:"column:signature_id" json:"signatureId,omitempty"`
	SellerSignedAt   *time.Time `gorm:"column:seller_signed_at" json:"sellerSignedAt,omitempty"`
	BuyerSignedAt    *time.Time `gorm:"column:buyer_signed_at" json:"buyerSignedAt,omitempty"`

	DeclineReason string `gorm:"column:decline_reason" json:"declineReason,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName specifies the table name
func (Offer) TableName() string {
	return "offers"
}
