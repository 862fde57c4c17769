package offers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/casaflow-io/casaflowgo/internal/database"
	"github.com/casaflow-io/casaflowgo/internal/models"
)

// Store abstracts offer persistence so state-machine behavior is testable
// without a live database.
type Store interface {
	ByID(ctx context.Context, id string) (*models.Offer, error)
	ByMessageID(ctx context.Context, messageID string) (*models.Offer, error)
	BySigningRequest(ctx context.Context, requestID string) (*models.Offer, error)
	ActiveForListingBuyer(ctx context.Context, listingID, buyerID string) (*models.Offer, error)
	PendingOnThread(ctx context.Context, threadID string) ([]*models.Offer, error)
	DueForExpiry(ctx context.Context, now time.Time) ([]*models.Offer, error)
	Create(ctx context.Context, offer *models.Offer) error
	Save(ctx context.Context, offer *models.Offer) error
}

var activeStatuses = []models.OfferStatus{
	models.OfferStatusPendingReview,
	models.OfferStatusAwaitingSignature,
	models.OfferStatusCountered,
}

// GormStore is the PostgreSQL-backed store
type GormStore struct {
	db *database.DB
}

// NewGormStore creates the database-backed offer store
func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ByID(ctx context.Context, id string) (*models.Offer, error) {
	var offer models.Offer
	err := s.db.WithContext(ctx).First(&offer, "offer_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (s *GormStore) ByMessageID(ctx context.Context, messageID string) (*models.Offer, error) {
	var offer models.Offer
	err := s.db.WithContext(ctx).First(&offer, "message_id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (s *GormStore) BySigningRequest(ctx context.Context, requestID string) (*models.Offer, error) {
	var offer models.Offer
	err := s.db.WithContext(ctx).First(&offer, "signing_request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (s *GormStore) ActiveForListingBuyer(ctx context.Context, listingID, buyerID string) (*models.Offer, error) {
	var offer models.Offer
	err := s.db.WithContext(ctx).
		Where("listing_id = ? AND buyer_id = ? AND status IN ?", listingID, buyerID, activeStatuses).
		Order("created_at DESC").
		First(&offer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (s *GormStore) PendingOnThread(ctx context.Context, threadID string) ([]*models.Offer, error) {
	var found []*models.Offer
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND status = ?", threadID, models.OfferStatusPendingReview).
		Find(&found).Error
	return found, err
}

func (s *GormStore) DueForExpiry(ctx context.Context, now time.Time) ([]*models.Offer, error) {
	var found []*models.Offer
	err := s.db.WithContext(ctx).
		Where("status IN ? AND expiry_date IS NOT NULL AND expiry_date < ?",
			[]models.OfferStatus{models.OfferStatusPendingReview, models.OfferStatusAwaitingSignature}, now).
		Find(&found).Error
	return found, err
}

func (s *GormStore) Create(ctx context.Context, offer *models.Offer) error {
	return s.db.WithContext(ctx).Create(offer).Error
}

func (s *GormStore) Save(ctx context.Context, offer *models.Offer) error {
	return s.db.WithContext(ctx).Save(offer).Error
}
