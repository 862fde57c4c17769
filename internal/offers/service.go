// Package offers owns the purchase-offer lifecycle. Every write to
// Offer.Status happens inside this package's transition functions; the rest
// of the codebase only asks for transitions.
package offers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"

	"github.com/casaflow-io/casaflowgo/internal/extraction"
	"github.com/casaflow-io/casaflowgo/internal/models"
	"github.com/casaflow-io/casaflowgo/internal/services/coversheet"
	"github.com/casaflow-io/casaflowgo/internal/services/esign"
	"github.com/casaflow-io/casaflowgo/internal/services/notify"
)

// ESigner is the slice of the signing provider the state machine needs
type ESigner interface {
	CreateEmbeddedRequest(ctx context.Context, docs []esign.EnvelopeDocument, signers []esign.Signer, metadata map[string]string) (*esign.SignatureRequest, error)
	DownloadSignedDocument(ctx context.Context, requestID string) ([]byte, error)
	CancelRequest(ctx context.Context, requestID string) error
}

// ObjectStore is the slice of the object store the state machine needs
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Broadcaster pushes offer status changes to connected dashboards
type Broadcaster interface {
	BroadcastOfferUpdate(offerID string, status models.OfferStatus)
}

// MessageInput identifies the inbound message an offer derives from
type MessageInput struct {
	MessageID      string
	ThreadID       string
	ListingID      string
	BuyerID        string
	BuyerName      string
	BuyerEmail     string
	Classification models.MessageClassification
}

// Config holds lifecycle tuning
type Config struct {
	DefaultExpiry    time.Duration // applied when no irrevocability date was extracted
	SellerName       string
	SellerEmail      string
	DashboardBaseURL string
}

// Service is the offer state machine
type Service struct {
	store     Store
	esigner   ESigner
	storage   ObjectStore
	notifier  notify.Notifier
	broadcast Broadcaster
	cfg       Config

	locks *keyedMutex
}

// NewService wires the state machine
func NewService(store Store, esigner ESigner, storage ObjectStore, notifier notify.Notifier, broadcast Broadcaster, cfg Config) *Service {
	if cfg.DefaultExpiry <= 0 {
		cfg.DefaultExpiry = 24 * time.Hour
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	return &Service{
		store:     store,
		esigner:   esigner,
		storage:   storage,
		notifier:  notifier,
		broadcast: broadcast,
		cfg:       cfg,
		locks:     newKeyedMutex(),
	}
}

func pairKey(listingID, buyerID string) string {
	return listingID + "\x00" + buyerID
}

// allowed transitions; anything absent is illegal
var allowedTransitions = map[models.OfferStatus][]models.OfferStatus{
	models.OfferStatusPendingReview: {
		models.OfferStatusAwaitingSignature,
		models.OfferStatusDeclined,
		models.OfferStatusCountered,
		models.OfferStatusExpired,
		models.OfferStatusSuperseded,
	},
	models.OfferStatusAwaitingSignature: {
		models.OfferStatusAccepted,
		models.OfferStatusPendingReview, // manual recovery and signer decline
		models.OfferStatusDeclined,
		models.OfferStatusCountered,
		models.OfferStatusExpired,
		models.OfferStatusSuperseded,
	},
	models.OfferStatusCountered: {
		models.OfferStatusExpired,
		models.OfferStatusSuperseded,
	},
}

// transition is the single place offer status changes. Saves the offer and
// broadcasts on success.
func (s *Service) transition(ctx context.Context, offer *models.Offer, to models.OfferStatus, attempted, reason string) error {
	legal := false
	for _, t := range allowedTransitions[offer.Status] {
		if t == to {
			legal = true
			break
		}
	}
	if !legal {
		return &InvalidTransitionError{OfferID: offer.ID, Current: offer.Status, Attempted: attempted}
	}

	offer.Status = to
	offer.StatusReason = reason
	if err := s.store.Save(ctx, offer); err != nil {
		return fmt.Errorf("failed to persist transition: %w", err)
	}

	log.Printf("📋 Offer %s: %s (%s)", offer.ID, to, attempted)
	if s.broadcast != nil {
		s.broadcast.BroadcastOfferUpdate(offer.ID, to)
	}
	return nil
}

// CreateFromMessage creates (or updates) the offer an inbound message
// carries. Idempotent per message id: replaying the same message returns
// the existing offer.
//
// When the buyer already has a non-terminal offer on the listing, an
// UPDATED_OFFER/AMENDMENT message mutates it in place; any other new-offer
// message retires the old one ("superseded by newer offer") and creates a
// fresh offer. Stray PENDING_REVIEW offers on the same thread are expired
// first, which settles rapid re-submission races.
func (s *Service) CreateFromMessage(ctx context.Context, msg MessageInput, analysis *models.DocumentAnalysis, ext *extraction.ExtractionResult, documentKey string) (*models.Offer, error) {
	if msg.MessageID == "" || msg.ListingID == "" || msg.BuyerID == "" {
		return nil, fmt.Errorf("message, listing and buyer ids are required")
	}
	if analysis == nil || !analysis.IsRecognizedForm {
		return nil, fmt.Errorf("message %s has no recognized-form analysis", msg.MessageID)
	}

	unlock := s.locks.Lock(pairKey(msg.ListingID, msg.BuyerID))
	defer unlock()

	if existing, err := s.store.ByMessageID(ctx, msg.MessageID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	active, err := s.store.ActiveForListingBuyer(ctx, msg.ListingID, msg.BuyerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if active != nil {
		switch msg.Classification {
		case models.ClassificationUpdatedOffer, models.ClassificationAmendment:
			s.applyExtraction(active, ext)
			active.AnalysisID = analysis.ID
			if documentKey != "" {
				active.OriginalDocumentKey = documentKey
			}
			if err := s.store.Save(ctx, active); err != nil {
				return nil, fmt.Errorf("failed to update offer: %w", err)
			}
			log.Printf("📝 Offer %s updated in place from message %s", active.ID, msg.MessageID)
			return active, nil
		default:
			if err := s.transition(ctx, active, models.OfferStatusExpired, "supersede", "superseded by newer offer"); err != nil {
				return nil, err
			}
		}
	}

	// settle same-thread re-submission races
	if msg.ThreadID != "" {
		pending, err := s.store.PendingOnThread(ctx, msg.ThreadID)
		if err != nil {
			return nil, err
		}
		for _, p := range pending {
			if err := s.transition(ctx, p, models.OfferStatusExpired, "supersede", "superseded by newer offer on thread"); err != nil {
				return nil, err
			}
		}
	}

	offer := &models.Offer{
		ListingID:           msg.ListingID,
		BuyerID:             msg.BuyerID,
		ThreadID:            msg.ThreadID,
		MessageID:           msg.MessageID,
		BuyerName:           msg.BuyerName,
		BuyerEmail:          msg.BuyerEmail,
		Status:              models.OfferStatusPendingReview,
		AnalysisID:          analysis.ID,
		OriginalDocumentKey: documentKey,
	}
	s.applyExtraction(offer, ext)

	if offer.ExpiryDate == nil {
		// safety net against malformed/empty forms, not a business rule
		// read off the document
		fallback := time.Now().UTC().Add(s.cfg.DefaultExpiry)
		offer.ExpiryDate = &fallback
	}

	if err := s.store.Create(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	log.Printf("🏠 Offer %s created for listing %s, buyer %s", offer.ID, offer.ListingID, offer.BuyerID)
	if s.broadcast != nil {
		s.broadcast.BroadcastOfferUpdate(offer.ID, offer.Status)
	}
	return offer, nil
}

// applyExtraction overwrites offer terms from the extraction where present
func (s *Service) applyExtraction(offer *models.Offer, ext *extraction.ExtractionResult) {
	if ext == nil {
		return
	}
	if ext.Financial.PurchasePrice != nil {
		offer.Price = *ext.Financial.PurchasePrice
	}
	if ext.Financial.DepositAmount != nil {
		offer.Deposit = *ext.Financial.DepositAmount
	}
	if d := ext.CompletionDate(); d != nil {
		offer.ClosingDate = d
	}
	if d := ext.IrrevocabilityDeadline(); d != nil {
		offer.ExpiryDate = d
	}
	conditions := map[string]any{}
	if len(ext.Inclusions) > 0 {
		conditions["inclusions"] = ext.Inclusions
	}
	if len(ext.Exclusions) > 0 {
		conditions["exclusions"] = ext.Exclusions
	}
	if len(ext.RentalItems) > 0 {
		conditions["rentalItems"] = ext.RentalItems
	}
	if len(conditions) > 0 {
		if raw, err := json.Marshal(conditions); err == nil {
			offer.Conditions = datatypes.JSON(raw)
		}
	}
	if offer.BuyerName == "" {
		offer.BuyerName = ext.Parties.Buyer1
	}
}

// Accept moves a PENDING_REVIEW offer into the signing flow. The signature
// envelope is requested before any state mutation; a provider failure
// leaves the offer exactly where it was.
func (s *Service) Accept(ctx context.Context, offerID string) (*models.Offer, error) {
	offer, err := s.store.ByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(pairKey(offer.ListingID, offer.BuyerID))
	defer unlock()

	// reload under the lock
	offer, err = s.store.ByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != models.OfferStatusPendingReview {
		return nil, &InvalidTransitionError{OfferID: offer.ID, Current: offer.Status, Attempted: "accept"}
	}
	if offer.OriginalDocumentKey == "" {
		return nil, fmt.Errorf("offer %s has no source document", offer.ID)
	}
	if s.esigner == nil || s.storage == nil {
		return nil, fmt.Errorf("signing is not configured")
	}

	exists, err := s.storage.Exists(ctx, offer.OriginalDocumentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check source document: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("source document %s is missing from storage", offer.OriginalDocumentKey)
	}

	original, err := s.storage.Download(ctx, offer.OriginalDocumentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source document: %w", err)
	}

	docs := []esign.EnvelopeDocument{}
	if cover, err := coversheet.Generate(offer, offer.BuyerName, "", coversheet.Options{DashboardBaseURL: s.cfg.DashboardBaseURL}); err == nil {
		docs = append(docs, esign.EnvelopeDocument{Filename: "offer-summary.pdf", Content: cover})
	} else {
		log.Printf("⚠️ Cover sheet generation failed, sending original only: %v", err)
	}
	docs = append(docs, esign.EnvelopeDocument{Filename: "agreement.pdf", Content: original})

	request, err := s.esigner.CreateEmbeddedRequest(ctx, docs,
		[]esign.Signer{
			{Name: s.cfg.SellerName, Email: s.cfg.SellerEmail, Order: 0},
		},
		map[string]string{"offer_id": offer.ID})
	if err != nil {
		// no partial transition: the offer stays PENDING_REVIEW
		return nil, fmt.Errorf("failed to create signature request: %w", err)
	}

	offer.SigningRequestID = request.RequestID
	offer.SignatureID = request.SignatureID
	if err := s.transition(ctx, offer, models.OfferStatusAwaitingSignature, "accept", ""); err != nil {
		return nil, err
	}
	return offer, nil
}

// Decline rejects an offer, cancelling any outstanding signature request
func (s *Service) Decline(ctx context.Context, offerID, reason string) (*models.Offer, error) {
	return s.reject(ctx, offerID, reason, models.OfferStatusDeclined, "decline")
}

// Counter marks the offer countered and notifies the buyer side
func (s *Service) Counter(ctx context.Context, offerID, terms string) (*models.Offer, error) {
	return s.reject(ctx, offerID, terms, models.OfferStatusCountered, "counter")
}

func (s *Service) reject(ctx context.Context, offerID, reason string, to models.OfferStatus, attempted string) (*models.Offer, error) {
	offer, err := s.store.ByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(pairKey(offer.ListingID, offer.BuyerID))
	defer unlock()

	offer, err = s.store.ByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != models.OfferStatusPendingReview && offer.Status != models.OfferStatusAwaitingSignature {
		return nil, &InvalidTransitionError{OfferID: offer.ID, Current: offer.Status, Attempted: attempted}
	}

	if offer.SigningRequestID != "" && s.esigner != nil {
		if err := s.esigner.CancelRequest(ctx, offer.SigningRequestID); err != nil {
			log.Printf("⚠️ Failed to cancel signature request %s: %v", offer.SigningRequestID, err)
		}
		offer.SigningRequestID = ""
		offer.SignatureID = ""
	}

	if to == models.OfferStatusDeclined {
		offer.DeclineReason = reason
	}
	if err := s.transition(ctx, offer, to, attempted, reason); err != nil {
		return nil, err
	}

	switch to {
	case models.OfferStatusDeclined:
		s.notifier.OfferDeclined(offer.ID, offer.BuyerEmail, reason)
	case models.OfferStatusCountered:
		s.notifier.OfferCountered(offer.ID, offer.BuyerEmail, reason)
	}
	return offer, nil
}

// ResetSigning is the manual recovery path for stuck signing flows:
// AWAITING_SELLER_SIGNATURE back to PENDING_REVIEW.
func (s *Service) ResetSigning(ctx context.Context, offerID string) (*models.Offer, error) {
	offer, err := s.store.ByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(pairKey(offer.ListingID, offer.BuyerID))
	defer unlock()

	offer, err = s.store.ByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != models.OfferStatusAwaitingSignature {
		return nil, &InvalidTransitionError{OfferID: offer.ID, Current: offer.Status, Attempted: "reset signing"}
	}

	if offer.SigningRequestID != "" && s.esigner != nil {
		if err := s.esigner.CancelRequest(ctx, offer.SigningRequestID); err != nil {
			log.Printf("⚠️ Failed to cancel signature request %s: %v", offer.SigningRequestID, err)
		}
	}
	offer.SigningRequestID = ""
	offer.SignatureID = ""

	if err := s.transition(ctx, offer, models.OfferStatusPendingReview, "reset signing", "signing flow reset"); err != nil {
		return nil, err
	}
	return offer, nil
}

// HandleSigningEvent consumes a verified webhook event from the signing
// provider. Unknown request ids are ignored so the provider gets its ack.
func (s *Service) HandleSigningEvent(ctx context.Context, evt *esign.Event) error {
	if evt.SignatureRequestID == "" {
		return fmt.Errorf("signing event carries no request id")
	}

	offer, err := s.store.BySigningRequest(ctx, evt.SignatureRequestID)
	if errors.Is(err, ErrNotFound) {
		log.Printf("⚠️ Signing event for unknown request %s ignored", evt.SignatureRequestID)
		return nil
	}
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(pairKey(offer.ListingID, offer.BuyerID))
	defer unlock()

	offer, err = s.store.BySigningRequest(ctx, evt.SignatureRequestID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch evt.EventType {
	case esign.EventSigned:
		now := time.Now().UTC()
		switch evt.SignerRole {
		case "seller":
			offer.SellerSignedAt = &now
		case "buyer":
			offer.BuyerSignedAt = &now
		}
		return s.store.Save(ctx, offer)

	case esign.EventAllSigned:
		signed, err := s.esigner.DownloadSignedDocument(ctx, offer.SigningRequestID)
		if err != nil {
			return fmt.Errorf("failed to download signed document: %w", err)
		}
		key := fmt.Sprintf("signed/%s.pdf", offer.ID)
		if _, err := s.storage.UploadFile(ctx, key, signed, "application/pdf"); err != nil {
			return fmt.Errorf("failed to store signed document: %w", err)
		}
		offer.SignedDocumentKey = key
		now := time.Now().UTC()
		if offer.SellerSignedAt == nil {
			offer.SellerSignedAt = &now
		}
		if err := s.transition(ctx, offer, models.OfferStatusAccepted, "signing completed", ""); err != nil {
			return err
		}
		s.notifier.OfferAccepted(offer.ID, offer.BuyerEmail)
		return nil

	case esign.EventDeclined:
		// back to review so the seller can retry; the stale request
		// reference is cleared
		offer.SigningRequestID = ""
		offer.SignatureID = ""
		return s.transition(ctx, offer, models.OfferStatusPendingReview, "signing declined", evt.DeclineReason)

	default:
		log.Printf("⚠️ Unhandled signing event type %q ignored", evt.EventType)
		return nil
	}
}

// ExpireSweep retires every reviewable offer whose expiry has passed.
// Intended to run on a ticker.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := s.store.DueForExpiry(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, stale := range due {
		unlock := s.locks.Lock(pairKey(stale.ListingID, stale.BuyerID))
		// reload under the lock; a concurrent accept between the query
		// and here would otherwise be clobbered by a stale snapshot
		offer, err := s.store.ByID(ctx, stale.ID)
		if err != nil {
			unlock()
			if !errors.Is(err, ErrNotFound) {
				log.Printf("⚠️ Failed to reload offer %s for expiry: %v", stale.ID, err)
			}
			continue
		}
		if offer.Status != stale.Status || offer.ExpiryDate == nil || offer.ExpiryDate.After(now) {
			unlock()
			continue
		}
		err = s.transition(ctx, offer, models.OfferStatusExpired, "expire", "offer expired")
		unlock()
		if err != nil {
			log.Printf("⚠️ Failed to expire offer %s: %v", offer.ID, err)
			continue
		}
		expired++
	}
	return expired, nil
}
