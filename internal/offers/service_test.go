package offers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/casaflow-io/casaflowgo/internal/extraction"
	"github.com/casaflow-io/casaflowgo/internal/models"
	"github.com/casaflow-io/casaflowgo/internal/services/esign"
)

// memStore is an in-memory Store for state-machine tests
type memStore struct {
	mu     sync.Mutex
	seq    int
	offers map[string]models.Offer
}

func newMemStore() *memStore {
	return &memStore{offers: make(map[string]models.Offer)}
}

func (m *memStore) ByID(ctx context.Context, id string) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *memStore) ByMessageID(ctx context.Context, messageID string) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.offers {
		if o.MessageID == messageID {
			o := o
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) BySigningRequest(ctx context.Context, requestID string) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.offers {
		if o.SigningRequestID == requestID && requestID != "" {
			o := o
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ActiveForListingBuyer(ctx context.Context, listingID, buyerID string) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.offers {
		if o.ListingID == listingID && o.BuyerID == buyerID && !o.Status.IsTerminal() {
			o := o
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) PendingOnThread(ctx context.Context, threadID string) ([]*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*models.Offer
	for _, o := range m.offers {
		if o.ThreadID == threadID && o.Status == models.OfferStatusPendingReview {
			o := o
			found = append(found, &o)
		}
	}
	return found, nil
}

func (m *memStore) DueForExpiry(ctx context.Context, now time.Time) ([]*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*models.Offer
	for _, o := range m.offers {
		reviewable := o.Status == models.OfferStatusPendingReview || o.Status == models.OfferStatusAwaitingSignature
		if reviewable && o.ExpiryDate != nil && o.ExpiryDate.Before(now) {
			o := o
			found = append(found, &o)
		}
	}
	return found, nil
}

func (m *memStore) Create(ctx context.Context, offer *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	offer.ID = fmt.Sprintf("offer-%d", m.seq)
	m.offers[offer.ID] = *offer
	return nil
}

func (m *memStore) Save(ctx context.Context, offer *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[offer.ID] = *offer
	return nil
}

// fakeESigner records calls and can fail on demand
type fakeESigner struct {
	createErr error
	created   int
	cancelled []string
	signedDoc []byte
}

func (f *fakeESigner) CreateEmbeddedRequest(ctx context.Context, docs []esign.EnvelopeDocument, signers []esign.Signer, metadata map[string]string) (*esign.SignatureRequest, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &esign.SignatureRequest{RequestID: fmt.Sprintf("req-%d", f.created), SignatureID: fmt.Sprintf("sig-%d", f.created)}, nil
}

func (f *fakeESigner) DownloadSignedDocument(ctx context.Context, requestID string) ([]byte, error) {
	if f.signedDoc == nil {
		return []byte("signed pdf"), nil
	}
	return f.signedDoc, nil
}

func (f *fakeESigner) CancelRequest(ctx context.Context, requestID string) error {
	f.cancelled = append(f.cancelled, requestID)
	return nil
}

// fakeStorage is an in-memory object store
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return key, nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func newTestService(t *testing.T) (*Service, *memStore, *fakeESigner, *fakeStorage) {
	t.Helper()
	store := newMemStore()
	signer := &fakeESigner{}
	storage := newFakeStorage()
	svc := NewService(store, signer, storage, nil, nil, Config{
		DefaultExpiry: 24 * time.Hour,
		SellerName:    "John Doe",
		SellerEmail:   "seller@example.com",
	})
	return svc, store, signer, storage
}

func recognizedAnalysis() *models.DocumentAnalysis {
	return &models.DocumentAnalysis{ID: "analysis-1", IsRecognizedForm: true, FormType: "AGREEMENT_OF_PURCHASE_AND_SALE"}
}

func testMessage(id string) MessageInput {
	return MessageInput{
		MessageID:      id,
		ThreadID:       "thread-1",
		ListingID:      "listing-1",
		BuyerID:        "buyer-1",
		BuyerName:      "Jane Roe",
		BuyerEmail:     "jane@example.com",
		Classification: models.ClassificationNewOffer,
	}
}

func TestCreateFromMessageIsIdempotent(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("Replaying a message must return the same offer: %s vs %s", first.ID, second.ID)
	}
	if len(store.offers) != 1 {
		t.Errorf("Expected 1 offer, found %d", len(store.offers))
	}
}

func TestCreateFromMessageAppliesDefaultExpiry(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	before := time.Now().UTC()
	offer, err := svc.CreateFromMessage(context.Background(), testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if offer.ExpiryDate == nil {
		t.Fatal("Offer without extracted irrevocability needs a default expiry")
	}
	want := before.Add(24 * time.Hour)
	if offer.ExpiryDate.Before(want.Add(-time.Minute)) || offer.ExpiryDate.After(want.Add(time.Minute)) {
		t.Errorf("Expected expiry around %v, got %v", want, offer.ExpiryDate)
	}
}

func TestCreateFromMessageUsesIrrevocabilityDeadline(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	ext := &extraction.ExtractionResult{Dates: extraction.KeyDates{
		Irrevocability:     extraction.DateParts{Day: "20", Month: "6", Year: "2030"},
		IrrevocabilityTime: "6:00 pm",
	}}
	offer, err := svc.CreateFromMessage(context.Background(), testMessage("msg-1"), recognizedAnalysis(), ext, "inbound/a.pdf")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	want := time.Date(2030, 6, 20, 18, 0, 0, 0, time.UTC)
	if offer.ExpiryDate == nil || !offer.ExpiryDate.Equal(want) {
		t.Errorf("Expected expiry %v, got %v", want, offer.ExpiryDate)
	}
}

func TestNewOfferSupersedesActiveOne(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	msg2 := testMessage("msg-2")
	msg2.ThreadID = "thread-2"
	second, err := svc.CreateFromMessage(ctx, msg2, recognizedAnalysis(), nil, "inbound/b.pdf")
	if err != nil {
		t.Fatalf("Second create failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("A fresh offer should get its own identity")
	}

	old, _ := store.ByID(ctx, first.ID)
	if old.Status != models.OfferStatusExpired {
		t.Errorf("Prior offer should be EXPIRED, got %s", old.Status)
	}
	if !strings.Contains(old.StatusReason, "superseded") {
		t.Errorf("Expected a superseded reason, got %q", old.StatusReason)
	}
	if second.Status != models.OfferStatusPendingReview {
		t.Errorf("New offer should be PENDING_REVIEW, got %s", second.Status)
	}
}

func TestUpdatedOfferMutatesInPlace(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	price := 800000.0
	msg2 := testMessage("msg-2")
	msg2.Classification = models.ClassificationUpdatedOffer
	updated, err := svc.CreateFromMessage(ctx, msg2, recognizedAnalysis(), &extraction.ExtractionResult{
		Financial: extraction.Financial{PurchasePrice: &price},
	}, "inbound/b.pdf")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if updated.ID != first.ID {
		t.Errorf("Updated offer must keep its identity: %s vs %s", updated.ID, first.ID)
	}
	if updated.Price != price {
		t.Errorf("Expected price %f, got %f", price, updated.Price)
	}
	if updated.OriginalDocumentKey != "inbound/b.pdf" {
		t.Errorf("Document key should follow the update, got %s", updated.OriginalDocumentKey)
	}
	if len(store.offers) != 1 {
		t.Errorf("Update must not create a second offer, found %d", len(store.offers))
	}
}

func TestAcceptStartsSigningFlow(t *testing.T) {
	svc, _, signer, storage := newTestService(t)
	ctx := context.Background()

	storage.objects["inbound/a.pdf"] = []byte("original pdf")
	offer, err := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	accepted, err := svc.Accept(ctx, offer.ID)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if accepted.Status != models.OfferStatusAwaitingSignature {
		t.Errorf("Expected AWAITING_SELLER_SIGNATURE, got %s", accepted.Status)
	}
	if accepted.SigningRequestID == "" || accepted.SignatureID == "" {
		t.Error("Accept should record the signing request identifiers")
	}
	if signer.created != 1 {
		t.Errorf("Expected one signature request, got %d", signer.created)
	}
}

func TestAcceptFailureLeavesOfferUntouched(t *testing.T) {
	svc, store, signer, storage := newTestService(t)
	ctx := context.Background()

	storage.objects["inbound/a.pdf"] = []byte("original pdf")
	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")

	signer.createErr = errors.New("provider down")
	if _, err := svc.Accept(ctx, offer.ID); err == nil {
		t.Fatal("Accept should surface provider failure")
	}

	reloaded, _ := store.ByID(ctx, offer.ID)
	if reloaded.Status != models.OfferStatusPendingReview {
		t.Errorf("Failed accept must leave the offer PENDING_REVIEW, got %s", reloaded.Status)
	}
	if reloaded.SigningRequestID != "" {
		t.Error("Failed accept must not record a signing request")
	}
}

func TestAcceptRequiresSourceDocument(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	// document key recorded but object not in storage
	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/missing.pdf")
	if _, err := svc.Accept(ctx, offer.ID); err == nil {
		t.Fatal("Accept should fail when the source document is gone")
	}
}

func TestAcceptTwiceIsIllegal(t *testing.T) {
	svc, _, _, storage := newTestService(t)
	ctx := context.Background()

	storage.objects["inbound/a.pdf"] = []byte("original pdf")
	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if _, err := svc.Accept(ctx, offer.ID); err != nil {
		t.Fatalf("First accept failed: %v", err)
	}

	_, err := svc.Accept(ctx, offer.ID)
	var transition *InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("Expected InvalidTransitionError, got %v", err)
	}
	if transition.Current != models.OfferStatusAwaitingSignature {
		t.Errorf("Error should name the current state, got %s", transition.Current)
	}
}

func TestDeclineCancelsOutstandingRequest(t *testing.T) {
	svc, _, signer, storage := newTestService(t)
	ctx := context.Background()

	storage.objects["inbound/a.pdf"] = []byte("original pdf")
	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	accepted, _ := svc.Accept(ctx, offer.ID)

	declined, err := svc.Decline(ctx, offer.ID, "price too low")
	if err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if declined.Status != models.OfferStatusDeclined {
		t.Errorf("Expected DECLINED, got %s", declined.Status)
	}
	if declined.DeclineReason != "price too low" {
		t.Errorf("Expected decline reason recorded, got %q", declined.DeclineReason)
	}
	if len(signer.cancelled) != 1 || signer.cancelled[0] != accepted.SigningRequestID {
		t.Errorf("Outstanding request should be cancelled, got %v", signer.cancelled)
	}
}

func TestDeclineTerminalOfferIsIllegal(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if _, err := svc.Decline(ctx, offer.ID, "no"); err != nil {
		t.Fatalf("First decline failed: %v", err)
	}

	var transition *InvalidTransitionError
	if _, err := svc.Decline(ctx, offer.ID, "again"); !errors.As(err, &transition) {
		t.Fatalf("Declining a declined offer must be illegal, got %v", err)
	}
}

func TestCounterIsNotTerminalForExpiry(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if _, err := svc.Counter(ctx, offer.ID, "ask 800k"); err != nil {
		t.Fatalf("Counter failed: %v", err)
	}

	countered, _ := store.ByID(ctx, offer.ID)
	if countered.Status != models.OfferStatusCountered {
		t.Fatalf("Expected COUNTERED, got %s", countered.Status)
	}
	if countered.Status.IsTerminal() {
		t.Error("COUNTERED is awaiting the buyer's response, not terminal")
	}

	// a newer offer from the same buyer still supersedes it
	msg2 := testMessage("msg-2")
	if _, err := svc.CreateFromMessage(ctx, msg2, recognizedAnalysis(), nil, "inbound/b.pdf"); err != nil {
		t.Fatalf("Follow-up create failed: %v", err)
	}
	old, _ := store.ByID(ctx, offer.ID)
	if old.Status != models.OfferStatusExpired {
		t.Errorf("Countered offer should be retired by the newer one, got %s", old.Status)
	}
}

func TestHandleSigningEventAllSigned(t *testing.T) {
	svc, store, _, storage := newTestService(t)
	ctx := context.Background()

	storage.objects["inbound/a.pdf"] = []byte("original pdf")
	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	accepted, _ := svc.Accept(ctx, offer.ID)

	err := svc.HandleSigningEvent(ctx, &esign.Event{
		EventType:          esign.EventAllSigned,
		SignatureRequestID: accepted.SigningRequestID,
	})
	if err != nil {
		t.Fatalf("HandleSigningEvent failed: %v", err)
	}

	final, _ := store.ByID(ctx, offer.ID)
	if final.Status != models.OfferStatusAccepted {
		t.Errorf("Expected ACCEPTED, got %s", final.Status)
	}
	if final.SignedDocumentKey == "" {
		t.Error("Signed artifact key should be recorded")
	}
	if _, ok := storage.objects[final.SignedDocumentKey]; !ok {
		t.Error("Signed artifact should be stored")
	}
	if final.SellerSignedAt == nil {
		t.Error("Seller signing timestamp should be stamped")
	}
}

func TestHandleSigningEventDeclinedReturnsToReview(t *testing.T) {
	svc, store, _, storage := newTestService(t)
	ctx := context.Background()

	storage.objects["inbound/a.pdf"] = []byte("original pdf")
	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	accepted, _ := svc.Accept(ctx, offer.ID)

	err := svc.HandleSigningEvent(ctx, &esign.Event{
		EventType:          esign.EventDeclined,
		SignatureRequestID: accepted.SigningRequestID,
		DeclineReason:      "seller changed their mind",
	})
	if err != nil {
		t.Fatalf("HandleSigningEvent failed: %v", err)
	}

	reloaded, _ := store.ByID(ctx, offer.ID)
	if reloaded.Status != models.OfferStatusPendingReview {
		t.Errorf("Declined signing should return to PENDING_REVIEW, got %s", reloaded.Status)
	}
	if reloaded.SigningRequestID != "" || reloaded.SignatureID != "" {
		t.Error("Stale signing references must be cleared")
	}
}

func TestHandleSigningEventUnknownRequestIgnored(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.HandleSigningEvent(context.Background(), &esign.Event{
		EventType:          esign.EventAllSigned,
		SignatureRequestID: "req-unknown",
	})
	if err != nil {
		t.Errorf("Unknown request must be acked, not errored: %v", err)
	}
}

func TestResetSigning(t *testing.T) {
	svc, store, signer, storage := newTestService(t)
	ctx := context.Background()

	storage.objects["inbound/a.pdf"] = []byte("original pdf")
	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	accepted, _ := svc.Accept(ctx, offer.ID)

	reset, err := svc.ResetSigning(ctx, offer.ID)
	if err != nil {
		t.Fatalf("ResetSigning failed: %v", err)
	}
	if reset.Status != models.OfferStatusPendingReview {
		t.Errorf("Expected PENDING_REVIEW after reset, got %s", reset.Status)
	}
	if reset.SigningRequestID != "" {
		t.Error("Reset must clear the signing request reference")
	}
	if len(signer.cancelled) != 1 || signer.cancelled[0] != accepted.SigningRequestID {
		t.Errorf("Reset should cancel the outstanding request, got %v", signer.cancelled)
	}

	final, _ := store.ByID(ctx, offer.ID)
	if final.Status != models.OfferStatusPendingReview {
		t.Errorf("Persisted status should be PENDING_REVIEW, got %s", final.Status)
	}
}

func TestExpireSweep(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	offer, _ := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")

	// force the deadline into the past
	stored, _ := store.ByID(ctx, offer.ID)
	past := time.Now().UTC().Add(-time.Hour)
	stored.ExpiryDate = &past
	_ = store.Save(ctx, stored)

	n, err := svc.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("ExpireSweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expired offer, got %d", n)
	}

	final, _ := store.ByID(ctx, offer.ID)
	if final.Status != models.OfferStatusExpired {
		t.Errorf("Expected EXPIRED, got %s", final.Status)
	}

	// second sweep finds nothing
	n, err = svc.ExpireSweep(ctx)
	if err != nil || n != 0 {
		t.Errorf("Repeat sweep should retire nothing, got n=%d err=%v", n, err)
	}
}

// racingStore mutates its backing offer right after the due query hands out
// stale copies, simulating an accept landing between the query and the
// per-offer lock.
type racingStore struct {
	*memStore
	interleave func()
}

func (r *racingStore) DueForExpiry(ctx context.Context, now time.Time) ([]*models.Offer, error) {
	due, err := r.memStore.DueForExpiry(ctx, now)
	if r.interleave != nil {
		r.interleave()
		r.interleave = nil
	}
	return due, err
}

func TestExpireSweepReloadsBeforeTransition(t *testing.T) {
	mem := newMemStore()
	racing := &racingStore{memStore: mem}
	svc := NewService(racing, &fakeESigner{}, newFakeStorage(), nil, nil, Config{DefaultExpiry: 24 * time.Hour})
	ctx := context.Background()

	offer, err := svc.CreateFromMessage(ctx, testMessage("msg-1"), recognizedAnalysis(), nil, "inbound/a.pdf")
	if err != nil {
		t.Fatalf("CreateFromMessage failed: %v", err)
	}
	stored, _ := mem.ByID(ctx, offer.ID)
	past := time.Now().UTC().Add(-time.Minute)
	stored.ExpiryDate = &past
	_ = mem.Save(ctx, stored)

	racing.interleave = func() {
		live, _ := mem.ByID(ctx, offer.ID)
		live.Status = models.OfferStatusAwaitingSignature
		live.SigningRequestID = "req-live"
		live.SignatureID = "sig-live"
		_ = mem.Save(ctx, live)
	}

	n, err := svc.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("ExpireSweep failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Sweep must skip an offer that changed under it, retired %d", n)
	}

	final, _ := mem.ByID(ctx, offer.ID)
	if final.Status != models.OfferStatusAwaitingSignature {
		t.Errorf("Expected AWAITING_SELLER_SIGNATURE to survive the sweep, got %s", final.Status)
	}
	if final.SigningRequestID != "req-live" || final.SignatureID != "sig-live" {
		t.Errorf("Sweep clobbered live signing references: request=%q signature=%q",
			final.SigningRequestID, final.SignatureID)
	}
}

func TestCreateRejectsUnrecognizedAnalysis(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.CreateFromMessage(context.Background(), testMessage("msg-1"),
		&models.DocumentAnalysis{ID: "analysis-1", IsRecognizedForm: false}, nil, "inbound/a.pdf")
	if err == nil {
		t.Fatal("Unrecognized analysis must not produce an offer")
	}
}
