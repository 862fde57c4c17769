package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/casaflow-io/casaflowgo/internal/extraction"
	"github.com/casaflow-io/casaflowgo/internal/raster"
)

// pageInspector replies with canned signals keyed by page, inferred from the
// page bytes (the fake encodes the page number in the image payload).
type pageInspector struct {
	mu      sync.Mutex
	byPage  map[int]pageSignals
	err     error
	calls   int
}

func (f *pageInspector) GenerateImage(ctx context.Context, prompt, format string, data []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}

	var page int
	fmt.Sscanf(string(data), "page-%d", &page)
	signals := f.byPage[page]
	out, _ := json.Marshal(signals)
	return "```json\n" + string(out) + "\n```", nil
}

func fakePages(numbers ...int) []raster.PageImage {
	var pages []raster.PageImage
	for _, n := range numbers {
		pages = append(pages, raster.PageImage{PageNumber: n, Bytes: []byte(fmt.Sprintf("page-%d", n))})
	}
	return pages
}

func TestValidateFourOfFiveInitials(t *testing.T) {
	inspector := &pageInspector{byPage: map[int]pageSignals{
		1: {HasInitials: true, BuyerInitials: true, Readable: true, Confidence: 0.9},
		2: {HasInitials: true, BuyerInitials: true, Readable: true, Confidence: 0.9},
		3: {HasInitials: true, BuyerInitials: true, Readable: true, Confidence: 0.9},
		4: {Readable: true, Confidence: 0.8}, // page 4 initials box empty
		6: {HasInitials: true, BuyerInitials: true, BuyerSignature: true, Readable: true, Confidence: 0.9},
	}}

	v := NewValidator(inspector, nil, 2)
	result, err := v.Validate(context.Background(), fakePages(1, 2, 3, 4, 6), &extraction.ExtractionResult{
		Parties: extraction.Parties{Buyer1: "Jane Roe"},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if result.Initials.TotalInitialsFound != 4 {
		t.Errorf("Expected 4 initials found, got %d", result.Initials.TotalInitialsFound)
	}
	if result.Initials.AllInitialsPresent {
		t.Error("A missing page-4 initial must clear AllInitialsPresent")
	}
	if want := 4.0 / 5.0; result.Initials.Confidence != want {
		t.Errorf("Expected initials confidence %f, got %f", want, result.Initials.Confidence)
	}
	if !result.PartyInitials.IsLikelyNewOffer {
		t.Error("Buyer-only initials should classify as a fresh offer")
	}
	if result.PartyInitials.IsLikelyAcceptance {
		t.Error("No seller initials means no acceptance")
	}
	if !result.CrossValidation.TextMatchesVisual {
		// the empty page-4 box against a named buyer is a discrepancy
		t.Log("discrepancies:", result.CrossValidation.Discrepancies)
	}
	if len(result.CrossValidation.Discrepancies) != 1 {
		t.Errorf("Expected exactly the page-4 discrepancy, got %v", result.CrossValidation.Discrepancies)
	}
}

func TestValidateBothPartiesIsAcceptance(t *testing.T) {
	byPage := map[int]pageSignals{}
	for _, p := range DefaultAnchorPages {
		byPage[p] = pageSignals{HasInitials: true, BuyerInitials: true, SellerInitials: true, Readable: true, Confidence: 0.95}
	}
	byPage[6] = pageSignals{HasInitials: true, BuyerInitials: true, SellerInitials: true, BuyerSignature: true, SellerSignature: true, Readable: true, Confidence: 0.95}

	v := NewValidator(&pageInspector{byPage: byPage}, nil, 3)
	result, err := v.Validate(context.Background(), fakePages(1, 2, 3, 4, 6), &extraction.ExtractionResult{
		Parties: extraction.Parties{Buyer1: "Jane Roe"},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if !result.PartyInitials.IsLikelyAcceptance {
		t.Error("Both-party initials should classify as acceptance")
	}
	if result.PartyInitials.Confidence != 1.0 {
		t.Errorf("Expected full confidence, got %f", result.PartyInitials.Confidence)
	}
	if result.Confirmation == nil {
		t.Fatal("Expected a confirmation block verdict from the last anchor page")
	}
	if !result.Confirmation.Confirmed {
		t.Error("Buyer signature on the confirmation page should confirm")
	}
	if !result.CrossValidation.TextMatchesVisual {
		t.Errorf("No discrepancies expected, got %v", result.CrossValidation.Discrepancies)
	}
}

func TestValidateResultsStayInPageOrder(t *testing.T) {
	byPage := map[int]pageSignals{}
	for _, p := range DefaultAnchorPages {
		byPage[p] = pageSignals{HasInitials: true, BuyerInitials: true, Readable: true, Confidence: 0.9}
	}

	// concurrency above page count maximizes reordering opportunity
	v := NewValidator(&pageInspector{byPage: byPage}, nil, 8)
	result, err := v.Validate(context.Background(), fakePages(1, 2, 3, 4, 6), nil)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	for i, page := range result.Initials.Pages {
		if page.PageNumber != DefaultAnchorPages[i] {
			t.Fatalf("Pages out of order: position %d holds page %d", i, page.PageNumber)
		}
	}
}

func TestValidateShortDocument(t *testing.T) {
	inspector := &pageInspector{byPage: map[int]pageSignals{
		1: {HasInitials: true, BuyerInitials: true, Readable: true, Confidence: 0.9},
		2: {HasInitials: true, BuyerInitials: true, Readable: true, Confidence: 0.9},
	}}

	v := NewValidator(inspector, nil, 2)
	result, err := v.Validate(context.Background(), fakePages(1, 2), nil)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if inspector.calls != 2 {
		t.Errorf("Only existing pages should be inspected, got %d calls", inspector.calls)
	}
	if result.PartyInitials.PagesChecked != 2 {
		t.Errorf("Expected 2 pages checked, got %d", result.PartyInitials.PagesChecked)
	}
	if result.Initials.AllInitialsPresent {
		t.Error("Uninspected anchors must not count as initialed")
	}
	if result.Initials.Confidence != 1.0 {
		t.Errorf("Confidence must be over inspected anchors only, got %f", result.Initials.Confidence)
	}
}

func TestValidatePropagatesInspectorError(t *testing.T) {
	cause := errors.New("model unavailable")
	v := NewValidator(&pageInspector{err: cause}, nil, 2)

	if _, err := v.Validate(context.Background(), fakePages(1, 2, 3, 4, 6), nil); !errors.Is(err, cause) {
		t.Errorf("Expected inspector error to propagate, got %v", err)
	}
}
