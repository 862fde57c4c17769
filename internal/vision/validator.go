package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/casaflow-io/casaflowgo/internal/extraction"
	"github.com/casaflow-io/casaflowgo/internal/raster"
	"github.com/casaflow-io/casaflowgo/internal/utils"
)

// ImageInspector is the model boundary for page inspection.
// *ai.GeminiClient satisfies it.
type ImageInspector interface {
	GenerateImage(ctx context.Context, prompt, format string, data []byte) (string, error)
}

type inspectedPage struct {
	pageNumber int
	signals    *pageSignals
}

// Validator runs the visual checks over rasterized pages
type Validator struct {
	inspector   ImageInspector
	anchorPages []int
	concurrency int
}

// NewValidator creates a validator. anchorPages defaults to the standard
// form's initials pages; concurrency bounds parallel model calls.
func NewValidator(inspector ImageInspector, anchorPages []int, concurrency int) *Validator {
	if len(anchorPages) == 0 {
		anchorPages = DefaultAnchorPages
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Validator{
		inspector:   inspector,
		anchorPages: anchorPages,
		concurrency: concurrency,
	}
}

// Validate inspects the anchor pages once and derives all three checks plus
// the text/visual cross-validation from the per-page signals. Per-page model
// calls run concurrently under the configured bound; results are aggregated
// in page order regardless of completion order.
func (v *Validator) Validate(ctx context.Context, pages []raster.PageImage, ext *extraction.ExtractionResult) (*ValidationResult, error) {
	byNumber := make(map[int]raster.PageImage, len(pages))
	for _, p := range pages {
		byNumber[p.PageNumber] = p
	}

	results := make([]inspectedPage, len(v.anchorPages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, pageNum := range v.anchorPages {
		results[i] = inspectedPage{pageNumber: pageNum}
		page, ok := byNumber[pageNum]
		if !ok {
			continue // document shorter than the anchor set
		}
		i, page := i, page
		g.Go(func() error {
			signals, err := v.inspectPage(gctx, page)
			if err != nil {
				return err
			}
			results[i].signals = signals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &ValidationResult{}
	out.Initials = v.initialsCheck(results)
	out.PartyInitials = v.partyInitialsCheck(results)

	readablePages, checkedPages := 0, 0
	for _, r := range results {
		if r.signals == nil {
			continue
		}
		checkedPages++
		s := r.signals
		if s.Readable {
			readablePages++
		}
		if s.CheckboxesMarked {
			out.CheckboxesDetected = true
		}
		appendLocation := func(typ string, present bool) {
			if present {
				out.SignatureDetection.SignatureLocations = append(out.SignatureDetection.SignatureLocations,
					SignatureLocation{
						PageNumber:    r.pageNumber,
						SignatureType: typ,
						Confidence:    s.Confidence,
						Location:      s.Location,
					})
			}
		}
		appendLocation("initials", s.HasInitials)
		appendLocation("buyer_signature", s.BuyerSignature)
		appendLocation("seller_signature", s.SellerSignature)
	}
	out.SignatureDetection.HasSignatures = len(out.SignatureDetection.SignatureLocations) > 0

	if checkedPages > 0 {
		out.VisualQuality.Score = float64(readablePages) / float64(checkedPages)
		out.VisualQuality.Readable = readablePages*2 >= checkedPages
	}

	out.CrossValidation = crossValidate(ext, out)

	// confirmation block lives on the last anchor page of the standard form
	lastAnchor := v.anchorPages[len(v.anchorPages)-1]
	for _, r := range results {
		if r.pageNumber == lastAnchor && r.signals != nil {
			s := r.signals
			out.Confirmation = &ConfirmationResult{
				PageNumber:   lastAnchor,
				BuyerSigned:  s.BuyerSignature,
				SellerSigned: s.SellerSignature,
				Confirmed:    s.BuyerSignature,
				Confidence:   s.Confidence,
			}
		}
	}

	return out, nil
}

func (v *Validator) inspectPage(ctx context.Context, page raster.PageImage) (*pageSignals, error) {
	raw, err := v.inspector.GenerateImage(ctx, pageInspectionPrompt, "png", page.Bytes)
	if err != nil {
		return nil, fmt.Errorf("page %d inspection failed: %w", page.PageNumber, err)
	}

	var signals pageSignals
	if err := json.Unmarshal([]byte(utils.SanitizeJSON(raw)), &signals); err != nil {
		return nil, fmt.Errorf("page %d inspection returned invalid JSON: %w", page.PageNumber, err)
	}
	return &signals, nil
}

// initialsCheck reports per-anchor-page initials presence. Confidence is the
// fraction of checked anchors that had a mark.
func (v *Validator) initialsCheck(results []inspectedPage) InitialsResult {
	res := InitialsResult{AllInitialsPresent: true}
	checked := 0
	for _, r := range results {
		page := PageInitials{PageNumber: r.pageNumber}
		if r.signals != nil {
			checked++
			page.HasInitials = r.signals.HasInitials
			page.Confidence = r.signals.Confidence
			page.Location = r.signals.Location
			if page.HasInitials {
				res.TotalInitialsFound++
			} else {
				res.AllInitialsPresent = false
			}
		} else {
			res.AllInitialsPresent = false
		}
		res.Pages = append(res.Pages, page)
	}
	if checked > 0 {
		res.Confidence = float64(res.TotalInitialsFound) / float64(checked)
	} else {
		res.AllInitialsPresent = false
	}
	return res
}

// partyInitialsCheck tells a fresh offer (buyer-only initials) from an
// accepted counter-offer (both parties initialed). Neither side found means
// inconclusive, confidence zero.
func (v *Validator) partyInitialsCheck(results []inspectedPage) PartyInitialsResult {
	res := PartyInitialsResult{}
	for _, r := range results {
		if r.signals == nil {
			continue
		}
		res.PagesChecked++
		if r.signals.BuyerInitials {
			res.BuyerPages++
		}
		if r.signals.SellerInitials {
			res.SellerPages++
		}
	}
	if res.PagesChecked == 0 {
		return res
	}

	switch {
	case res.BuyerPages > 0 && res.SellerPages > 0:
		res.IsLikelyAcceptance = true
		res.Confidence = float64(res.BuyerPages+res.SellerPages) / float64(2*res.PagesChecked)
	case res.BuyerPages > 0:
		res.IsLikelyNewOffer = true
		res.Confidence = float64(res.BuyerPages) / float64(res.PagesChecked)
	default:
		// neither side found: inconclusive
		res.Confidence = 0
	}
	return res
}

// crossValidate compares the extracted buyer identity against the visual
// initials evidence. Disagreement is data, never an error.
func crossValidate(ext *extraction.ExtractionResult, visual *ValidationResult) CrossValidation {
	cv := CrossValidation{Discrepancies: []string{}}
	if ext == nil {
		cv.TextMatchesVisual = true
		return cv
	}

	buyerNamed := strings.TrimSpace(ext.Parties.Buyer1) != "" || strings.TrimSpace(ext.Parties.Buyer2) != ""

	if buyerNamed && visual.PartyInitials.PagesChecked > 0 && visual.PartyInitials.BuyerPages == 0 {
		cv.Discrepancies = append(cv.Discrepancies,
			"buyer named in extracted text but no buyer initials found on any anchor page")
	}
	if !buyerNamed && visual.PartyInitials.BuyerPages > 0 {
		cv.Discrepancies = append(cv.Discrepancies,
			"buyer initials found but no buyer name extracted from text")
	}

	for _, p := range visual.Initials.Pages {
		if !p.HasInitials && buyerNamed {
			cv.Discrepancies = append(cv.Discrepancies,
				fmt.Sprintf("page %d initials box appears empty", p.PageNumber))
		}
	}

	cv.TextMatchesVisual = len(cv.Discrepancies) == 0
	return cv
}
