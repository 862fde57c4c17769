// Package vision inspects rasterized pages for initials and signatures and
// cross-checks the visual evidence against the textual extraction. It is
// deliberately generous: a missed initial costs a deal, a false positive
// only costs a review.
package vision

// DefaultAnchorPages are the pages of the standard purchase-agreement form
// that carry initials boxes.
var DefaultAnchorPages = []int{1, 2, 3, 4, 6}

// SignatureLocation is one signature/initial mark found on a page
type SignatureLocation struct {
	PageNumber    int     `json:"pageNumber"`
	SignatureType string  `json:"signatureType"` // initials | buyer_signature | seller_signature
	Confidence    float64 `json:"confidence"`
	Location      string  `json:"location"`
}

// SignatureDetection aggregates signature evidence across checked pages
type SignatureDetection struct {
	HasSignatures      bool                `json:"hasSignatures"`
	SignatureLocations []SignatureLocation `json:"signatureLocations"`
}

// VisualQuality rates how readable the scanned pages are
type VisualQuality struct {
	Readable bool    `json:"readable"`
	Score    float64 `json:"score"` // 0-1, fraction of checked pages rated readable
}

// CrossValidation records agreement between text and visual evidence.
// TextMatchesVisual is true iff zero discrepancies were found.
type CrossValidation struct {
	TextMatchesVisual bool     `json:"textMatchesVisual"`
	Discrepancies     []string `json:"discrepancies"`
}

// PageInitials is the initials verdict for one anchor page
type PageInitials struct {
	PageNumber  int     `json:"pageNumber"`
	HasInitials bool    `json:"hasInitials"`
	Confidence  float64 `json:"confidence"`
	Location    string  `json:"location"`
}

// InitialsResult is the outcome of the plain initials check
type InitialsResult struct {
	Pages              []PageInitials `json:"pages"`
	TotalInitialsFound int            `json:"totalInitialsFound"`
	AllInitialsPresent bool           `json:"allInitialsPresent"`
	Confidence         float64        `json:"confidence"` // found/checked
}

// PartyInitialsResult distinguishes buyer-side from seller-side initials,
// classifying the document as a fresh offer or an accepted counter-offer.
type PartyInitialsResult struct {
	BuyerPages         int     `json:"buyerPages"`
	SellerPages        int     `json:"sellerPages"`
	PagesChecked       int     `json:"pagesChecked"`
	IsLikelyNewOffer   bool    `json:"isLikelyNewOffer"`
	IsLikelyAcceptance bool    `json:"isLikelyAcceptance"`
	Confidence         float64 `json:"confidence"`
}

// ConfirmationResult is the confirmation-of-acceptance block check. Buyer
// signature decides the outcome; seller presence is recorded but optional.
type ConfirmationResult struct {
	PageNumber   int     `json:"pageNumber"`
	BuyerSigned  bool    `json:"buyerSigned"`
	SellerSigned bool    `json:"sellerSigned"`
	Confirmed    bool    `json:"confirmed"`
	Confidence   float64 `json:"confidence"`
}

// ValidationResult is the persisted visual-validation payload
type ValidationResult struct {
	SignatureDetection SignatureDetection   `json:"signatureDetection"`
	CheckboxesDetected bool                 `json:"checkboxesDetected"`
	VisualQuality      VisualQuality        `json:"visualQuality"`
	CrossValidation    CrossValidation      `json:"crossValidation"`
	Initials           InitialsResult       `json:"initials"`
	PartyInitials      PartyInitialsResult  `json:"partyInitials"`
	Confirmation       *ConfirmationResult  `json:"confirmation,omitempty"`
}

// pageSignals is what the model reports for a single page image
type pageSignals struct {
	HasInitials      bool    `json:"hasInitials"`
	BuyerInitials    bool    `json:"buyerInitials"`
	SellerInitials   bool    `json:"sellerInitials"`
	BuyerSignature   bool    `json:"buyerSignature"`
	SellerSignature  bool    `json:"sellerSignature"`
	CheckboxesMarked bool    `json:"checkboxesMarked"`
	Readable         bool    `json:"readable"`
	Confidence       float64 `json:"confidence"`
	Location         string  `json:"location"`
}
