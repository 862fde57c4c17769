// Package forms recognizes Ontario (OREA) standard real-estate forms from
// extracted page text. Classification is rule based and pure: same text in,
// same result out.
package forms

import (
	"strings"
)

// FormType identifies a recognized OREA standard form
type FormType string

const (
	FormTypePurchaseAgreement FormType = "AGREEMENT_OF_PURCHASE_AND_SALE"
	FormTypeAmendment         FormType = "AMENDMENT"
	FormTypeWaiver            FormType = "WAIVER"
	FormTypeCounterOffer      FormType = "COUNTER_OFFER"
	FormTypeMutualRelease     FormType = "MUTUAL_RELEASE"
)

// DetectionResult is the outcome of form detection on document text
type DetectionResult struct {
	IsRecognizedForm bool     `json:"isRecognizedForm"`
	FormType         FormType `json:"formType,omitempty"`
	Confidence       int      `json:"confidence"` // 0-100
	Identifiers      []string `json:"identifiers"`
}

// organization identifiers, +20 confidence each
var orgIdentifiers = []string{
	"ontario real estate association",
	"orea",
	"toronto regional real estate board",
	"form 100",
}

// form-type phrases in priority order; first match wins, +30 confidence
var formTypePhrases = []struct {
	phrase string
	typ    FormType
}{
	{"agreement of purchase and sale", FormTypePurchaseAgreement},
	{"amendment to agreement", FormTypeAmendment},
	{"waiver of condition", FormTypeWaiver},
	{"counter offer", FormTypeCounterOffer},
	{"mutual release", FormTypeMutualRelease},
}

// required fields of the primary purchase-agreement form, +2 each
var requiredFieldKeywords = []string{
	"purchase price",
	"deposit",
	"irrevocability",
	"completion date",
	"chattels included",
	"fixtures excluded",
	"rental items",
	"title search",
	"buyer",
	"seller",
	"real property",
	"notices",
}

const recognitionFloor = 20

// Detect classifies document text against the OREA lexicon. It never
// touches anything outside its arguments.
func Detect(text string) DetectionResult {
	lower := strings.ToLower(text)

	result := DetectionResult{Identifiers: []string{}}

	confidence := 0
	for _, id := range orgIdentifiers {
		if strings.Contains(lower, id) {
			result.Identifiers = append(result.Identifiers, id)
			confidence += 20
		}
	}

	for _, ft := range formTypePhrases {
		if strings.Contains(lower, ft.phrase) {
			result.FormType = ft.typ
			confidence += 30
			break
		}
	}

	if result.FormType == FormTypePurchaseAgreement {
		for _, kw := range requiredFieldKeywords {
			if strings.Contains(lower, kw) {
				confidence += 2
			}
		}
	}

	if confidence > 100 {
		confidence = 100
	}

	result.Confidence = confidence
	result.IsRecognizedForm = len(result.Identifiers) > 0 && confidence >= recognitionFloor
	return result
}

// ScoreRelevance ranks an attachment for offer processing (0-100). Used to
// pick the most relevant attachment when a message carries several.
func ScoreRelevance(filename, contentType, text string) int {
	score := 0

	if strings.EqualFold(contentType, "application/pdf") || strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		score += 30
	}

	name := strings.ToLower(filename)
	for _, hint := range []string{"offer", "aps", "agreement", "purchase", "signed"} {
		if strings.Contains(name, hint) {
			score += 10
			break
		}
	}

	det := Detect(text)
	if det.IsRecognizedForm {
		score += 40
		if det.FormType == FormTypePurchaseAgreement {
			score += 20
		}
	}

	if score > 100 {
		score = 100
	}
	return score
}
