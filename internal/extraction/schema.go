// Package extraction turns offer documents into the canonical contract
// schema. Two tiers exist: reading native AcroForm fields (cheap, applies to
// fillable PDFs only) and asking a generative vision model (applies to
// anything, including scans). The orchestrator runs them in that order.
package extraction

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Strategy names the tier that produced a result
type Strategy string

const (
	StrategyAcroForm Strategy = "acroform"
	StrategyVision   Strategy = "vision"
)

// Parties holds buyer and seller names as they appear on the form
type Parties struct {
	Buyer1  string `json:"buyer1"`
	Buyer2  string `json:"buyer2"`
	Seller1 string `json:"seller1"`
	Seller2 string `json:"seller2"`
}

// Property describes the real property under offer
type Property struct {
	Address          string `json:"address"`
	LegalDescription string `json:"legalDescription"`
	Frontage         string `json:"frontage"`
	Depth            string `json:"depth"`
}

// Financial holds purchase price and deposit terms. Amounts are raw numbers,
// no currency symbols.
type Financial struct {
	PurchasePrice      *float64 `json:"purchasePrice"`
	PurchasePriceWords string   `json:"purchasePriceWords"`
	DepositAmount      *float64 `json:"depositAmount"`
	DepositTiming      string   `json:"depositTiming"` // "herewith" | "upon acceptance" | "as described"
	Currency           string   `json:"currency"`
}

// DateParts splits a form date into its separate blanks
type DateParts struct {
	Day   string `json:"day"`
	Month string `json:"month"`
	Year  string `json:"year"`
}

// IsZero reports whether no part was extracted
func (d DateParts) IsZero() bool {
	return d.Day == "" && d.Month == "" && d.Year == ""
}

// KeyDates holds the contract's deadline structure
type KeyDates struct {
	Agreement           DateParts `json:"agreement"`
	Irrevocability      DateParts `json:"irrevocability"`
	IrrevocabilityTime  string    `json:"irrevocabilityTime"`
	IrrevocabilityParty string    `json:"irrevocabilityParty"` // Seller | Buyer
	Completion          DateParts `json:"completion"`
	TitleSearch         DateParts `json:"titleSearch"`
}

// Notices holds the notice delivery contacts for each party
type Notices struct {
	SellerFax   string `json:"sellerFax"`
	SellerEmail string `json:"sellerEmail"`
	BuyerFax    string `json:"buyerFax"`
	BuyerEmail  string `json:"buyerEmail"`
}

// Acknowledgment is the buyer acknowledgment block with lawyer contact
type Acknowledgment struct {
	BuyerName     string    `json:"buyerName"`
	Date          DateParts `json:"date"`
	LawyerName    string    `json:"lawyerName"`
	LawyerAddress string    `json:"lawyerAddress"`
	LawyerEmail   string    `json:"lawyerEmail"`
	LawyerPhone   string    `json:"lawyerPhone"`
}

// SignatureRecord notes a signature found in the signing blocks
type SignatureRecord struct {
	Party string    `json:"party"` // buyer | seller | witness
	Name  string    `json:"name"`
	Date  DateParts `json:"date"`
}

// ExtractionResult is the canonical structured schema of contract fields.
// DocConfidence is always populated-leaves/applicable-leaves, never an
// invented number.
type ExtractionResult struct {
	Parties        Parties           `json:"parties"`
	Property       Property          `json:"property"`
	Financial      Financial         `json:"financial"`
	Dates          KeyDates          `json:"dates"`
	Notices        Notices           `json:"notices"`
	Inclusions     []string          `json:"inclusions"`
	Exclusions     []string          `json:"exclusions"`
	RentalItems    []string          `json:"rentalItems"`
	Acknowledgment Acknowledgment    `json:"acknowledgment"`
	Signatures     []SignatureRecord `json:"signatures"`

	StrategyUsed  Strategy `json:"strategyUsed"`
	DocConfidence float64  `json:"docConfidence"`
}

// stringLeaves lists every scalar string leaf of the schema in fixed order
func (r *ExtractionResult) stringLeaves() []string {
	return []string{
		r.Parties.Buyer1, r.Parties.Buyer2, r.Parties.Seller1, r.Parties.Seller2,
		r.Property.Address, r.Property.LegalDescription, r.Property.Frontage, r.Property.Depth,
		r.Financial.PurchasePriceWords, r.Financial.DepositTiming, r.Financial.Currency,
		r.Dates.Agreement.Day, r.Dates.Agreement.Month, r.Dates.Agreement.Year,
		r.Dates.Irrevocability.Day, r.Dates.Irrevocability.Month, r.Dates.Irrevocability.Year,
		r.Dates.IrrevocabilityTime, r.Dates.IrrevocabilityParty,
		r.Dates.Completion.Day, r.Dates.Completion.Month, r.Dates.Completion.Year,
		r.Dates.TitleSearch.Day, r.Dates.TitleSearch.Month, r.Dates.TitleSearch.Year,
		r.Notices.SellerFax, r.Notices.SellerEmail, r.Notices.BuyerFax, r.Notices.BuyerEmail,
		r.Acknowledgment.BuyerName,
		r.Acknowledgment.Date.Day, r.Acknowledgment.Date.Month, r.Acknowledgment.Date.Year,
		r.Acknowledgment.LawyerName, r.Acknowledgment.LawyerAddress,
		r.Acknowledgment.LawyerEmail, r.Acknowledgment.LawyerPhone,
	}
}

// Confidence computes populated-leaves/applicable-leaves over the full
// schema. Deterministic: the same result always yields the same value.
func (r *ExtractionResult) Confidence() float64 {
	populated, total := 0, 0
	count := func(filled bool) {
		total++
		if filled {
			populated++
		}
	}

	for _, s := range r.stringLeaves() {
		count(strings.TrimSpace(s) != "")
	}
	count(r.Financial.PurchasePrice != nil)
	count(r.Financial.DepositAmount != nil)
	count(len(r.Inclusions) > 0)
	count(len(r.Exclusions) > 0)
	count(len(r.RentalItems) > 0)
	count(len(r.Signatures) > 0)

	return float64(populated) / float64(total)
}

// LeafCount reports the number of applicable schema leaves
func (r *ExtractionResult) LeafCount() int {
	return len(r.stringLeaves()) + 6
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// parseDateParts turns day/month/year blanks into a date. Month accepts a
// number or an English month name, full or 3-letter.
func parseDateParts(d DateParts) (time.Time, error) {
	if d.IsZero() {
		return time.Time{}, fmt.Errorf("empty date")
	}

	day, err := strconv.Atoi(strings.TrimSpace(d.Day))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q", d.Day)
	}

	year, err := strconv.Atoi(strings.TrimSpace(d.Year))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid year %q", d.Year)
	}
	if year < 100 {
		year += 2000
	}

	var month time.Month
	ms := strings.ToLower(strings.TrimSpace(d.Month))
	if n, err := strconv.Atoi(ms); err == nil && n >= 1 && n <= 12 {
		month = time.Month(n)
	} else {
		found := false
		for name, m := range monthNames {
			if strings.HasPrefix(name, ms) && len(ms) >= 3 {
				month = m
				found = true
				break
			}
		}
		if !found {
			return time.Time{}, fmt.Errorf("invalid month %q", d.Month)
		}
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}

// IrrevocabilityDeadline resolves the offer expiry moment from the
// irrevocability date and time blanks. Returns nil when the date was not
// extracted; the caller applies its own default.
func (r *ExtractionResult) IrrevocabilityDeadline() *time.Time {
	day, err := parseDateParts(r.Dates.Irrevocability)
	if err != nil {
		return nil
	}

	// default end of day when no time blank was filled
	deadline := day.Add(23*time.Hour + 59*time.Minute)

	if ts := strings.TrimSpace(r.Dates.IrrevocabilityTime); ts != "" {
		for _, layout := range []string{"3:04 pm", "3:04pm", "15:04", "3 pm", "3pm"} {
			if parsed, err := time.Parse(layout, strings.ToLower(ts)); err == nil {
				deadline = day.Add(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute)
				break
			}
		}
	}
	return &deadline
}

// CompletionDate resolves the closing date, nil when not extracted.
func (r *ExtractionResult) CompletionDate() *time.Time {
	t, err := parseDateParts(r.Dates.Completion)
	if err != nil {
		return nil
	}
	return &t
}

// Price returns the purchase price, 0 when not extracted.
func (r *ExtractionResult) Price() float64 {
	if r.Financial.PurchasePrice == nil {
		return 0
	}
	return *r.Financial.PurchasePrice
}

// Deposit returns the deposit amount, 0 when not extracted.
func (r *ExtractionResult) Deposit() float64 {
	if r.Financial.DepositAmount == nil {
		return 0
	}
	return *r.Financial.DepositAmount
}
