package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// FormFieldType classifies a native PDF form field
type FormFieldType string

const (
	FieldTypeText     FormFieldType = "text"
	FieldTypeCheckbox FormFieldType = "checkbox"
	FieldTypeRadio    FormFieldType = "radio"
	FieldTypeDropdown FormFieldType = "dropdown"
	FieldTypeUnknown  FormFieldType = "unknown"
)

// FormField is one entry from the document's AcroForm dictionary
type FormField struct {
	Name  string
	Type  FormFieldType
	Value string
}

// Filled reports whether the field carries a value
func (f FormField) Filled() bool {
	return strings.TrimSpace(f.Value) != "" && f.Value != "Off"
}

// AcroFormTier reads fillable-field values straight out of the PDF.
// Cheapest tier; only applies when the document actually has form fields.
type AcroFormTier struct{}

// NewAcroFormTier creates the native form-field extraction tier
func NewAcroFormTier() *AcroFormTier {
	return &AcroFormTier{}
}

// Name identifies the tier
func (t *AcroFormTier) Name() string { return string(StrategyAcroForm) }

// Extract enumerates the AcroForm fields and maps them onto the canonical
// schema. Returns ErrNoFormFields when the document has no form dictionary;
// tier confidence is filled/total over the document's own fields.
func (t *AcroFormTier) Extract(ctx context.Context, doc []byte) (*ExtractionResult, error) {
	fields, err := t.ReadFields(doc)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNoFormFields
	}

	result := mapFieldsToSchema(fields)
	result.StrategyUsed = StrategyAcroForm

	filled := 0
	for _, f := range fields {
		if f.Filled() {
			filled++
		}
	}
	result.DocConfidence = float64(filled) / float64(len(fields))

	return result, nil
}

// ReadFields walks the AcroForm Fields array, dereferencing through Kids
// and inherited parent entries.
func (t *AcroFormTier) ReadFields(doc []byte) ([]FormField, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(doc), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to resolve page count: %w", err)
	}

	rootDict, err := pdfCtx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, nil
	}

	acroFormDict, err := pdfCtx.DereferenceDict(acroFormObj)
	if err != nil || acroFormDict == nil {
		return nil, nil
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, nil
	}

	fieldsArray, err := pdfCtx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	var fields []FormField
	for i, fieldRef := range fieldsArray {
		field := readField(pdfCtx, fieldRef, i)
		if field != nil {
			fields = append(fields, *field)
		}
	}
	return fields, nil
}

func readField(pdfCtx *model.Context, fieldObj types.Object, index int) *FormField {
	fieldDict, err := pdfCtx.DereferenceDict(fieldObj)
	if err != nil || fieldDict == nil {
		return nil
	}

	field := &FormField{}

	if nameObj, found := fieldDict.Find("T"); found {
		if name, err := pdfCtx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil); err == nil {
			field.Name = name
		}
	}
	if field.Name == "" {
		field.Name = fmt.Sprintf("field_%d", index)
	}

	field.Type = readFieldType(pdfCtx, fieldDict)

	if valueObj, found := fieldDict.Find("V"); found {
		field.Value = readFieldValue(pdfCtx, valueObj, field.Type)
	}

	// terminal fields can keep their value on the first widget kid
	if field.Value == "" {
		if kidsObj, found := fieldDict.Find("Kids"); found {
			if kids, err := pdfCtx.DereferenceArray(kidsObj); err == nil && len(kids) > 0 {
				if kidDict, err := pdfCtx.DereferenceDict(kids[0]); err == nil && kidDict != nil {
					if valueObj, found := kidDict.Find("V"); found {
						field.Value = readFieldValue(pdfCtx, valueObj, field.Type)
					}
				}
			}
		}
	}

	return field
}

func readFieldType(pdfCtx *model.Context, fieldDict types.Dict) FormFieldType {
	ftObj, found := fieldDict.Find("FT")
	if !found {
		// FT may be inherited
		if parentObj, found := fieldDict.Find("Parent"); found {
			if parentDict, err := pdfCtx.DereferenceDict(parentObj); err == nil && parentDict != nil {
				return readFieldType(pdfCtx, parentDict)
			}
		}
		return FieldTypeUnknown
	}

	ftName, err := pdfCtx.DereferenceName(ftObj, model.V10, nil)
	if err != nil {
		return FieldTypeUnknown
	}

	switch ftName {
	case "Tx":
		return FieldTypeText
	case "Ch":
		return FieldTypeDropdown
	case "Btn":
		if flagsObj, found := fieldDict.Find("Ff"); found {
			if flags, err := pdfCtx.DereferenceInteger(flagsObj); err == nil && flags != nil {
				if (*flags & (1 << 15)) != 0 { // bit 16: radio
					return FieldTypeRadio
				}
			}
		}
		return FieldTypeCheckbox
	default:
		return FieldTypeUnknown
	}
}

func readFieldValue(pdfCtx *model.Context, valueObj types.Object, fieldType FormFieldType) string {
	switch fieldType {
	case FieldTypeCheckbox, FieldTypeRadio:
		if name, err := pdfCtx.DereferenceName(valueObj, model.V10, nil); err == nil {
			return string(name)
		}
	default:
		if val, err := pdfCtx.DereferenceStringOrHexLiteral(valueObj, model.V10, nil); err == nil {
			return val
		}
	}
	return ""
}

// fieldRule maps AcroForm field names onto a schema assignment. OREA
// fillable forms name their fields descriptively; matching is by lowercase
// substring with all rule keywords required.
type fieldRule struct {
	keywords []string
	assign   func(r *ExtractionResult, value string)
}

var fieldRules = []fieldRule{
	{[]string{"buyer", "name", "1"}, func(r *ExtractionResult, v string) { r.Parties.Buyer1 = v }},
	{[]string{"buyer", "name", "2"}, func(r *ExtractionResult, v string) { r.Parties.Buyer2 = v }},
	{[]string{"seller", "name", "1"}, func(r *ExtractionResult, v string) { r.Parties.Seller1 = v }},
	{[]string{"seller", "name", "2"}, func(r *ExtractionResult, v string) { r.Parties.Seller2 = v }},
	{[]string{"legal", "description"}, func(r *ExtractionResult, v string) { r.Property.LegalDescription = v }},
	{[]string{"address"}, func(r *ExtractionResult, v string) { r.Property.Address = v }},
	{[]string{"frontage"}, func(r *ExtractionResult, v string) { r.Property.Frontage = v }},
	{[]string{"depth"}, func(r *ExtractionResult, v string) { r.Property.Depth = v }},
	{[]string{"purchase", "price", "words"}, func(r *ExtractionResult, v string) { r.Financial.PurchasePriceWords = v }},
	{[]string{"purchase", "price"}, func(r *ExtractionResult, v string) { r.Financial.PurchasePrice = parseAmount(v) }},
	{[]string{"deposit", "amount"}, func(r *ExtractionResult, v string) { r.Financial.DepositAmount = parseAmount(v) }},
	{[]string{"deposit", "timing"}, func(r *ExtractionResult, v string) { r.Financial.DepositTiming = v }},
	{[]string{"irrevocab", "day"}, func(r *ExtractionResult, v string) { r.Dates.Irrevocability.Day = v }},
	{[]string{"irrevocab", "month"}, func(r *ExtractionResult, v string) { r.Dates.Irrevocability.Month = v }},
	{[]string{"irrevocab", "year"}, func(r *ExtractionResult, v string) { r.Dates.Irrevocability.Year = v }},
	{[]string{"irrevocab", "time"}, func(r *ExtractionResult, v string) { r.Dates.IrrevocabilityTime = v }},
	{[]string{"irrevocab", "party"}, func(r *ExtractionResult, v string) { r.Dates.IrrevocabilityParty = v }},
	{[]string{"completion", "day"}, func(r *ExtractionResult, v string) { r.Dates.Completion.Day = v }},
	{[]string{"completion", "month"}, func(r *ExtractionResult, v string) { r.Dates.Completion.Month = v }},
	{[]string{"completion", "year"}, func(r *ExtractionResult, v string) { r.Dates.Completion.Year = v }},
	{[]string{"title", "search", "day"}, func(r *ExtractionResult, v string) { r.Dates.TitleSearch.Day = v }},
	{[]string{"title", "search", "month"}, func(r *ExtractionResult, v string) { r.Dates.TitleSearch.Month = v }},
	{[]string{"title", "search", "year"}, func(r *ExtractionResult, v string) { r.Dates.TitleSearch.Year = v }},
	{[]string{"agreement", "day"}, func(r *ExtractionResult, v string) { r.Dates.Agreement.Day = v }},
	{[]string{"agreement", "month"}, func(r *ExtractionResult, v string) { r.Dates.Agreement.Month = v }},
	{[]string{"agreement", "year"}, func(r *ExtractionResult, v string) { r.Dates.Agreement.Year = v }},
	{[]string{"seller", "fax"}, func(r *ExtractionResult, v string) { r.Notices.SellerFax = v }},
	{[]string{"seller", "email"}, func(r *ExtractionResult, v string) { r.Notices.SellerEmail = v }},
	{[]string{"buyer", "fax"}, func(r *ExtractionResult, v string) { r.Notices.BuyerFax = v }},
	{[]string{"buyer", "email"}, func(r *ExtractionResult, v string) { r.Notices.BuyerEmail = v }},
	{[]string{"chattel"}, func(r *ExtractionResult, v string) { r.Inclusions = splitList(v) }},
	{[]string{"fixture"}, func(r *ExtractionResult, v string) { r.Exclusions = splitList(v) }},
	{[]string{"rental"}, func(r *ExtractionResult, v string) { r.RentalItems = splitList(v) }},
	{[]string{"lawyer", "name"}, func(r *ExtractionResult, v string) { r.Acknowledgment.LawyerName = v }},
	{[]string{"lawyer", "address"}, func(r *ExtractionResult, v string) { r.Acknowledgment.LawyerAddress = v }},
	{[]string{"lawyer", "email"}, func(r *ExtractionResult, v string) { r.Acknowledgment.LawyerEmail = v }},
	{[]string{"lawyer", "phone"}, func(r *ExtractionResult, v string) { r.Acknowledgment.LawyerPhone = v }},
}

func mapFieldsToSchema(fields []FormField) *ExtractionResult {
	result := &ExtractionResult{}
	for _, f := range fields {
		if !f.Filled() {
			continue
		}
		name := strings.ToLower(f.Name)
		for _, rule := range fieldRules {
			if matchesAll(name, rule.keywords) {
				rule.assign(result, strings.TrimSpace(f.Value))
				break
			}
		}
	}
	return result
}

func matchesAll(name string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(name, kw) {
			return false
		}
	}
	return true
}

func parseAmount(v string) *float64 {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(v)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}

func splitList(v string) []string {
	var items []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' || r == '\n' }) {
		if s := strings.TrimSpace(part); s != "" {
			items = append(items, s)
		}
	}
	return items
}
