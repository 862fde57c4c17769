package extraction

// VisionExtractionPrompt instructs the vision model to return the canonical
// contract schema. Field names and formatting rules here must stay in sync
// with ExtractionResult's JSON tags: dates as separate day/month/year
// strings, amounts as raw numbers without currency symbols, unpopulated
// fields as null.
const VisionExtractionPrompt = `
You are reading an Ontario (OREA) Agreement of Purchase and Sale or a related
standard real-estate form. Extract the contract data exactly as written on
the form and return ONLY a JSON object with this structure:

{
  "parties": {
    "buyer1": string|null, "buyer2": string|null,
    "seller1": string|null, "seller2": string|null
  },
  "property": {
    "address": string|null, "legalDescription": string|null,
    "frontage": string|null, "depth": string|null
  },
  "financial": {
    "purchasePrice": number|null, "purchasePriceWords": string|null,
    "depositAmount": number|null, "depositTiming": string|null,
    "currency": string|null
  },
  "dates": {
    "agreement":      {"day": string|null, "month": string|null, "year": string|null},
    "irrevocability": {"day": string|null, "month": string|null, "year": string|null},
    "irrevocabilityTime": string|null,
    "irrevocabilityParty": "Seller"|"Buyer"|null,
    "completion":     {"day": string|null, "month": string|null, "year": string|null},
    "titleSearch":    {"day": string|null, "month": string|null, "year": string|null}
  },
  "notices": {
    "sellerFax": string|null, "sellerEmail": string|null,
    "buyerFax": string|null, "buyerEmail": string|null
  },
  "inclusions": [string, ...],
  "exclusions": [string, ...],
  "rentalItems": [string, ...],
  "acknowledgment": {
    "buyerName": string|null,
    "date": {"day": string|null, "month": string|null, "year": string|null},
    "lawyerName": string|null, "lawyerAddress": string|null,
    "lawyerEmail": string|null, "lawyerPhone": string|null
  },
  "signatures": [
    {"party": "buyer"|"seller"|"witness", "name": string,
     "date": {"day": string, "month": string, "year": string}}
  ]
}

RULES:
- Dates are split into separate day, month and year strings exactly as they
  appear in the form blanks. Do not reformat them.
- Amounts are raw numbers without currency symbols or thousands separators.
- Use null for any field that is blank or unreadable. Never guess.
- inclusions, exclusions and rentalItems are the free-text lists from the
  chattels/fixtures/rental sections, one entry per item, in document order.
- Return the JSON object only, no prose.
`
