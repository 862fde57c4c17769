package vision

// pageInspectionPrompt asks the model for the per-page visual signals the
// three checks are computed from. One call per anchor page.
const pageInspectionPrompt = `
You are looking at one page of a scanned Ontario real-estate form. Initials
boxes sit near the bottom of the page, labelled for buyer and seller sides.
Signature lines appear in the signing and confirmation-of-acceptance blocks.

Report what you can actually see as a JSON object:

{
  "hasInitials": boolean,        // any handwritten initials mark on the page
  "buyerInitials": boolean,      // mark inside a buyer-side initials box
  "sellerInitials": boolean,     // mark inside a seller-side initials box
  "buyerSignature": boolean,     // full signature on a buyer signature line
  "sellerSignature": boolean,    // full signature on a seller signature line
  "checkboxesMarked": boolean,   // any form checkbox ticked or crossed
  "readable": boolean,           // page is legible (not too blurry/skewed)
  "confidence": number,          // 0.0-1.0, your certainty in the above
  "location": string             // where the marks are, e.g. "bottom-right"
}

Lean towards reporting a mark when in doubt: faint pen strokes inside an
initials box count. Return the JSON object only.
`
