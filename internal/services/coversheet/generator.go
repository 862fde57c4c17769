// Package coversheet renders the one-page offer summary that leads the
// e-signature envelope, so the seller sees the key terms before the form.
package coversheet

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/casaflow-io/casaflowgo/internal/models"
)

// Options controls cover sheet rendering
type Options struct {
	DashboardBaseURL string // QR target, e.g. https://app.example.com/offers
}

// Generate renders the summary PDF for an offer
func Generate(offer *models.Offer, buyerName, propertyAddress string, opts Options) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 12, "Offer Summary")
	pdf.Ln(16)

	pdf.SetFont("Arial", "", 11)
	row := func(label, value string) {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(55, 8, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 8, value, "", 1, "L", false, 0, "")
	}

	row("Property", propertyAddress)
	row("Buyer", buyerName)
	row("Purchase price", formatAmount(offer.Price))
	row("Deposit", formatAmount(offer.Deposit))
	if offer.ClosingDate != nil {
		row("Completion date", offer.ClosingDate.Format("January 2, 2006"))
	}
	if offer.ExpiryDate != nil {
		row("Irrevocable until", offer.ExpiryDate.Format("January 2, 2006 3:04 PM"))
	}
	row("Offer reference", offer.ID)
	row("Prepared", time.Now().UTC().Format("January 2, 2006"))

	if opts.DashboardBaseURL != "" {
		png, err := qrcode.Encode(fmt.Sprintf("%s/%s", opts.DashboardBaseURL, offer.ID), qrcode.Medium, 256)
		if err == nil {
			ref := fmt.Sprintf("qr-%s", offer.ID)
			pdf.RegisterImageOptionsReader(ref, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
			pdf.ImageOptions(ref, 150, 230, 35, 35, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
			pdf.SetXY(20, 250)
			pdf.SetFont("Arial", "I", 9)
			pdf.Cell(0, 6, "Scan to open this offer in the dashboard")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render cover sheet: %w", err)
	}
	return buf.Bytes(), nil
}

func formatAmount(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", v)
}
