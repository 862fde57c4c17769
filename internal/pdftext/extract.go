// Package pdftext extracts plain text from PDF bytes for classification.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText returns the plain text of the whole document.
func ExtractText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	b, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	if _, err := io.Copy(&sb, b); err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return sb.String(), nil
}

// ExtractPageText returns the plain text of a single page (1-based).
func ExtractPageText(data []byte, pageNumber int) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	if pageNumber < 1 || pageNumber > reader.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", pageNumber, reader.NumPage())
	}

	page := reader.Page(pageNumber)
	if page.V.IsNull() {
		return "", nil
	}

	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract page %d text: %w", pageNumber, err)
	}
	return text, nil
}

// PageCount reports the number of pages in the document.
func PageCount(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	return reader.NumPage(), nil
}
