package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/internal/tokens"
)

func processPDF(data []byte) (model.ContentArtifact, error) {
	text, pages, err := extractPDFText(data)
	if err != nil {
		return model.ContentArtifact{}, &ValidationError{
			Reason:  ReasonUnreadable,
			Message: fmt.Sprintf("Invalid PDF: %v", err),
		}
	}
	return model.ContentArtifact{
		Kind:            model.ContentText,
		Data:            text,
		MimeType:        "application/pdf",
		Pages:           pages,
		EstimatedTokens: tokens.EstimateTextTokens(text),
	}, nil
}

// extractPDFText returns the trimmed text of every page that has any, joined
// by blank lines, along with the total page count. The pdf package panics on some
// malformed inputs, so panics are converted to errors.
func extractPDFText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	pages = r.NumPage()
	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			parts = append(parts, pageText)
		}
	}
	return strings.Join(parts, "\n\n"), pages, nil
}
