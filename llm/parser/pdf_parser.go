package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kart-io/logger"
	"github.com/ledongthuc/pdf"
)

// PDFParser extracts the plain text layer of PDF files.
// Image-only pages produce no text; the chunker rejects documents that end up empty.
type PDFParser struct {
	// pageSeparator is written between the text of consecutive pages
	pageSeparator string
}

// NewPDFParser creates a new PDF parser
func NewPDFParser() *PDFParser {
	return &PDFParser{
		pageSeparator: "\n\n",
	}
}

// Parse reads and parses PDF from the reader
func (p *PDFParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	return recoverPDF(func() (*Document, error) {
		return p.parseBytes(ctx, data)
	})
}

// recoverPDF turns a panic inside the pdf reader into an error.
// The reader panics on some malformed content streams and fonts.
func recoverPDF(parse func() (*Document, error)) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnw("pdf reader panicked", "panic", fmt.Sprint(r))
			doc = nil
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()
	return parse()
}

// parseBytes extracts text page by page
func (p *PDFParser) parseBytes(ctx context.Context, data []byte) (*Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	pageCount := reader.NumPage()
	var content strings.Builder
	skipped := 0

	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			skipped++
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warnw("skipping unreadable pdf page", "page", i, "error", err.Error())
			skipped++
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if content.Len() > 0 {
			content.WriteString(p.pageSeparator)
		}
		content.WriteString(text)
	}

	body := content.String()
	return &Document{
		Content: body,
		Title:   ExtractTitle(body, ""),
		Metadata: map[string]interface{}{
			"page_count":    pageCount,
			"skipped_pages": skipped,
			"file_size":     len(data),
		},
	}, nil
}

// FileType returns the file type this parser handles
func (p *PDFParser) FileType() FileType {
	return FileTypePDF
}
