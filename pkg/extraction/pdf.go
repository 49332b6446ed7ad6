package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// PageMarker formats the page separators the chunker splits on.
func PageMarker(page int) string {
	return fmt.Sprintf("--- PAGE %d ---", page)
}

// PDFPagesEngine extracts PDF text page by page, emitting a page marker
// before each page so downstream chunking keeps page numbers.
type PDFPagesEngine struct{}

func (PDFPagesEngine) Name() string { return "pdf_pages" }

func (PDFPagesEngine) Supports(mimeType string) bool {
	return strings.Contains(mimeType, "pdf")
}

func (e PDFPagesEngine) Extract(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	total := reader.NumPage()
	var sb strings.Builder
	extracted := 0

	for pageNum := 1; pageNum <= total; pageNum++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// One unreadable page never sinks the document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		sb.WriteString(PageMarker(pageNum))
		sb.WriteString("\n")
		sb.WriteString(text)
		sb.WriteString("\n\n")
		extracted++
	}

	out := strings.TrimSpace(sb.String())
	return &Result{
		Success:   out != "",
		Text:      out,
		PageCount: total,
		Engine:    e.Name(),
		Duration:  time.Since(start),
	}, nil
}

// PDFPlainEngine extracts the whole PDF in one pass. It loses page
// boundaries but survives documents the page-by-page reader chokes on.
type PDFPlainEngine struct{}

func (PDFPlainEngine) Name() string { return "pdf_plain" }

func (PDFPlainEngine) Supports(mimeType string) bool {
	return strings.Contains(mimeType, "pdf")
}

func (e PDFPlainEngine) Extract(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	return &Result{
		Success:   text != "",
		Text:      text,
		PageCount: reader.NumPage(),
		Engine:    e.Name(),
		Duration:  time.Since(start),
	}, nil
}
