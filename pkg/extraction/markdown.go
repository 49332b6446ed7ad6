package extraction

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// MarkdownEngine handles the text-like formats: plain text is passed
// through, HTML is flattened to readable text with headings and paragraphs
// on their own lines. It is first in the chain because it preserves layout
// that the PDF engines would mangle.
type MarkdownEngine struct{}

func (MarkdownEngine) Name() string { return "markdown" }

func (MarkdownEngine) Supports(mimeType string) bool {
	switch {
	case strings.Contains(mimeType, "text/html"),
		strings.Contains(mimeType, "text/plain"),
		strings.Contains(mimeType, "text/markdown"),
		strings.Contains(mimeType, "text/csv"):
		return true
	}
	return false
}

func (e MarkdownEngine) Extract(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := string(data)
	head := text
	if len(head) > 1024 {
		head = head[:1024]
	}
	if strings.Contains(strings.ToLower(head), "<html") || strings.Contains(text, "</") {
		if flattened, err := flattenHTML(text); err == nil && flattened != "" {
			text = flattened
		}
	}

	text = strings.TrimSpace(text)
	return &Result{
		Success:   text != "",
		Text:      text,
		PageCount: 1,
		Engine:    e.Name(),
		Duration:  time.Since(start),
	}, nil
}

// flattenHTML renders block-level elements one per line, dropping scripts
// and styles.
func flattenHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()

	var lines []string
	doc.Find("h1, h2, h3, h4, p, li, td, th, pre").Each(func(_ int, sel *goquery.Selection) {
		line := strings.TrimSpace(sel.Text())
		if line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(lines, "\n"), nil
}
