// Package chunking splits extracted document text into bounded, overlapping
// chunks that preserve the document's structure: page numbers, section
// titles and the kind of content each chunk holds.
package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/licitahub/licitahub/pkg/models"
)

// Config tunes the chunker. Sizes are in characters; the 4:1 char-to-token
// approximation holds well enough for Portuguese tender prose.
type Config struct {
	// TargetChunkChars is the packing target per chunk.
	TargetChunkChars int
	// SectionCapChars forces a section break past this size.
	SectionCapChars int
	// OverlapChars is prepended from each chunk's predecessor.
	OverlapChars int
	// MinChunkChars drops fragments below this size.
	MinChunkChars int
}

// DefaultConfig matches roughly 800-token chunks with a 25-token overlap.
func DefaultConfig() Config {
	return Config{
		TargetChunkChars: 3200,
		SectionCapChars:  4000,
		OverlapChars:     100,
		MinChunkChars:    100,
	}
}

// Chunker splits one document's text.
type Chunker struct {
	cfg Config
}

// New creates a chunker; zero config fields take defaults.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.TargetChunkChars <= 0 {
		cfg.TargetChunkChars = def.TargetChunkChars
	}
	if cfg.SectionCapChars <= 0 {
		cfg.SectionCapChars = def.SectionCapChars
	}
	if cfg.OverlapChars <= 0 {
		cfg.OverlapChars = def.OverlapChars
	}
	if cfg.MinChunkChars <= 0 {
		cfg.MinChunkChars = def.MinChunkChars
	}
	return &Chunker{cfg: cfg}
}

var (
	pageMarkerRe = regexp.MustCompile(`(?mi)^---\s*(?:P[ÁA]GINA|PAGE)\s+(\d+)\s*---\s*$`)
	numberedRe   = regexp.MustCompile(`^\d+(\.\d+)*[.)]?\s`)
	decimalRe    = regexp.MustCompile(`^\d+\.\d+`)
	listRe       = regexp.MustCompile(`^\s*(?:[-•*]|[a-z]\)|\d+\))\s+`)
	sentenceRe   = regexp.MustCompile(`([.!?])\s+`)
	wideGapRe    = regexp.MustCompile(`\s{3,}`)
)

// Chunk splits the text into ordered chunks. Returned chunks carry type,
// page number, section title and size counters; ids and embeddings are the
// caller's business.
func (c *Chunker) Chunk(text string) []models.Chunk {
	var chunks []models.Chunk
	for _, page := range splitPages(text) {
		for _, section := range c.sections(page) {
			chunks = append(chunks, c.packSection(section)...)
		}
	}
	chunks = c.applyOverlap(chunks)

	out := chunks[:0]
	for _, chunk := range chunks {
		if len(chunk.Text) >= c.cfg.MinChunkChars {
			out = append(out, chunk)
		}
	}
	return out
}

// page is one page of extracted text.
type page struct {
	number int
	text   string
}

// splitPages cuts the text on page markers. Text before the first marker
// belongs to page 1.
func splitPages(text string) []page {
	markers := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	if len(markers) == 0 {
		return []page{{number: 1, text: text}}
	}

	var pages []page
	if head := strings.TrimSpace(text[:markers[0][0]]); head != "" {
		pages = append(pages, page{number: 1, text: head})
	}
	for i, m := range markers {
		number := atoiSafe(text[m[2]:m[3]])
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])
		if body != "" {
			pages = append(pages, page{number: number, text: body})
		}
	}
	return pages
}

// section is a run of same-shaped consecutive lines.
type section struct {
	kind       string
	title      *string
	pageNumber int
	text       string
}

// sections groups the page's lines. A title or subtitle line always starts
// a new section and becomes the following section's title; a section also
// breaks when it outgrows the cap.
func (c *Chunker) sections(p page) []section {
	var (
		out     []section
		current *section
		title   *string
	)

	flush := func() {
		if current != nil && strings.TrimSpace(current.text) != "" {
			current.text = strings.TrimSpace(current.text)
			out = append(out, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(p.text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		kind := classifyLine(trimmed)

		if kind == models.ChunkTitle || kind == models.ChunkSubtitle {
			flush()
			heading := trimmed
			title = &heading
			out = append(out, section{kind: kind, title: &heading, pageNumber: p.number, text: trimmed})
			continue
		}

		if current != nil && (current.kind != kind || len(current.text) > c.cfg.SectionCapChars) {
			flush()
		}
		if current == nil {
			current = &section{kind: kind, title: title, pageNumber: p.number}
		}
		if current.text != "" {
			current.text += "\n"
		}
		current.text += trimmed
	}
	flush()
	return out
}

// classifyLine decides what one line is.
func classifyLine(line string) string {
	switch {
	case listRe.MatchString(line):
		return models.ChunkList
	case looksTabular(line):
		return models.ChunkTable
	case len(line) <= 80 && (isUpperLine(line) || numberedRe.MatchString(line)) && !strings.HasSuffix(line, "."):
		if strings.HasSuffix(line, ":") || decimalRe.MatchString(line) {
			return models.ChunkSubtitle
		}
		return models.ChunkTitle
	case strings.HasSuffix(line, ":") && len(line) <= 120:
		return models.ChunkSubtitle
	default:
		return models.ChunkParagraph
	}
}

// looksTabular detects column-ish lines: repeated wide gaps, tabs or
// key:value separators.
func looksTabular(line string) bool {
	score := strings.Count(line, "\t")
	score += len(wideGapRe.FindAllString(line, -1))
	score += strings.Count(line, ":")
	return score >= 2 && !strings.HasSuffix(line, ":")
}

func isUpperLine(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

// packSection emits the section as one chunk when it fits, otherwise packs
// its sentences greedily up to the target size.
func (c *Chunker) packSection(sec section) []models.Chunk {
	build := func(text string) models.Chunk {
		text = strings.TrimSpace(text)
		return models.Chunk{
			Text:         text,
			ChunkType:    sec.kind,
			PageNumber:   sec.pageNumber,
			SectionTitle: sec.title,
			CharCount:    len(text),
			TokenCount:   (len(text) + 3) / 4,
		}
	}

	if len(sec.text) <= c.cfg.TargetChunkChars {
		return []models.Chunk{build(sec.text)}
	}

	var (
		chunks  []models.Chunk
		current strings.Builder
	)
	for _, sentence := range splitSentences(sec.text) {
		if current.Len() > 0 && current.Len()+len(sentence) > c.cfg.TargetChunkChars {
			chunks = append(chunks, build(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, build(current.String()))
	}
	return chunks
}

// splitSentences cuts on sentence-final punctuation followed by whitespace,
// keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	parts := sentenceRe.Split(text, -1)
	marks := sentenceRe.FindAllStringSubmatch(text, -1)

	out := make([]string, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i < len(marks) {
			part += marks[i][1]
		}
		out = append(out, part)
	}
	return out
}

// applyOverlap prepends the tail of each chunk's predecessor, cut on a word
// boundary, and marks the receiving chunks.
func (c *Chunker) applyOverlap(chunks []models.Chunk) []models.Chunk {
	for i := len(chunks) - 1; i >= 1; i-- {
		tail := overlapTail(chunks[i-1].Text, c.cfg.OverlapChars)
		if tail == "" {
			continue
		}
		chunks[i].Text = tail + " " + chunks[i].Text
		chunks[i].CharCount = len(chunks[i].Text)
		chunks[i].TokenCount = (len(chunks[i].Text) + 3) / 4
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = map[string]interface{}{}
		}
		chunks[i].Metadata["has_overlap"] = true
	}
	return chunks
}

func overlapTail(text string, chars int) string {
	if len(text) <= chars {
		return text
	}
	// The cut is in bytes; step forward to a rune boundary so accented
	// text never yields a broken prefix.
	cut := len(text) - chars
	for cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut++
	}
	tail := text[cut:]
	if i := strings.IndexAny(tail, " \n"); i >= 0 {
		tail = tail[i+1:]
	}
	return strings.TrimSpace(tail)
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 1
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 1
	}
	return n
}
