package comprasnet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/licitahub/licitahub/pkg/models"
)

var (
	itemHeaderRe = regexp.MustCompile(`(?i)^\s*Item\s*:?\s*(\d+)`)
	qtyRe        = regexp.MustCompile(`(?i)Quantidade\s*:\s*([\d.,]+)`)
	unitRe       = regexp.MustCompile(`(?i)Unidade de fornecimento\s*:\s*([^\n]+)`)
	treatmentRe  = regexp.MustCompile(`(?i)Tratamento Diferenciado\s*:\s*Tipo\s*I`)
)

// parseItems parses the item table page linked from a listing block. Each
// table row (or item block) becomes one normalized item.
func parseItems(html string) ([]models.Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse items HTML: %w", err)
	}

	var items []models.Item
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		text := row.Text()
		header := itemHeaderRe.FindStringSubmatch(text)
		if header == nil {
			return
		}
		number, _ := strconv.Atoi(header[1])

		item := models.Item{
			ItemNumber:        number,
			MaterialOrService: classifyItem(text),
			MEEPPExclusive:    treatmentRe.MatchString(text),
		}

		// The description is the row text after the item header line,
		// up to the first labeled field.
		desc := text[itemHeaderRe.FindStringIndex(text)[1]:]
		if cut := strings.IndexAny(desc, "\n"); cut > 0 {
			desc = desc[:cut]
		}
		desc = strings.TrimPrefix(strings.TrimSpace(desc), "-")
		item.Description = strings.TrimSpace(desc)

		if m := qtyRe.FindStringSubmatch(text); m != nil {
			item.Quantity = parseBRNumber(m[1])
		}
		if m := unitRe.FindStringSubmatch(text); m != nil {
			item.Unit = strings.TrimSpace(m[1])
		}

		items = append(items, item)
	})

	return items, nil
}

// classifyItem decides material vs service from the row's labels.
func classifyItem(text string) string {
	if regexp.MustCompile(`(?i)serviço|servico`).MatchString(text) {
		return models.ItemService
	}
	return models.ItemMaterial
}

// parseBRNumber parses numbers in Brazilian format (1.234,56).
func parseBRNumber(s string) float64 {
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
