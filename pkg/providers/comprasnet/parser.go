package comprasnet

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
)

// unknownEntity is used when the organization hierarchy cannot be parsed.
// Degrading to a placeholder beats dropping the tender.
const unknownEntity = "Entidade não identificada"

var (
	uasgRe     = regexp.MustCompile(`Código da UASG\s*:\s*(\d+)`)
	pregaoRe   = regexp.MustCompile(`Pregão Eletrônico\s+Nº\s*(\d+)/(\d+)`)
	objetoRe   = regexp.MustCompile(`Objeto:\s*(?:Objeto:\s*)?(.+?)\s*(?:Edital a partir de|Endereço:|Telefone:|$)`)
	cityUFRe   = regexp.MustCompile(`-\s*([^()-]+?)\s*\(([A-Z]{2})\)`)
	phoneRe    = regexp.MustCompile(`Telefone:\s*\(?(\d{2})\)?\s*([\d.\- ]{7,})`)
	editalRe   = regexp.MustCompile(`Edital a partir de:\s*(\d{2}/\d{2}/\d{4})`)
	propostaRe = regexp.MustCompile(`Entrega da Proposta:\s*(\d{2}/\d{2}/\d{4})`)
	onclickRe  = regexp.MustCompile(`(?:window\.open|location\.href=|Visualizar\w*)\(?['"]([^'"]+)['"]`)
)

func jsonMarshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func jsonUnmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// parseListing extracts one opportunity per <form> block of the listing
// page. Malformed blocks are logged and skipped, never fatal.
func parseListing(html string, logger observability.Logger) ([]models.Opportunity, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing HTML: %w", err)
	}

	var opps []models.Opportunity
	doc.Find("form").Each(func(i int, form *goquery.Selection) {
		opp, ok := parseFormBlock(form)
		if !ok {
			logger.Debug("skipping unparseable listing block", map[string]interface{}{"index": i})
			return
		}
		opps = append(opps, opp)
	})
	return opps, nil
}

// parseFormBlock parses one listing <form> into a normalized opportunity.
// The bool result is false when the block has no tender number (navigation
// forms on the same page also match the selector).
func parseFormBlock(form *goquery.Selection) (models.Opportunity, bool) {
	text := form.Text()

	pregao := pregaoRe.FindStringSubmatch(text)
	if pregao == nil {
		return models.Opportunity{}, false
	}
	number, year := pregao[1], pregao[2]

	uasg := ""
	if m := uasgRe.FindStringSubmatch(text); m != nil {
		uasg = m[1]
	}

	entity := parseEntityName(form)

	externalID := fmt.Sprintf("scrape_%s_%s_%s", uasg, number, year)

	opp := models.Opportunity{
		ProviderName:        ProviderName,
		ExternalID:          externalID,
		CurrencyCode:        "BRL",
		CountryCode:         "BR",
		ProcuringEntityID:   uasg,
		ProcuringEntityName: entity,
	}

	if m := objetoRe.FindStringSubmatch(text); m != nil {
		opp.Title = strings.TrimSpace(m[1])
		opp.Description = opp.Title
	}
	if m := cityUFRe.FindStringSubmatch(text); m != nil {
		opp.Municipality = strings.TrimSpace(m[1])
		opp.RegionCode = m[2]
	}
	if m := editalRe.FindStringSubmatch(text); m != nil {
		opp.PublicationDate = parseBRDate(m[1])
	}
	if m := propostaRe.FindStringSubmatch(text); m != nil {
		opp.SubmissionDeadline = parseBRDate(m[1])
	}

	specific := map[string]interface{}{
		"uasg":          uasg,
		"pregao_numero": number,
		"pregao_ano":    year,
	}
	if m := phoneRe.FindStringSubmatch(text); m != nil {
		specific["telefone"] = "(" + m[1] + ") " + strings.TrimSpace(m[2])
	}

	// History and items buttons navigate via inline JavaScript; the URL
	// fragment inside the handler is kept for later item fetches.
	form.Find("input[type=button], button, a").Each(func(_ int, el *goquery.Selection) {
		onclick, ok := el.Attr("onclick")
		if !ok {
			return
		}
		m := onclickRe.FindStringSubmatch(onclick)
		if m == nil {
			return
		}
		label := strings.ToLower(el.AttrOr("value", el.Text()))
		switch {
		case strings.Contains(label, "iten"):
			specific["items_url"] = m[1]
		case strings.Contains(label, "hist"):
			specific["history_url"] = m[1]
		}
	})
	opp.ProviderSpecificData = specific

	return opp, true
}

// parseEntityName reads the organization hierarchy from the block's first
// <b>: lines separated by <br>, last line is the entity. Some organizations
// carry their UASG code line where the name is expected, so the last
// non-UASG line wins.
func parseEntityName(form *goquery.Selection) string {
	bold := form.Find("b").First()
	if bold.Length() == 0 {
		return unknownEntity
	}

	inner, err := bold.Html()
	if err != nil || strings.TrimSpace(inner) == "" {
		return unknownEntity
	}

	lines := regexp.MustCompile(`(?i)<br\s*/?>`).Split(inner, -1)
	entity := ""
	for _, line := range lines {
		line = strings.TrimSpace(stripTags(line))
		if line == "" || uasgRe.MatchString(line) {
			continue
		}
		entity = line
	}
	if entity == "" {
		return unknownEntity
	}
	return entity
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}

// parseBRDate parses DD/MM/YYYY as a timezone-naive local date.
func parseBRDate(s string) *time.Time {
	t, err := time.ParseInLocation("02/01/2006", s, time.Local)
	if err != nil {
		return nil
	}
	return &t
}
