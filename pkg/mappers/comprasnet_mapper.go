package mappers

import (
	"fmt"
	"strings"

	"github.com/licitahub/licitahub/pkg/models"
)

// ComprasNetMapper maps opportunities from the HTML-scraped portal.
type ComprasNetMapper struct {
	baseMapper
}

// NewComprasNetMapper creates the mapper for the "comprasnet" provider.
func NewComprasNetMapper() *ComprasNetMapper {
	return &ComprasNetMapper{baseMapper{provider: "comprasnet"}}
}

// Validate enforces the scraper's id convention and a non-empty title. The
// entity name may be the parser's placeholder, that is still a valid row.
func (m *ComprasNetMapper) Validate(opp *models.Opportunity) error {
	if opp.ProviderName != m.provider {
		return fmt.Errorf("opportunity belongs to provider %q, not %q", opp.ProviderName, m.provider)
	}
	if !strings.HasPrefix(opp.ExternalID, "scrape_") {
		return fmt.Errorf("malformed scrape id %q", opp.ExternalID)
	}
	if opp.Title == "" {
		return fmt.Errorf("opportunity %s has no title", opp.ExternalID)
	}
	return nil
}
