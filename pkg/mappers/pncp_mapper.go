package mappers

import (
	"fmt"
	"regexp"

	"github.com/licitahub/licitahub/pkg/models"
)

var pncpControlNumberRe = regexp.MustCompile(`^\d{14}-\d+-\d+/\d{4}$`)

// PNCPMapper maps opportunities from the REST portal.
type PNCPMapper struct {
	baseMapper
}

// NewPNCPMapper creates the mapper for the "pncp" provider.
func NewPNCPMapper() *PNCPMapper {
	return &PNCPMapper{baseMapper{provider: "pncp"}}
}

// Validate enforces the portal's required fields: a well-formed control
// number, a title and the procuring entity's CNPJ.
func (m *PNCPMapper) Validate(opp *models.Opportunity) error {
	if opp.ProviderName != m.provider {
		return fmt.Errorf("opportunity belongs to provider %q, not %q", opp.ProviderName, m.provider)
	}
	if !pncpControlNumberRe.MatchString(opp.ExternalID) {
		return fmt.Errorf("malformed control number %q", opp.ExternalID)
	}
	if opp.Title == "" {
		return fmt.Errorf("opportunity %s has no title", opp.ExternalID)
	}
	if opp.ProcuringEntityID == "" {
		return fmt.Errorf("opportunity %s has no procuring entity id", opp.ExternalID)
	}
	return nil
}
