package mappers

import (
	"encoding/json"
	"fmt"

	"github.com/licitahub/licitahub/pkg/models"
)

// baseMapper implements the conversion shared by all providers. Concrete
// mappers embed it and add their own validation.
type baseMapper struct {
	provider string
}

func (b *baseMapper) ProviderName() string { return b.provider }

func (b *baseMapper) ToRow(opp *models.Opportunity) (*Row, error) {
	if opp.ProviderName != b.provider {
		return nil, fmt.Errorf("mapper %q cannot map opportunity from provider %q", b.provider, opp.ProviderName)
	}

	var providerData []byte
	if len(opp.ProviderSpecificData) > 0 {
		data, err := json.Marshal(opp.ProviderSpecificData)
		if err != nil {
			return nil, fmt.Errorf("marshal provider data for %s: %w", opp.Key(), err)
		}
		providerData = data
	}

	return &Row{
		ProviderName:        opp.ProviderName,
		ExternalID:          opp.ExternalID,
		Title:               opp.Title,
		Description:         opp.Description,
		EstimatedValue:      opp.EstimatedValue,
		CurrencyCode:        opp.CurrencyCode,
		CountryCode:         opp.CountryCode,
		RegionCode:          opp.RegionCode,
		Municipality:        opp.Municipality,
		PublicationDate:     opp.PublicationDate,
		SubmissionDeadline:  opp.SubmissionDeadline,
		OpeningDate:         opp.OpeningDate,
		ProcuringEntityID:   opp.ProcuringEntityID,
		ProcuringEntityName: opp.ProcuringEntityName,
		Category:            opp.Category,
		Status:              opp.Status(),
		ProviderData:        providerData,
	}, nil
}

func (b *baseMapper) FromRow(row *Row) (*models.Opportunity, error) {
	if row.ProviderName != b.provider {
		return nil, fmt.Errorf("mapper %q cannot map row from provider %q", b.provider, row.ProviderName)
	}

	opp := &models.Opportunity{
		ProviderName:        row.ProviderName,
		ExternalID:          row.ExternalID,
		Title:               row.Title,
		Description:         row.Description,
		EstimatedValue:      row.EstimatedValue,
		CurrencyCode:        row.CurrencyCode,
		CountryCode:         row.CountryCode,
		RegionCode:          row.RegionCode,
		Municipality:        row.Municipality,
		PublicationDate:     row.PublicationDate,
		SubmissionDeadline:  row.SubmissionDeadline,
		OpeningDate:         row.OpeningDate,
		ProcuringEntityID:   row.ProcuringEntityID,
		ProcuringEntityName: row.ProcuringEntityName,
		Category:            row.Category,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}

	if len(row.ProviderData) > 0 {
		var data map[string]interface{}
		if err := json.Unmarshal(row.ProviderData, &data); err != nil {
			return nil, fmt.Errorf("unmarshal provider data for %s:%s: %w", row.ProviderName, row.ExternalID, err)
		}
		opp.ProviderSpecificData = data
	}
	return opp, nil
}
