package mappers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/models"
)

func pncpOpportunity() *models.Opportunity {
	v := 1500.50
	return &models.Opportunity{
		ProviderName:        "pncp",
		ExternalID:          "00394452000103-1-000123/2024",
		Title:               "Aquisição de insumos",
		Description:         "Objeto detalhado",
		EstimatedValue:      &v,
		CurrencyCode:        "BRL",
		CountryCode:         "BR",
		RegionCode:          "SP",
		ProcuringEntityID:   "00394452000103",
		ProcuringEntityName: "Ministério da Gestão",
		ProviderSpecificData: map[string]interface{}{
			"modalidade_nome": "Pregão Eletrônico",
		},
	}
}

func TestRowRoundTrip(t *testing.T) {
	m := NewPNCPMapper()
	opp := pncpOpportunity()

	row, err := m.ToRow(opp)
	require.NoError(t, err)
	assert.Equal(t, "pncp", row.ProviderName)
	assert.NotEmpty(t, row.ProviderData)
	assert.NotEmpty(t, row.Status)

	back, err := m.FromRow(row)
	require.NoError(t, err)
	assert.Equal(t, opp.ExternalID, back.ExternalID)
	assert.Equal(t, opp.Title, back.Title)
	assert.Equal(t, *opp.EstimatedValue, *back.EstimatedValue)
	assert.Equal(t, "Pregão Eletrônico", back.ProviderSpecificData["modalidade_nome"])
}

func TestMapperRejectsForeignProvider(t *testing.T) {
	m := NewPNCPMapper()

	opp := pncpOpportunity()
	opp.ProviderName = "comprasnet"
	_, err := m.ToRow(opp)
	assert.Error(t, err)

	_, err = m.FromRow(&Row{ProviderName: "comprasnet"})
	assert.Error(t, err)
}

func TestPNCPValidate(t *testing.T) {
	m := NewPNCPMapper()
	assert.NoError(t, m.Validate(pncpOpportunity()))

	t.Run("malformed control number", func(t *testing.T) {
		opp := pncpOpportunity()
		opp.ExternalID = "scrape_123"
		assert.Error(t, m.Validate(opp))
	})

	t.Run("missing title", func(t *testing.T) {
		opp := pncpOpportunity()
		opp.Title = ""
		assert.Error(t, m.Validate(opp))
	})

	t.Run("missing entity id", func(t *testing.T) {
		opp := pncpOpportunity()
		opp.ProcuringEntityID = ""
		assert.Error(t, m.Validate(opp))
	})
}

func TestComprasNetValidate(t *testing.T) {
	m := NewComprasNetMapper()

	opp := &models.Opportunity{
		ProviderName: "comprasnet",
		ExternalID:   "scrape_250042_90015_2025",
		Title:        "Material hospitalar",
	}
	assert.NoError(t, m.Validate(opp))

	opp.ExternalID = "90015/2025"
	assert.Error(t, m.Validate(opp))
}

func TestMapperRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewPNCPMapper()))
	require.NoError(t, r.Register(NewComprasNetMapper()))

	assert.Error(t, r.Register(NewPNCPMapper()))

	m, err := r.Get("pncp")
	require.NoError(t, err)
	assert.Equal(t, "pncp", m.ProviderName())

	_, err = r.Get("desconhecido")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"pncp", "comprasnet"}, r.Names())
}
