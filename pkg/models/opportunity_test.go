package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusAt(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	deadline := func(d time.Time) *time.Time { return &d }

	tests := []struct {
		name     string
		deadline *time.Time
		want     string
	}{
		{"no deadline", nil, StatusUndefined},
		{"zero deadline", deadline(time.Time{}), StatusUndefined},
		{"far future", deadline(now.Add(72 * time.Hour)), StatusOpen},
		{"past", deadline(now.Add(-time.Hour)), StatusClosed},
		// Closed starts one day before the deadline.
		{"inside closing window", deadline(now.Add(12 * time.Hour)), StatusClosed},
		{"exactly one day out", deadline(now.Add(24 * time.Hour)), StatusOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := Opportunity{SubmissionDeadline: tt.deadline}
			assert.Equal(t, tt.want, opp.StatusAt(now))
		})
	}
}

func TestOpportunityKey(t *testing.T) {
	opp := Opportunity{ProviderName: "pncp", ExternalID: "123"}
	assert.Equal(t, "pncp:123", opp.Key())
}

func TestCompanyProfileText(t *testing.T) {
	c := Company{
		LegalName:   "Alfa Equipamentos LTDA",
		TradeName:   "Alfa",
		Description: "Fornecedora de equipamentos hospitalares",
		Products:    []string{"macas", "monitores"},
		Keywords:    []string{"hospitalar"},
	}
	got := c.ProfileText()

	assert.Contains(t, got, "Alfa Equipamentos LTDA")
	assert.Contains(t, got, "monitores")
	assert.Contains(t, got, "hospitalar")
}

func TestCompanyProfileTextSkipsDuplicateTradeName(t *testing.T) {
	c := Company{LegalName: "Beta", TradeName: "Beta"}
	assert.Equal(t, "Beta", c.ProfileText())
}
