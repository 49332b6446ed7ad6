package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Company is a supplier in the catalog that opportunities are matched against.
type Company struct {
	ID          uuid.UUID `json:"id" db:"id"`
	LegalName   string    `json:"legal_name" db:"legal_name"`
	TradeName   string    `json:"trade_name" db:"trade_name"`
	TaxID       string    `json:"tax_id" db:"tax_id"`
	Description string    `json:"description" db:"description"`
	Products    []string  `json:"products" db:"-"`
	Keywords    []string  `json:"keywords" db:"-"`
	OwnerUserID string    `json:"owner_user_id" db:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ProfileText builds the text representation used for vectorization:
// names, description, products and keywords joined into one document.
func (c *Company) ProfileText() string {
	parts := make([]string, 0, 4+len(c.Products)+len(c.Keywords))
	if c.LegalName != "" {
		parts = append(parts, c.LegalName)
	}
	if c.TradeName != "" && c.TradeName != c.LegalName {
		parts = append(parts, c.TradeName)
	}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	parts = append(parts, c.Products...)
	parts = append(parts, c.Keywords...)
	return strings.Join(parts, ". ")
}

// Match records the outcome of evaluating one company against one
// opportunity. At most one row exists per (CompanyID, OpportunityID).
// Pairs the LLM gate rejected are stored too, with LLMApproved false, so
// re-runs skip them and the verdict stays auditable; consumers listing
// matches must filter on LLMApproved.
type Match struct {
	CompanyID       uuid.UUID `json:"company_id" db:"company_id"`
	OpportunityID   int64     `json:"opportunity_id" db:"opportunity_id"`
	SimilarityScore float64   `json:"similarity_score" db:"similarity_score"`
	LLMApproved     *bool     `json:"llm_approved,omitempty" db:"llm_approved"`
	LLMReasoning    *string   `json:"llm_reasoning,omitempty" db:"llm_reasoning"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
