package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/licitahub/licitahub/pkg/models"
)

// companyRow matches the companies table; array columns need pq.StringArray.
type companyRow struct {
	ID          uuid.UUID      `db:"id"`
	LegalName   string         `db:"legal_name"`
	TradeName   string         `db:"trade_name"`
	TaxID       string         `db:"tax_id"`
	Description string         `db:"description"`
	Products    pq.StringArray `db:"products"`
	Keywords    pq.StringArray `db:"keywords"`
	OwnerUserID string         `db:"owner_user_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

// ListCompanies returns the full supplier catalog. Company management is
// owned by the outer application; the core only reads the catalog for
// matching.
func (s *Service) ListCompanies(ctx context.Context) ([]models.Company, error) {
	var rows []companyRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, legal_name, trade_name, tax_id, description,
		       products, keywords, owner_user_id, created_at
		FROM companies ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}

	out := make([]models.Company, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Company{
			ID:          r.ID,
			LegalName:   r.LegalName,
			TradeName:   r.TradeName,
			TaxID:       r.TaxID,
			Description: r.Description,
			Products:    r.Products,
			Keywords:    r.Keywords,
			OwnerUserID: r.OwnerUserID,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}
