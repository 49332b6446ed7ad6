package persistence

import (
	"context"
	"fmt"

	"github.com/licitahub/licitahub/pkg/models"
)

// SaveItems replaces the stored line items of one opportunity. Item fetches
// return the complete list, so replace-all keeps the table consistent with
// the source.
func (s *Service) SaveItems(ctx context.Context, opportunityID int64, items []models.Item) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin items tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM opportunity_items WHERE opportunity_id = $1`, opportunityID); err != nil {
		return fmt.Errorf("clear items for opportunity %d: %w", opportunityID, err)
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO opportunity_items
				(opportunity_id, item_number, description, quantity, unit,
				 unit_estimated_value, material_or_service, ncm_code, me_epp_exclusive)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			opportunityID, item.ItemNumber, item.Description, item.Quantity, item.Unit,
			item.UnitEstimatedValue, item.MaterialOrService, item.NCMCode, item.MEEPPExclusive,
		); err != nil {
			return fmt.Errorf("insert item %d of opportunity %d: %w", item.ItemNumber, opportunityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit items tx: %w", err)
	}
	return nil
}

// GetItems lists the stored line items of one opportunity in item order.
func (s *Service) GetItems(ctx context.Context, opportunityID int64) ([]models.Item, error) {
	var items []models.Item
	err := s.db.SelectContext(ctx, &items, `
		SELECT item_number, description, quantity, unit, unit_estimated_value,
		       material_or_service, ncm_code, me_epp_exclusive
		FROM opportunity_items WHERE opportunity_id = $1 ORDER BY item_number`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list items of opportunity %d: %w", opportunityID, err)
	}
	return items, nil
}
