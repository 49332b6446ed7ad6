package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/licitahub/licitahub/pkg/models"
)

// UpsertMatch writes a match row. Re-running matching for an existing
// (company, opportunity) pair refreshes the score and the LLM verdict.
func (s *Service) UpsertMatch(ctx context.Context, m *models.Match) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (company_id, opportunity_id, similarity_score, llm_approved, llm_reasoning, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (company_id, opportunity_id) DO UPDATE SET
			similarity_score = EXCLUDED.similarity_score,
			llm_approved = EXCLUDED.llm_approved,
			llm_reasoning = EXCLUDED.llm_reasoning`,
		m.CompanyID, m.OpportunityID, m.SimilarityScore, m.LLMApproved, m.LLMReasoning, s.now())
	if err != nil {
		return fmt.Errorf("upsert match %s/%d: %w", m.CompanyID, m.OpportunityID, err)
	}
	return nil
}

// ClearMatches deletes the match rows of the given opportunities, for
// reevaluation runs that start from a clean slate.
func (s *Service) ClearMatches(ctx context.Context, opportunityIDs []int64) (int64, error) {
	if len(opportunityIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM matches WHERE opportunity_id = ANY($1)`, pq.Array(opportunityIDs))
	if err != nil {
		return 0, fmt.Errorf("clear matches: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MatchedOpportunityIDs returns, out of the given opportunity ids, those
// that already have a match row for the company. The incremental run skips
// these pairs.
func (s *Service) MatchedOpportunityIDs(ctx context.Context, companyID uuid.UUID, opportunityIDs []int64) (map[int64]bool, error) {
	if len(opportunityIDs) == 0 {
		return map[int64]bool{}, nil
	}
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT opportunity_id FROM matches
		WHERE company_id = $1 AND opportunity_id = ANY($2)`,
		companyID, pq.Array(opportunityIDs))
	if err != nil {
		return nil, fmt.Errorf("list matched opportunities for company %s: %w", companyID, err)
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// ListMatches lists the match rows of one company, best score first.
func (s *Service) ListMatches(ctx context.Context, companyID uuid.UUID, limit int) ([]models.Match, error) {
	query := `SELECT company_id, opportunity_id, similarity_score, llm_approved, llm_reasoning, created_at
	          FROM matches WHERE company_id = $1 ORDER BY similarity_score DESC`
	args := []interface{}{companyID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var matches []models.Match
	if err := s.db.SelectContext(ctx, &matches, query, args...); err != nil {
		return nil, fmt.Errorf("list matches for company %s: %w", companyID, err)
	}
	return matches, nil
}
