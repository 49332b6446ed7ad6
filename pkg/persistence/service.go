// Package persistence stores normalized opportunities keyed by
// (provider_name, external_id), dispatching row conversion to the
// per-provider mapper registry. Upserts are insert-if-absent, full-row
// update if present; the database's unique constraint serializes concurrent
// writers for the same key.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/licitahub/licitahub/pkg/mappers"
	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
)

// Service persists opportunities, items, companies and matches.
type Service struct {
	db       *sqlx.DB
	registry *mappers.Registry
	logger   observability.Logger
	now      func() time.Time
}

// NewService creates a persistence service.
func NewService(db *sqlx.DB, registry *mappers.Registry, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Service{
		db:       db,
		registry: registry,
		logger:   logger.WithPrefix("persistence"),
		now:      time.Now,
	}
}

const opportunityColumns = `provider_name, external_id, title, description,
	estimated_value, currency_code, country_code, region_code, municipality,
	publication_date, submission_deadline, opening_date,
	procuring_entity_id, procuring_entity_name, category, status, provider_data`

// Save upserts one opportunity. It reports whether a new row was created.
// CreatedAt is never overwritten; UpdatedAt always advances on update.
func (s *Service) Save(ctx context.Context, opp *models.Opportunity) (bool, error) {
	if opp.ProviderName == "" {
		return false, fmt.Errorf("opportunity %q has no provider name", opp.ExternalID)
	}

	mapper, err := s.registry.Get(opp.ProviderName)
	if err != nil {
		return false, err
	}
	if err := mapper.Validate(opp); err != nil {
		return false, fmt.Errorf("validation failed for %s: %w", opp.Key(), err)
	}
	row, err := mapper.ToRow(opp)
	if err != nil {
		return false, err
	}

	var existingID int64
	err = s.db.GetContext(ctx, &existingID,
		`SELECT id FROM opportunities WHERE provider_name = $1 AND external_id = $2`,
		row.ProviderName, row.ExternalID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return true, s.insert(ctx, row, opp.Items)
	case err != nil:
		return false, fmt.Errorf("lookup %s: %w", opp.Key(), err)
	default:
		return false, s.update(ctx, existingID, row, opp.Items)
	}
}

func (s *Service) insert(ctx context.Context, row *mappers.Row, items []models.Item) error {
	now := s.now()
	var id int64
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO opportunities (`+opportunityColumns+`, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		ON CONFLICT (provider_name, external_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id`,
		row.ProviderName, row.ExternalID, row.Title, row.Description,
		row.EstimatedValue, row.CurrencyCode, row.CountryCode, row.RegionCode, row.Municipality,
		row.PublicationDate, row.SubmissionDeadline, row.OpeningDate,
		row.ProcuringEntityID, row.ProcuringEntityName, row.Category, row.Status, row.ProviderData,
		now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert %s:%s: %w", row.ProviderName, row.ExternalID, err)
	}

	if len(items) > 0 {
		if err := s.SaveItems(ctx, id, items); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) update(ctx context.Context, id int64, row *mappers.Row, items []models.Item) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE opportunities SET
			title = $1, description = $2, estimated_value = $3, currency_code = $4,
			country_code = $5, region_code = $6, municipality = $7,
			publication_date = $8, submission_deadline = $9, opening_date = $10,
			procuring_entity_id = $11, procuring_entity_name = $12,
			category = $13, status = $14, provider_data = $15, updated_at = $16
		WHERE id = $17`,
		row.Title, row.Description, row.EstimatedValue, row.CurrencyCode,
		row.CountryCode, row.RegionCode, row.Municipality,
		row.PublicationDate, row.SubmissionDeadline, row.OpeningDate,
		row.ProcuringEntityID, row.ProcuringEntityName,
		row.Category, row.Status, row.ProviderData, s.now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update %s:%s: %w", row.ProviderName, row.ExternalID, err)
	}

	if len(items) > 0 {
		if err := s.SaveItems(ctx, id, items); err != nil {
			return err
		}
	}
	return nil
}

// BatchResult counts the outcomes of SaveBatch. The three counters always
// sum to the batch length.
type BatchResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// SaveBatch saves a batch of opportunities grouped by provider so the mapper
// lookup amortizes. Records without a provider name are skipped; one bad
// record never corrupts its neighbors.
func (s *Service) SaveBatch(ctx context.Context, opps []models.Opportunity) BatchResult {
	var result BatchResult

	byProvider := make(map[string][]*models.Opportunity)
	for i := range opps {
		if opps[i].ProviderName == "" {
			result.Skipped++
			continue
		}
		byProvider[opps[i].ProviderName] = append(byProvider[opps[i].ProviderName], &opps[i])
	}

	for provider, group := range byProvider {
		if _, err := s.registry.Get(provider); err != nil {
			s.logger.Warn("skipping batch group for unknown provider", map[string]interface{}{
				"provider": provider, "count": len(group),
			})
			result.Skipped += len(group)
			continue
		}
		for _, opp := range group {
			if _, err := s.Save(ctx, opp); err != nil {
				s.logger.Error("failed to save opportunity", map[string]interface{}{
					"key": opp.Key(), "error": err.Error(),
				})
				result.Failed++
				continue
			}
			result.Success++
		}
	}
	return result
}

// Get retrieves one opportunity by its composite key, or nil when absent.
func (s *Service) Get(ctx context.Context, provider, externalID string) (*models.Opportunity, error) {
	var row mappers.Row
	err := s.db.GetContext(ctx, &row,
		`SELECT id, `+opportunityColumns+`, created_at, updated_at
		 FROM opportunities WHERE provider_name = $1 AND external_id = $2`,
		provider, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s:%s: %w", provider, externalID, err)
	}
	return s.fromRow(&row)
}

// Stored pairs a normalized opportunity with its internal row id, which
// matches, documents and chunks reference.
type Stored struct {
	ID          int64
	Opportunity models.Opportunity
}

// GetStored retrieves one opportunity plus its row id.
func (s *Service) GetStored(ctx context.Context, provider, externalID string) (*Stored, error) {
	var row mappers.Row
	err := s.db.GetContext(ctx, &row,
		`SELECT id, `+opportunityColumns+`, created_at, updated_at
		 FROM opportunities WHERE provider_name = $1 AND external_id = $2`,
		provider, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s:%s: %w", provider, externalID, err)
	}
	opp, err := s.fromRow(&row)
	if err != nil {
		return nil, err
	}
	return &Stored{ID: row.ID, Opportunity: *opp}, nil
}

// GetStoredByID retrieves one opportunity by internal row id.
func (s *Service) GetStoredByID(ctx context.Context, id int64) (*Stored, error) {
	var row mappers.Row
	err := s.db.GetContext(ctx, &row,
		`SELECT id, `+opportunityColumns+`, created_at, updated_at FROM opportunities WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get opportunity %d: %w", id, err)
	}
	opp, err := s.fromRow(&row)
	if err != nil {
		return nil, err
	}
	return &Stored{ID: row.ID, Opportunity: *opp}, nil
}

// SearchQuery is the SQL-level filter set of the persistence search.
type SearchQuery struct {
	Provider    string
	Status      string
	RegionCode  string
	Category    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// Search lists stored opportunities ordered by created_at descending.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]Stored, error) {
	query := `SELECT id, ` + opportunityColumns + `, created_at, updated_at FROM opportunities`
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if q.Provider != "" {
		add("provider_name = $%d", q.Provider)
	}
	if q.Status != "" {
		add("status = $%d", q.Status)
	}
	if q.RegionCode != "" {
		add("region_code = $%d", q.RegionCode)
	}
	if q.Category != "" {
		add("category = $%d", q.Category)
	}
	if q.CreatedFrom != nil {
		add("created_at >= $%d", *q.CreatedFrom)
	}
	if q.CreatedTo != nil {
		add("created_at <= $%d", *q.CreatedTo)
	}

	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	query += " ORDER BY created_at DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []mappers.Row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("search opportunities: %w", err)
	}

	out := make([]Stored, 0, len(rows))
	for i := range rows {
		opp, err := s.fromRow(&rows[i])
		if err != nil {
			s.logger.Warn("skipping unmappable row", map[string]interface{}{
				"id": rows[i].ID, "error": err.Error(),
			})
			continue
		}
		out = append(out, Stored{ID: rows[i].ID, Opportunity: *opp})
	}
	return out, nil
}

// ProviderCount is one entry of Stats.
type ProviderCount struct {
	Provider string `db:"provider_name" json:"provider"`
	Count    int64  `db:"count" json:"count"`
}

// Stats summarizes the stored opportunity set.
type Stats struct {
	Total      int64           `json:"total"`
	ByProvider []ProviderCount `json:"by_provider"`
}

// Stats reports total and per-provider row counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.db.GetContext(ctx, &stats.Total, `SELECT COUNT(*) FROM opportunities`); err != nil {
		return nil, fmt.Errorf("count opportunities: %w", err)
	}
	if err := s.db.SelectContext(ctx, &stats.ByProvider,
		`SELECT provider_name, COUNT(*) AS count FROM opportunities
		 GROUP BY provider_name ORDER BY count DESC`); err != nil {
		return nil, fmt.Errorf("count by provider: %w", err)
	}
	return &stats, nil
}

func (s *Service) fromRow(row *mappers.Row) (*models.Opportunity, error) {
	mapper, err := s.registry.Get(row.ProviderName)
	if err != nil {
		return nil, err
	}
	return mapper.FromRow(row)
}
