// Package mappers holds the per-provider translators between the normalized
// opportunity and the flat persisted row. New providers plug in by
// registering a mapper; nothing else in the persistence path changes.
package mappers

import (
	"fmt"
	"sync"
	"time"

	"github.com/licitahub/licitahub/pkg/models"
)

// Row is the flat structure matching the opportunities table schema.
type Row struct {
	ID                  int64      `db:"id"`
	ProviderName        string     `db:"provider_name"`
	ExternalID          string     `db:"external_id"`
	Title               string     `db:"title"`
	Description         string     `db:"description"`
	EstimatedValue      *float64   `db:"estimated_value"`
	CurrencyCode        string     `db:"currency_code"`
	CountryCode         string     `db:"country_code"`
	RegionCode          string     `db:"region_code"`
	Municipality        string     `db:"municipality"`
	PublicationDate     *time.Time `db:"publication_date"`
	SubmissionDeadline  *time.Time `db:"submission_deadline"`
	OpeningDate         *time.Time `db:"opening_date"`
	ProcuringEntityID   string     `db:"procuring_entity_id"`
	ProcuringEntityName string     `db:"procuring_entity_name"`
	Category            string     `db:"category"`
	Status              string     `db:"status"`
	ProviderData        []byte     `db:"provider_data"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// DataMapper converts between the normalized opportunity and its row form
// for one provider.
type DataMapper interface {
	// ProviderName returns the provider this mapper serves.
	ProviderName() string
	// Validate checks the provider-specific required fields.
	Validate(opp *models.Opportunity) error
	// ToRow flattens a normalized opportunity into a row.
	ToRow(opp *models.Opportunity) (*Row, error)
	// FromRow reconstructs the normalized opportunity from a row.
	FromRow(row *Row) (*models.Opportunity, error)
}

// Registry is the process-wide provider_name → DataMapper mapping. It is
// populated at startup and immutable afterwards.
type Registry struct {
	mu      sync.RWMutex
	mappers map[string]DataMapper
}

// NewRegistry creates an empty mapper registry.
func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]DataMapper)}
}

// Register adds a mapper. Duplicate registration is a programmer error.
func (r *Registry) Register(m DataMapper) error {
	name := m.ProviderName()
	if name == "" {
		return fmt.Errorf("mapper has empty provider name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mappers[name]; exists {
		return fmt.Errorf("mapper for provider %q already registered", name)
	}
	r.mappers[name] = m
	return nil
}

// Get returns the mapper for a provider name, failing fast on unknown names.
func (r *Registry) Get(providerName string) (DataMapper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappers[providerName]
	if !ok {
		return nil, fmt.Errorf("no mapper registered for provider %q", providerName)
	}
	return m, nil
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.mappers))
	for name := range r.mappers {
		names = append(names, name)
	}
	return names
}
