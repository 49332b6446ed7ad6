package unifiedsearch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/observability"
	"github.com/licitahub/licitahub/pkg/providers"
)

// Service fans a search out to all registered adapters. It is created once
// at startup and shared; all methods are safe for concurrent use.
type Service struct {
	registry *providers.Registry
	synonyms SynonymExpander
	logger   observability.Logger

	// searchTimeout bounds each adapter's share of a fan-out call.
	searchTimeout time.Duration
	parallel      bool
}

// NewService creates the unified search service. synonyms may be nil, which
// disables keyword expansion.
func NewService(registry *providers.Registry, synonyms SynonymExpander, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Service{
		registry:      registry,
		synonyms:      synonyms,
		logger:        logger.WithPrefix("unified_search"),
		searchTimeout: 10 * time.Minute,
		parallel:      true,
	}
}

// SetParallelSearch toggles the concurrent fan-out. Sequential mode is for
// debugging upstream rate limits; results are identical.
func (s *Service) SetParallelSearch(enabled bool) {
	s.parallel = enabled
}

// SearchAll queries every registered provider concurrently and returns the
// per-provider result lists. A failing adapter contributes an empty list;
// the call itself never aborts.
func (s *Service) SearchAll(ctx context.Context, filters providers.Filters) (map[string][]models.Opportunity, error) {
	filters = s.enhanceFilters(ctx, filters)

	names := s.registry.Names()
	results := make(map[string][]models.Opportunity, len(names))

	search := func(name string) []models.Opportunity {
		adapter, err := s.registry.Get(name)
		if err != nil {
			return []models.Opportunity{}
		}

		searchCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
		defer cancel()

		opps, err := adapter.Search(searchCtx, filters)
		if err != nil {
			s.logger.Error("provider search failed", map[string]interface{}{
				"provider": name, "error": err.Error(),
			})
			opps = []models.Opportunity{}
		}
		for i := range opps {
			opps[i].ProviderName = name
		}
		return opps
	}

	if !s.parallel {
		for _, name := range names {
			results[name] = search(name)
		}
		return results, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			opps := search(name)
			mu.Lock()
			results[name] = opps
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	return results, nil
}

// SearchCombined flattens SearchAll into one list sorted by publication date
// descending, ties broken by estimated value descending. Rows with missing
// dates sort last.
func (s *Service) SearchCombined(ctx context.Context, filters providers.Filters) ([]models.Opportunity, error) {
	perProvider, err := s.SearchAll(ctx, filters)
	if err != nil {
		return nil, err
	}

	var combined []models.Opportunity
	for _, opps := range perProvider {
		combined = append(combined, opps...)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		ti := timeOrMin(combined[i].PublicationDate)
		tj := timeOrMin(combined[j].PublicationDate)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return valueOrZero(combined[i].EstimatedValue) > valueOrZero(combined[j].EstimatedValue)
	})

	return combined, nil
}

// SearchOne bypasses the fan-out and queries a single provider.
func (s *Service) SearchOne(ctx context.Context, providerName string, filters providers.Filters) ([]models.Opportunity, error) {
	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	filters = s.enhanceFilters(ctx, filters)

	opps, err := adapter.Search(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("provider %s search: %w", providerName, err)
	}
	for i := range opps {
		opps[i].ProviderName = providerName
	}
	return opps, nil
}

// ProviderStatus is one entry of ProviderStats.
type ProviderStatus struct {
	Registered bool                   `json:"registered"`
	Available  bool                   `json:"available"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ProviderStats reports registration and availability per provider.
// Availability is an instance lookup, it does not exercise the network.
func (s *Service) ProviderStats() map[string]ProviderStatus {
	stats := make(map[string]ProviderStatus)
	for _, name := range s.registry.Names() {
		adapter, err := s.registry.Get(name)
		status := ProviderStatus{Registered: true, Available: err == nil}
		if err == nil {
			status.Metadata = adapter.Metadata()
		}
		stats[name] = status
	}
	return stats
}

// enhanceFilters replaces a plain keyword with the disjunction of the term
// and its top synonyms: "t1" OR "t2" OR ... Adapters substring-match each
// quoted term individually.
func (s *Service) enhanceFilters(ctx context.Context, filters providers.Filters) providers.Filters {
	keywords := strings.TrimSpace(filters.Keywords)
	if keywords == "" || s.synonyms == nil {
		return filters
	}
	// Already expanded by the caller.
	if strings.Contains(keywords, `"`) {
		return filters
	}

	terms, err := s.synonyms.Expand(ctx, keywords, DefaultSynonymLimit)
	if err != nil || len(terms) == 0 {
		return filters
	}

	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+t+`"`)
	}
	filters.Keywords = strings.Join(quoted, " OR ")

	s.logger.Debug("keywords expanded", map[string]interface{}{
		"original": keywords, "expanded": filters.Keywords,
	})
	return filters
}

func timeOrMin(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
