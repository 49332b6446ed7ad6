package unifiedsearch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/providers"
)

type stubAdapter struct {
	name string
	opps []models.Opportunity
	err  error
}

func (s *stubAdapter) ProviderName() string             { return s.name }
func (s *stubAdapter) Metadata() map[string]interface{} { return map[string]interface{}{} }
func (s *stubAdapter) Search(ctx context.Context, f providers.Filters) ([]models.Opportunity, error) {
	return s.opps, s.err
}
func (s *stubAdapter) GetDetails(ctx context.Context, id string) (*models.Opportunity, error) {
	return nil, nil
}
func (s *stubAdapter) GetItems(ctx context.Context, id string) ([]models.Item, error) {
	return nil, nil
}

type stubExpander struct {
	terms []string
	err   error
	calls int
}

func (s *stubExpander) Expand(ctx context.Context, term string, max int) ([]string, error) {
	s.calls++
	return s.terms, s.err
}

func newRegistry(t *testing.T, adapters ...*stubAdapter) *providers.Registry {
	t.Helper()
	r := providers.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, r.Register(a))
	}
	return r
}

func dateOf(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func TestSearchAllToleratesFailingAdapter(t *testing.T) {
	healthy := &stubAdapter{name: "pncp", opps: []models.Opportunity{{ExternalID: "1"}}}
	broken := &stubAdapter{name: "comprasnet", err: errors.New("upstream 500")}
	svc := NewService(newRegistry(t, healthy, broken), nil, nil)

	results, err := svc.SearchAll(context.Background(), providers.Filters{})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Len(t, results["pncp"], 1)
	assert.Equal(t, "pncp", results["pncp"][0].ProviderName)
	assert.Empty(t, results["comprasnet"])
}

func TestSearchAllSequentialMode(t *testing.T) {
	healthy := &stubAdapter{name: "pncp", opps: []models.Opportunity{{ExternalID: "1"}}}
	broken := &stubAdapter{name: "comprasnet", err: errors.New("upstream 500")}
	svc := NewService(newRegistry(t, healthy, broken), nil, nil)
	svc.SetParallelSearch(false)

	results, err := svc.SearchAll(context.Background(), providers.Filters{})
	require.NoError(t, err)
	assert.Len(t, results["pncp"], 1)
	assert.Empty(t, results["comprasnet"])
}

func TestSearchCombinedOrdering(t *testing.T) {
	v := func(f float64) *float64 { return &f }
	a := &stubAdapter{name: "pncp", opps: []models.Opportunity{
		{ExternalID: "old", PublicationDate: dateOf("2025-06-01")},
		{ExternalID: "rich", PublicationDate: dateOf("2025-06-05"), EstimatedValue: v(100)},
	}}
	b := &stubAdapter{name: "comprasnet", opps: []models.Opportunity{
		{ExternalID: "poor", PublicationDate: dateOf("2025-06-05"), EstimatedValue: v(10)},
		{ExternalID: "undated"},
	}}
	svc := NewService(newRegistry(t, a, b), nil, nil)

	combined, err := svc.SearchCombined(context.Background(), providers.Filters{})
	require.NoError(t, err)
	require.Len(t, combined, 4)

	assert.Equal(t, "rich", combined[0].ExternalID)
	assert.Equal(t, "poor", combined[1].ExternalID)
	assert.Equal(t, "old", combined[2].ExternalID)
	assert.Equal(t, "undated", combined[3].ExternalID)
}

func TestSearchOneUnknownProvider(t *testing.T) {
	svc := NewService(newRegistry(t), nil, nil)
	_, err := svc.SearchOne(context.Background(), "missing", providers.Filters{})

	var unknown *providers.ErrUnknownProvider
	assert.ErrorAs(t, err, &unknown)
}

func TestEnhanceFilters(t *testing.T) {
	t.Run("expands bare keyword", func(t *testing.T) {
		exp := &stubExpander{terms: []string{"notebook", "laptop", "computador portátil"}}
		svc := NewService(newRegistry(t), exp, nil)

		out := svc.enhanceFilters(context.Background(), providers.Filters{Keywords: "notebook"})
		assert.Equal(t, `"notebook" OR "laptop" OR "computador portátil"`, out.Keywords)
	})

	t.Run("leaves quoted input alone", func(t *testing.T) {
		exp := &stubExpander{terms: []string{"x"}}
		svc := NewService(newRegistry(t), exp, nil)

		out := svc.enhanceFilters(context.Background(), providers.Filters{Keywords: `"já expandido"`})
		assert.Equal(t, `"já expandido"`, out.Keywords)
		assert.Zero(t, exp.calls)
	})

	t.Run("expansion failure keeps original", func(t *testing.T) {
		exp := &stubExpander{err: errors.New("llm down")}
		svc := NewService(newRegistry(t), exp, nil)

		out := svc.enhanceFilters(context.Background(), providers.Filters{Keywords: "notebook"})
		assert.Equal(t, "notebook", out.Keywords)
	})

	t.Run("nil expander is a no-op", func(t *testing.T) {
		svc := NewService(newRegistry(t), nil, nil)
		out := svc.enhanceFilters(context.Background(), providers.Filters{Keywords: "notebook"})
		assert.Equal(t, "notebook", out.Keywords)
	})
}

func TestParseSynonymList(t *testing.T) {
	t.Run("json array", func(t *testing.T) {
		got := parseSynonymList(`["notebook", "laptop", " ultrabook "]`)
		assert.Equal(t, []string{"notebook", "laptop", "ultrabook"}, got)
	})

	t.Run("array wrapped in prose", func(t *testing.T) {
		got := parseSynonymList("Segue:\n[\"a\", \"b\"]\nEspero ter ajudado.")
		assert.Equal(t, []string{"a", "b"}, got)
	})

	t.Run("falls back to line splitting", func(t *testing.T) {
		got := parseSynonymList("- notebook\n- laptop\n\n")
		assert.Equal(t, []string{"notebook", "laptop"}, got)
	})
}

func TestProviderStats(t *testing.T) {
	svc := NewService(newRegistry(t, &stubAdapter{name: "pncp"}), nil, nil)
	stats := svc.ProviderStats()
	require.Contains(t, stats, "pncp")
	assert.True(t, stats["pncp"].Registered)
	assert.True(t, stats["pncp"].Available)
}
