package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/cache"
	"github.com/licitahub/licitahub/pkg/models"
	"github.com/licitahub/licitahub/pkg/providers"
	"github.com/licitahub/licitahub/pkg/rag"
	"github.com/licitahub/licitahub/pkg/unifiedsearch"
)

type stubAdapter struct {
	name string
	opps []models.Opportunity
}

func (s *stubAdapter) ProviderName() string             { return s.name }
func (s *stubAdapter) Metadata() map[string]interface{} { return map[string]interface{}{} }
func (s *stubAdapter) Search(ctx context.Context, f providers.Filters) ([]models.Opportunity, error) {
	return s.opps, nil
}
func (s *stubAdapter) GetDetails(ctx context.Context, id string) (*models.Opportunity, error) {
	return nil, nil
}
func (s *stubAdapter) GetItems(ctx context.Context, id string) ([]models.Item, error) {
	return []models.Item{{ItemNumber: 1, Description: "Seringa"}}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(&stubAdapter{
		name: "pncp",
		opps: []models.Opportunity{{ExternalID: "1", Title: "Pregão de teste"}},
	}))

	deps := Deps{
		Search:   unifiedsearch.NewService(registry, nil, nil),
		Registry: registry,
	}
	return NewServer(Config{ListenAddress: ":0"}, deps, nil)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := doRequest(t, newTestServer(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestProviderStatsEndpoint(t *testing.T) {
	w := doRequest(t, newTestServer(t), http.MethodGet, "/api/v1/providers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]unifiedsearch.ProviderStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Contains(t, stats, "pncp")
	assert.True(t, stats["pncp"].Available)
}

func TestProviderSearchEndpoint(t *testing.T) {
	s := newTestServer(t)

	t.Run("known provider", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/search/pncp", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Pregão de teste")
	})

	t.Run("unknown provider", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/search/licitacoes-e", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad date parameter", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/api/v1/search/pncp?publication_date_from=ontem", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUnifiedSearchEndpoint(t *testing.T) {
	w := doRequest(t, newTestServer(t), http.MethodGet, "/api/v1/search", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestUnconfiguredSubsystemsAnswer503(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/v1/matching/run", `{"mode":"incremental"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(t, s, http.MethodPost, "/api/v1/rag/query", `{"opportunity_id":1,"query":"prazo"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCachePurgeEndpoint(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		w := doRequest(t, newTestServer(t), http.MethodDelete, "/api/v1/cache?prefix=pncp:", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	mem, err := cache.NewMemoryCache(16)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, "pncp:a", []byte("1"), 0))
	require.NoError(t, mem.Set(ctx, "pncp:b", []byte("2"), 0))
	require.NoError(t, mem.Set(ctx, "rag:answer:x", []byte("3"), 0))

	s := NewServer(Config{ListenAddress: ":0"}, Deps{Cache: mem}, nil)

	t.Run("prefix required", func(t *testing.T) {
		w := doRequest(t, s, http.MethodDelete, "/api/v1/cache", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("purges only the prefix", func(t *testing.T) {
		w := doRequest(t, s, http.MethodDelete, "/api/v1/cache?prefix=pncp:", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"deleted":2`)

		_, err := mem.Get(ctx, "pncp:a")
		assert.ErrorIs(t, err, cache.ErrNotFound)
		_, err = mem.Get(ctx, "rag:answer:x")
		assert.NoError(t, err)
	})
}

func TestStatusOfAction(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOfAction(rag.ActionDocumentsNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOfAction(rag.ActionExtractionFailed))
	assert.Equal(t, http.StatusBadGateway, statusOfAction(rag.ActionAPIError))
	assert.Equal(t, http.StatusInternalServerError, statusOfAction("qualquer outra"))
}

func TestParseOptionalDate(t *testing.T) {
	got, err := parseOptionalDate("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseOptionalDate("2025-06-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10, got.Day())

	got, err = parseOptionalDate("2025-06-10T08:30:00Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 8, got.Hour())
	assert.Equal(t, time.UTC, got.Location())

	_, err = parseOptionalDate("10/06/2025")
	assert.Error(t, err)
}
