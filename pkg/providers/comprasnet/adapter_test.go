package comprasnet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/providers"
	"github.com/licitahub/licitahub/pkg/retry"
)

func newTestAdapter(t *testing.T, url string) *Adapter {
	t.Helper()
	a, err := New(Config{SearchURL: url}, nil)
	require.NoError(t, err)
	a.retry = retry.NewFixedDelay(0, 2)
	return a
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(listingBlock))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	opps, err := a.Search(context.Background(), providers.Filters{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	_, err := a.get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, 404, retry.StatusCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
