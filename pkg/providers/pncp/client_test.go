package pncp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/licitahub/pkg/retry"
)

func newTestClient(t *testing.T, url string) *client {
	t.Helper()
	c := newClient(url, time.Second)
	c.retry = retry.NewFixedDelay(0, 3)
	return c
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"numeroPagina": 7}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var out listResponse
	err := c.getJSON(context.Background(), srv.URL, &out)
	require.NoError(t, err)
	assert.Equal(t, 7, out.NumeroPagina)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var out listResponse
	err := c.getJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.Equal(t, 404, retry.StatusCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetJSONRetries429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"numeroPagina": 1}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var out listResponse
	require.NoError(t, c.getJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
