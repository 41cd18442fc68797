/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package httpsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/suparena/pagecache/errors"
)

func serveFile(t *testing.T, w http.ResponseWriter, name string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/pokemon", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "0" {
			serveFile(t, w, "list_page0.json")
			return
		}
		serveFile(t, w, "list_last.json")
	})
	mux.HandleFunc("/api/v2/pokemon/1", func(w http.ResponseWriter, r *http.Request) {
		serveFile(t, w, "detail_1.json")
	})
	mux.HandleFunc("/api/v2/pokemon/bulbasaur", func(w http.ResponseWriter, r *http.Request) {
		serveFile(t, w, "detail_1.json")
	})
	mux.HandleFunc("/api/v2/pokemon/25", func(w http.ResponseWriter, r *http.Request) {
		serveFile(t, w, "detail_25_no_artwork.json")
	})
	mux.HandleFunc("/api/v2/pokemon/500", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/api/v2/pokemon/400", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := New(srv.URL+"/api/v2",
		WithHTTPClient(srv.Client()),
		WithArtworkBase("https://artwork.test/"),
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return fixed }),
	)
	require.NoError(t, err)
	return c
}

func TestFetchPage(t *testing.T) {
	c := newTestClient(t, newTestServer(t))
	ctx := context.Background()

	page, err := c.FetchPage(ctx, 2, 0)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, 1302, page.Total)
	require.Len(t, page.Summaries, 2)
	assert.Equal(t, 1, page.Summaries[0].ID)
	assert.Equal(t, "bulbasaur", page.Summaries[0].Name)
	assert.Equal(t, 2, page.Summaries[1].ID)

	last, err := c.FetchPage(ctx, 2, 2)
	require.NoError(t, err)
	assert.False(t, last.HasMore)
	require.Len(t, last.Summaries, 2)
	assert.Equal(t, 3, last.Summaries[0].ID)
	assert.Equal(t, 0, last.Summaries[1].ID, "unparsable locator yields identity 0")
}

func TestFetchDetail(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	rec, err := c.FetchDetail(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ID)
	assert.Equal(t, "bulbasaur", rec.Name)
	assert.Equal(t, "https://sprites.test/artwork/1.png", rec.ImageRef)
	assert.Equal(t, []string{"grass", "poison"}, rec.Tags)
	assert.Equal(t, 7, rec.Height)
	assert.Equal(t, 69, rec.Weight)
	require.Len(t, rec.Attributes, 2)
	assert.Equal(t, "hp", rec.Attributes[0].Name)
	assert.Equal(t, 45, rec.Attributes[0].Value)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), time.Time(rec.FetchedAt))
}

func TestFetchDetailImageFallback(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	rec, err := c.FetchDetail(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, "https://artwork.test/25.png", rec.ImageRef)
}

func TestFetchByName(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	rec, err := c.FetchByName(context.Background(), "  BulbaSaur ")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ID)

	_, err = c.FetchByName(context.Background(), "missingno")
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, errors.IsTransient(err))
}

func TestErrorMapping(t *testing.T) {
	c := newTestClient(t, newTestServer(t))
	ctx := context.Background()

	_, err := c.FetchDetail(ctx, 999)
	assert.True(t, errors.IsNotFound(err), "404 maps to not found")

	_, err = c.FetchDetail(ctx, 500)
	assert.True(t, errors.IsTransient(err), "5xx maps to transient")

	_, err = c.FetchDetail(ctx, 400)
	require.Error(t, err)
	assert.False(t, errors.IsTransient(err))
	assert.False(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestUnreachableIsTransient(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.FetchPage(context.Background(), 20, 0)
	assert.True(t, errors.IsTransient(err))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not a url")
	assert.True(t, errors.IsValidationError(err))
}

func TestRetryTransport(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		serveFile(t, w, "detail_1.json")
	}))
	defer srv.Close()

	hc := &http.Client{Transport: NewRetryTransport(srv.Client().Transport,
		WithMaxRetries(3),
		WithRetryBackoff(time.Millisecond),
		WithRetryLogger(zaptest.NewLogger(t)),
	)}
	c, err := New(srv.URL, WithHTTPClient(hc))
	require.NoError(t, err)

	rec, err := c.FetchDetail(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "bulbasaur", rec.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryTransportGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	hc := &http.Client{Transport: NewRetryTransport(srv.Client().Transport,
		WithMaxRetries(2),
		WithRetryBackoff(time.Millisecond),
	)}
	c, err := New(srv.URL, WithHTTPClient(hc))
	require.NoError(t, err)

	_, err = c.FetchPage(context.Background(), 20, 0)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryTransportHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hc := &http.Client{Transport: NewRetryTransport(srv.Client().Transport,
		WithMaxRetries(10),
		WithRetryBackoff(time.Hour),
	)}
	c, err := New(srv.URL, WithHTTPClient(hc))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.FetchPage(ctx, 20, 0)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
