package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) Client {
	return NewClient("test-key",
		WithBaseURL(srv.URL),
		WithRateLimit(1000),
		WithHTTPClient(srv.Client()),
	)
}

func TestSearch_ParsesResults(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"code": 200, "data": [
			{"url": "https://needhamma.gov/library", "title": "Needham Free Public Library", "description": "Official site"},
			{"url": "https://yelp.com/biz/library", "title": "Library - Yelp", "description": "Reviews"}
		]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Search(context.Background(), "needham library")
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "https://needhamma.gov/library", resp.Results[0].URL)
	assert.Equal(t, "Needham Free Public Library", resp.Results[0].Title)
	assert.Equal(t, "Official site", resp.Results[0].Snippet)
	assert.False(t, resp.RateLimited)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestSearch_NoResultsIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Search(context.Background(), "gibberish query")
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearch_ThrottleFlagSurvivesRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"code": 200, "data": [{"url": "https://example.org", "title": "Example"}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Search(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.RateLimited)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_ServerErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), "anything")
	require.Error(t, err)
}
