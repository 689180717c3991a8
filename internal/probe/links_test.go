package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	html := `<html><body>
	<a href="/about">About Us</a>
	<a href="https://other.example.org/page">External</a>
	<a href="#top">Skip</a>
	<a href="javascript:void(0)">Menu</a>
	<a href="mailto:info@example.org">Email</a>
	<a href="/events"><span>Events &amp; Programs</span></a>
	</body></html>`

	links := ExtractLinks(html, "https://example.org/home")
	require.Len(t, links, 3)
	assert.Equal(t, "https://example.org/about", links[0].URL)
	assert.Equal(t, "About Us", links[0].Text)
	assert.Equal(t, "https://other.example.org/page", links[1].URL)
	assert.Equal(t, "https://example.org/events", links[2].URL)
	assert.Equal(t, "Events & Programs", links[2].Text)
}

func TestEventLinks(t *testing.T) {
	links := []Link{
		{URL: "https://example.org/about", Text: "About Us"},
		{URL: "https://example.org/cal", Text: "Event Calendar"},
		{URL: "https://example.org/cal", Text: "Event Calendar"}, // duplicate
		{URL: "https://example.org/kids", Text: "Children's Programs"},
		{URL: "https://example.org/contact", Text: "Contact"},
	}

	filtered := EventLinks(links)
	require.Len(t, filtered, 2)
	assert.Equal(t, "https://example.org/cal", filtered[0].URL)
	assert.Equal(t, "https://example.org/kids", filtered[1].URL)
}

func TestCrawlEventLink(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`<html><body><p>Welcome to the community centre, a place for everyone in town.</p>
			<a href="/about">About</a>
			<a href="/whats-on">What's On This Month</a></body></html>`))
		case "/whats-on":
			w.Write([]byte(eventsPageHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cand, err := NewFetcher(5*time.Second).CrawlEventLink(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "link_crawl", cand.Method)
	assert.Equal(t, srv.URL+"/whats-on", cand.URL)
	assert.Equal(t, "What's On This Month", cand.LinkText)
}

func TestCrawlEventLink_TruncatesAnchorTextOnRuneBoundary(t *testing.T) {
	anchor := strings.Repeat("é", 60) + " events"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprintf(w, `<html><body><p>Welcome to the centre, open daily for residents and visitors.</p>
			<a href="/whats-on">%s</a></body></html>`, anchor)
		case "/whats-on":
			w.Write([]byte(eventsPageHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cand, err := NewFetcher(5*time.Second).CrawlEventLink(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.True(t, utf8.ValidString(cand.LinkText))
	assert.Equal(t, strings.Repeat("é", 50), cand.LinkText)
}

func TestCrawlEventLink_NoEventLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Just a plain page with plenty of words but no useful anchors at all.</p>
		<a href="/about">About</a></body></html>`))
	}))
	defer srv.Close()

	cand, err := NewFetcher(5*time.Second).CrawlEventLink(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Nil(t, cand)
}
