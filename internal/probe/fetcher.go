// Package probe fetches and inspects candidate pages without any LLM calls.
package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// State classifies what came back from a fetch.
type State string

const (
	StateOK          State = "ok"
	StateEmpty       State = "empty"
	StateBlocked     State = "blocked"
	StateUnreachable State = "unreachable"
)

// Page is a fetched page with its HTML and a plaintext rendering.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	State      State
	BlockType  BlockType
	Title      string
	HTML       string
	Text       string
}

// OK reports whether the page has usable content.
func (p *Page) OK() bool { return p.State == StateOK }

// Fetcher fetches pages via net/http with block detection.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with sensible defaults.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// NewFetcherWithClient wraps a custom client, used by tests with httptest.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

const maxBodyBytes = 512 * 1024

// Fetch retrieves a URL and classifies the response. Network failures return
// a Page in StateUnreachable rather than an error, so callers can treat them
// as one more probe outcome. The error return is reserved for malformed
// input.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "probe: create request for %s", targetURL)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; NavigatorBot/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return &Page{URL: targetURL, FinalURL: targetURL, State: StateUnreachable}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Page{URL: targetURL, FinalURL: resp.Request.URL.String(), StatusCode: resp.StatusCode, State: StateUnreachable}, nil
	}

	page := &Page{
		URL:        targetURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		page.State = StateBlocked
		page.BlockType = blockType
		return page, nil
	}

	if resp.StatusCode >= 400 {
		page.State = StateUnreachable
		return page, nil
	}

	if len(body) < 100 {
		page.State = StateEmpty
		return page, nil
	}

	page.State = StateOK
	page.HTML = string(body)
	page.Title = extractTitle(body)
	page.Text = StripHTML(page.HTML)
	return page, nil
}

var titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)

// extractTitle pulls the <title> from HTML.
func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// StripHTML removes scripts/styles/nav/footer, strips tags, decodes entities,
// and collapses whitespace. The result is plaintext suitable for the
// classifier.
func StripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`[ \t]+`)
	html = spaceRe.ReplaceAllString(html, " ")

	nlRe := regexp.MustCompile(`\n{3,}`)
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
