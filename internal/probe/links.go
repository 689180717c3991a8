package probe

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// eventLinkKeywords mark anchor text that likely points at an events page.
var eventLinkKeywords = []string{
	"event", "calendar", "happening", "program", "schedule", "activities", "what's on",
}

// Link is an anchor extracted from a page.
type Link struct {
	URL  string
	Text string
}

var anchorRe = regexp.MustCompile(`(?is)<a[^>]+href\s*=\s*["']([^"']+)["'][^>]*>(.*?)</a>`)

// ExtractLinks pulls all anchors out of HTML, resolving relative hrefs
// against baseURL. Fragment and javascript links are dropped.
func ExtractLinks(html, baseURL string) []Link {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []Link
	for _, m := range anchorRe.FindAllStringSubmatch(html, -1) {
		href := strings.TrimSpace(m[1])
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		text := StripHTML(m[2])
		links = append(links, Link{URL: resolved.String(), Text: strings.TrimSpace(text)})
	}
	return links
}

// EventLinks filters links down to those whose anchor text suggests an
// events page, preserving document order.
func EventLinks(links []Link) []Link {
	var out []Link
	seen := map[string]bool{}
	for _, l := range links {
		lower := strings.ToLower(l.Text)
		for _, kw := range eventLinkKeywords {
			if strings.Contains(lower, kw) {
				if !seen[l.URL] {
					seen[l.URL] = true
					out = append(out, l)
				}
				break
			}
		}
	}
	return out
}

// CrawlEventLink fetches baseURL, scans it for event-looking links, and
// returns the first one that responds with plausible event content.
func (f *Fetcher) CrawlEventLink(ctx context.Context, baseURL string) (*Candidate, error) {
	home, err := f.Fetch(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	if !home.OK() {
		return nil, nil
	}

	for _, link := range EventLinks(ExtractLinks(home.HTML, home.FinalURL)) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		page, err := f.Fetch(ctx, link.URL)
		if err != nil || !page.OK() {
			continue
		}
		if !HasEventsContent(page.HTML) {
			continue
		}
		text := link.Text
		if runes := []rune(text); len(runes) > 50 {
			text = string(runes[:50])
		}
		return &Candidate{
			URL:      page.FinalURL,
			Method:   "link_crawl",
			LinkText: text,
			Page:     page,
		}, nil
	}
	return nil, nil
}
