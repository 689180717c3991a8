package probe

import (
	"context"
	"net/url"
	"strings"
)

// eventPathPatterns are the URL paths most venues hang their events page on,
// tried in order against the site root.
var eventPathPatterns = []string{
	"/events",
	"/calendar",
	"/events-calendar",
	"/whats-happening",
	"/programs",
	"/programs-events",
	"/upcoming-events",
	"/schedule",
	"/activities",
	"/programs-and-events",
	"/happenings",
	"/whats-on",
}

// eventContentIndicators suggest a page actually lists events. A page must
// match at least two before it is worth a classifier call.
var eventContentIndicators = []string{
	"event", "calendar", "upcoming", "schedule", "program", "register", "rsvp",
}

// Candidate is a page that responded and looks like it could hold events.
type Candidate struct {
	URL      string
	Method   string
	Path     string
	LinkText string
	Page     *Page
}

// HasEventsContent reports whether the HTML matches enough event indicators
// to be a plausible events page.
func HasEventsContent(html string) bool {
	lower := strings.ToLower(html)
	matches := 0
	for _, ind := range eventContentIndicators {
		if strings.Contains(lower, ind) {
			matches++
		}
	}
	return matches >= 2
}

// maxDirectCandidates caps how many direct-path hits are collected before
// handing off to the classifier.
const maxDirectCandidates = 3

// EventPaths probes the common events paths under baseURL and returns pages
// that responded with plausible event content. Unreachable or blocked paths
// are skipped silently.
func (f *Fetcher) EventPaths(ctx context.Context, baseURL string) ([]Candidate, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, path := range eventPathPatterns {
		if ctx.Err() != nil {
			return candidates, ctx.Err()
		}
		ref, err := url.Parse(path)
		if err != nil {
			continue
		}
		target := base.ResolveReference(ref).String()

		page, err := f.Fetch(ctx, target)
		if err != nil || !page.OK() {
			continue
		}
		if !HasEventsContent(page.HTML) {
			continue
		}
		candidates = append(candidates, Candidate{
			URL:    page.FinalURL,
			Method: "direct_path",
			Path:   path,
			Page:   page,
		})
		if len(candidates) >= maxDirectCandidates {
			break
		}
	}
	return candidates, nil
}
