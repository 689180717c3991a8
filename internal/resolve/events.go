package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/superschedules/navigator/internal/model"
	"github.com/superschedules/navigator/internal/probe"
)

// Events strategy method names recorded on discoveries.
const (
	MethodDirectPath     = "direct_path"
	MethodSharedCalendar = "shared_calendar"
	MethodLinkCrawl      = "link_crawl"
	MethodWebSearch      = "web_search"
)

// ResolveEvents finds the events page for a POI. Strategies run cheapest
// first and the chain stops at the first verified hit.
func (e *Engine) ResolveEvents(ctx context.Context, poi *model.POI) EventsResult {
	if e.cfg.SkipsCategory(string(poi.Category)) {
		return EventsResult{Status: model.SourceSkipped, Notes: "category not tracked for events"}
	}

	website := poi.Website()
	if website != "" && e.blocked.BlockedURL(website) {
		return EventsResult{Status: model.SourceSkipped, Notes: "website domain blocklisted"}
	}

	// Without a website only sibling reuse and web search can work.
	if website == "" {
		if res := e.reuseEventsURL(ctx, poi); res != nil {
			return *res
		}
		if e.cfg.SearchFallbackFor(string(poi.Category)) && e.search != nil {
			res, rejected, errored := e.searchStrategy(ctx, poi)
			if res != nil {
				return *res
			}
			if errored && !rejected {
				return EventsResult{Status: model.SourceFailed, Notes: "strategies errored without a verdict"}
			}
			return EventsResult{Status: model.SourceNoEvents, Notes: "no events page found"}
		}
		return EventsResult{Status: model.SourceNoEvents, Notes: "no website to probe"}
	}

	sawRejection := false
	sawError := false

	res, rejected, errored := e.directPathStrategy(ctx, poi, website)
	if res != nil {
		return *res
	}
	sawRejection = sawRejection || rejected
	sawError = sawError || errored

	if poi.Category.SharesCalendar() {
		if res := e.reuseEventsURL(ctx, poi); res != nil {
			return *res
		}
	}

	res, rejected, errored = e.linkCrawlStrategy(ctx, poi, website)
	if res != nil {
		return *res
	}
	sawRejection = sawRejection || rejected
	sawError = sawError || errored

	if e.cfg.SearchFallbackFor(string(poi.Category)) && e.search != nil {
		res, rejected, errored = e.searchStrategy(ctx, poi)
		if res != nil {
			return *res
		}
		sawRejection = sawRejection || rejected
		sawError = sawError || errored
	}

	if sawError && !sawRejection {
		return EventsResult{Status: model.SourceFailed, Notes: "strategies errored without a verdict"}
	}
	return EventsResult{Status: model.SourceNoEvents, Notes: "no events page found"}
}

// reuseEventsURL borrows an already discovered events URL from a same-city,
// same-category, same-operator POI. Reused URLs were verified when first
// discovered, so no classifier call is made.
func (e *Engine) reuseEventsURL(ctx context.Context, poi *model.POI) *EventsResult {
	eventsURL, err := e.store.FindReusableEventsURL(ctx, poi)
	if err != nil {
		zap.L().Warn("events reuse lookup failed", append(logPOI(poi), zap.Error(err))...)
		return nil
	}
	if eventsURL == "" {
		return nil
	}
	zap.L().Info("reusing events url from sibling poi", append(logPOI(poi), zap.String("events_url", eventsURL))...)
	return &EventsResult{
		Status:     model.SourceDiscovered,
		EventsURL:  eventsURL,
		Method:     MethodSharedCalendar,
		Confidence: 0.8,
		Notes:      "shared calendar",
	}
}

func (e *Engine) directPathStrategy(ctx context.Context, poi *model.POI, website string) (*EventsResult, bool, bool) {
	candidates, err := e.fetch.EventPaths(ctx, website)
	if err != nil {
		zap.L().Warn("direct path probe failed", append(logPOI(poi), zap.Error(err))...)
		return nil, false, true
	}
	return e.verifyCandidates(ctx, poi, candidates)
}

func (e *Engine) linkCrawlStrategy(ctx context.Context, poi *model.POI, website string) (*EventsResult, bool, bool) {
	cand, err := e.fetch.CrawlEventLink(ctx, website)
	if err != nil {
		zap.L().Warn("link crawl failed", append(logPOI(poi), zap.Error(err))...)
		return nil, false, true
	}
	if cand == nil {
		return nil, false, false
	}
	return e.verifyCandidates(ctx, poi, []probe.Candidate{*cand})
}

func (e *Engine) searchStrategy(ctx context.Context, poi *model.POI) (*EventsResult, bool, bool) {
	resp, err := e.search.Search(ctx, eventsSearchQuery(poi, e.cfg.Region))
	if err != nil || resp.RateLimited {
		return nil, false, true
	}

	var candidates []probe.Candidate
	for _, r := range resp.Results {
		if r.URL == "" || e.blocked.BlockedURL(r.URL) {
			continue
		}
		page, err := e.fetch.Fetch(ctx, r.URL)
		if err != nil || !page.OK() || !probe.HasEventsContent(page.HTML) {
			continue
		}
		candidates = append(candidates, probe.Candidate{
			URL:    page.FinalURL,
			Method: MethodWebSearch,
			Page:   page,
		})
		if len(candidates) >= 2 {
			break
		}
	}
	return e.verifyCandidates(ctx, poi, candidates)
}

// verifyCandidates runs candidates through the text classifier and, when
// enabled, escalates accepted pages to a vision check of the rendered page.
func (e *Engine) verifyCandidates(ctx context.Context, poi *model.POI, candidates []probe.Candidate) (*EventsResult, bool, bool) {
	if e.gate == nil {
		return nil, false, len(candidates) > 0
	}
	sawRejection := false
	sawError := false
	for _, cand := range candidates {
		out := e.gate.EventsPage(ctx, poi, cand.URL, cand.Page.Text)
		switch {
		case out.Accepted():
			res := &EventsResult{
				Status:     model.SourceDiscovered,
				EventsURL:  cand.URL,
				Method:     cand.Method,
				Confidence: out.Confidence,
				Notes:      out.Reason,
			}
			if !e.escalateVision(ctx, poi, res) {
				sawRejection = true
				continue
			}
			return res, sawRejection, sawError
		case out.Rejected():
			sawRejection = true
		default:
			sawError = true
		}
	}
	return nil, sawRejection, sawError
}

// escalateVision screenshots an accepted page and asks the vision model
// whether it shows concrete listings. A vision rejection overrules the text
// verdict; capture failures or an uncertain verdict keep it.
func (e *Engine) escalateVision(ctx context.Context, poi *model.POI, res *EventsResult) bool {
	if !e.cfg.VisionEnabled || e.shots == nil {
		return true
	}
	img, err := e.shots.Capture(ctx, res.EventsURL)
	if err != nil {
		zap.L().Warn("screenshot capture failed", append(logPOI(poi), zap.String("url", res.EventsURL), zap.Error(err))...)
		return true
	}
	out := e.gate.EventsScreenshot(ctx, poi, res.EventsURL, img)
	switch {
	case out.Accepted():
		res.Confidence = 0.95
		res.Notes = fmt.Sprintf("text+vision verified: %s", out.Reason)
		return true
	case out.Rejected():
		zap.L().Info("vision overruled text acceptance", append(logPOI(poi), zap.String("url", res.EventsURL), zap.String("reason", out.Reason))...)
		return false
	default:
		return true
	}
}
