package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/superschedules/navigator/internal/model"
	"github.com/superschedules/navigator/internal/probe"
	"github.com/superschedules/navigator/pkg/search"
)

// minSearchScore drops search results that score below it before any
// verification work happens.
const minSearchScore = 0.3

// ResolveWebsite finds the official website for a POI whose OSM record
// carries none. It never returns an error for per-POI failures; those are
// expressed through the result status so the worker can persist them.
func (e *Engine) ResolveWebsite(ctx context.Context, poi *model.POI) WebsiteResult {
	if poi.OSMWebsite != "" {
		return WebsiteResult{Status: model.WebsiteFound, Website: poi.OSMWebsite, Notes: "osm"}
	}

	if poi.Category.SharesWebsite() {
		website, err := e.store.FindReusableWebsite(ctx, poi)
		if err != nil {
			zap.L().Warn("website reuse lookup failed", append(logPOI(poi), zap.Error(err))...)
		} else if website != "" {
			zap.L().Info("reusing website from sibling poi", append(logPOI(poi), zap.String("website", website))...)
			return WebsiteResult{Status: model.WebsiteFound, Website: website, Notes: "reused"}
		}
	}

	if poi.Name == "" || poi.City == "" {
		return WebsiteResult{Status: model.WebsiteNotFound, Notes: "insufficient identity for search"}
	}
	if e.search == nil || e.gate == nil {
		return WebsiteResult{Status: model.WebsiteFailed, Notes: "search unavailable"}
	}

	query := withSiteExclusions(searchQuery(poi, e.cfg.Region))
	resp, err := e.search.Search(ctx, query)
	if err != nil {
		zap.L().Warn("website search failed", append(logPOI(poi), zap.Error(err))...)
		return WebsiteResult{Status: model.WebsiteFailed, Notes: "search error: " + err.Error()}
	}
	if resp.RateLimited {
		return WebsiteResult{Status: model.WebsiteFailed, Notes: "search rate limited", RateLimited: true}
	}
	if len(resp.Results) == 0 {
		// Silent throttling shows up as an empty result set.
		return WebsiteResult{Status: model.WebsiteFailed, Notes: "no search results", RateLimited: true}
	}

	candidates := e.rankCandidates(poi, resp.Results)
	if len(candidates) == 0 {
		return WebsiteResult{Status: model.WebsiteNotFound, Notes: "no plausible candidates"}
	}

	maxCandidates := e.cfg.MaxSearchCandidates
	if maxCandidates <= 0 {
		maxCandidates = 3
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	sawRejection := false
	sawError := false
	for _, cand := range candidates {
		page, err := e.fetch.Fetch(ctx, cand.url)
		if err != nil {
			sawError = true
			continue
		}
		switch page.State {
		case probe.StateOK:
		case probe.StateBlocked, probe.StateUnreachable:
			// A 403 from a trusted government or institutional domain is
			// almost always bot hostility, not a dead site.
			if page.StatusCode == 403 && model.TrustedTLD(model.HostOf(cand.url)) {
				zap.L().Info("accepting 403 from trusted domain", append(logPOI(poi), zap.String("url", cand.url))...)
				return WebsiteResult{
					Status:  model.WebsiteFound,
					Website: cand.url,
					Notes:   fmt.Sprintf("trusted domain, status %d", page.StatusCode),
				}
			}
			sawError = true
			continue
		default:
			sawError = true
			continue
		}

		// A page that never mentions the venue or its city is not worth a
		// classifier call.
		if !mentionsPOI(page, poi) {
			sawRejection = true
			continue
		}

		out := e.gate.Website(ctx, poi, page.FinalURL, page.Text)
		switch {
		case out.Accepted():
			return WebsiteResult{
				Status:  model.WebsiteFound,
				Website: page.FinalURL,
				Notes:   fmt.Sprintf("verified (%.2f): %s", out.Confidence, out.Reason),
			}
		case out.Rejected():
			sawRejection = true
		default:
			sawError = true
		}
	}

	if sawRejection {
		return WebsiteResult{Status: model.WebsiteNotFound, Notes: "all candidates rejected"}
	}
	if sawError {
		return WebsiteResult{Status: model.WebsiteFailed, Notes: "candidates unverifiable"}
	}
	return WebsiteResult{Status: model.WebsiteNotFound, Notes: "no candidates survived verification"}
}

// mentionsPOI reports whether the page text or title refers to the venue by
// name (suffix words like "Park" stripped) or at least names its city.
func mentionsPOI(page *probe.Page, poi *model.POI) bool {
	content := strings.ToLower(page.Title + " " + page.Text)
	cleanName := strings.TrimSpace(nameSuffixRe.ReplaceAllString(strings.ToLower(poi.Name), ""))
	if cleanName != "" && strings.Contains(content, cleanName) {
		return true
	}
	city := strings.ToLower(poi.City)
	return city != "" && strings.Contains(content, city)
}

type scoredCandidate struct {
	url   string
	score float64
}

// rankCandidates filters blocked and low scored results and orders the
// survivors best first. Ties keep the search engine's order.
func (e *Engine) rankCandidates(poi *model.POI, results []search.Result) []scoredCandidate {
	candidates := make([]scoredCandidate, 0, len(results))
	for _, r := range results {
		if r.URL == "" || e.blocked.BlockedURL(r.URL) {
			continue
		}
		score := scoreResult(r.URL, r.Title, poi.Name, poi.City)
		if score < minSearchScore {
			continue
		}
		candidates = append(candidates, scoredCandidate{url: r.URL, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates
}
