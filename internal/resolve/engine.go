package resolve

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/superschedules/navigator/internal/classify"
	"github.com/superschedules/navigator/internal/config"
	"github.com/superschedules/navigator/internal/model"
	"github.com/superschedules/navigator/internal/probe"
	"github.com/superschedules/navigator/internal/store"
	"github.com/superschedules/navigator/pkg/anthropic"
	"github.com/superschedules/navigator/pkg/search"
	"github.com/superschedules/navigator/pkg/screenshot"
)

// Engine resolves websites and events URLs for POIs. It owns the in-memory
// blocklist snapshot and keeps it in sync with the store as the classifier
// learns new bad domains.
type Engine struct {
	store   store.Store
	fetch   *probe.Fetcher
	search  search.Client
	gate    *classify.Gate
	shots   screenshot.Capturer
	cfg     config.ResolverConfig
	blocked *model.DomainSet
}

// Options supplies the engine's collaborators. Search, LLM, and Shots may
// be nil; the corresponding strategies are skipped.
type Options struct {
	Store    store.Store
	Fetcher  *probe.Fetcher
	Search   search.Client
	LLM      anthropic.Client
	Shots    screenshot.Capturer
	Resolver config.ResolverConfig
	Classify classify.Config
}

// NewEngine builds an engine and loads the persisted blocklist into memory.
// The engine registers itself as the gate's blocklist writer so confident
// rejections persist and take effect immediately.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	e := &Engine{
		store:   opts.Store,
		fetch:   opts.Fetcher,
		search:  opts.Search,
		shots:   opts.Shots,
		cfg:     opts.Resolver,
		blocked: model.NewDomainSet(nil),
	}
	if opts.LLM != nil {
		e.gate = classify.NewGate(opts.LLM, e, opts.Classify)
	}
	domains, err := opts.Store.ListBlockedDomains(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: load blocklist")
	}
	for _, d := range domains {
		e.blocked.Add(d.Domain)
	}
	return e, nil
}

// AddBlockedDomain persists a learned domain and mirrors it into the
// in-memory set so later candidates in the same batch are filtered too.
func (e *Engine) AddBlockedDomain(ctx context.Context, domain, reason string) (bool, error) {
	created, err := e.store.AddBlockedDomain(ctx, domain, reason)
	if err != nil {
		return false, err
	}
	e.blocked.Add(domain)
	return created, nil
}

// WebsiteResult is the outcome of one website resolution attempt.
type WebsiteResult struct {
	Status      model.WebsiteStatus
	Website     string
	Notes       string
	RateLimited bool
}

// EventsResult is the outcome of one events URL resolution attempt.
type EventsResult struct {
	Status     model.SourceStatus
	EventsURL  string
	Method     string
	Confidence float64
	Notes      string
}

func logPOI(poi *model.POI) []zap.Field {
	return []zap.Field{
		zap.String("poi_id", poi.ID),
		zap.String("name", poi.Name),
		zap.String("city", poi.City),
		zap.String("category", string(poi.Category)),
	}
}
