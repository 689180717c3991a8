package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/superschedules/navigator/internal/classify"
	"github.com/superschedules/navigator/internal/probe"
	"github.com/superschedules/navigator/internal/resolve"
	"github.com/superschedules/navigator/internal/store"
	anthropicpkg "github.com/superschedules/navigator/pkg/anthropic"
	"github.com/superschedules/navigator/pkg/screenshot"
	"github.com/superschedules/navigator/pkg/search"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "navigator.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine wires the resolution engine. The returned cleanup releases the
// headless browser when vision verification is enabled.
func initEngine(ctx context.Context, st store.Store) (*resolve.Engine, func(), error) {
	if cfg.Anthropic.Key == "" {
		return nil, nil, eris.New("anthropic API key is required (NAVIGATOR_ANTHROPIC_KEY)")
	}
	if cfg.Search.Key == "" {
		return nil, nil, eris.New("search API key is required (NAVIGATOR_SEARCH_KEY)")
	}

	searchClient := search.NewClient(cfg.Search.Key,
		search.WithBaseURL(cfg.Search.BaseURL),
		search.WithRetries(cfg.Search.Retries),
		search.WithRateLimit(cfg.Search.RequestsPerSec),
		search.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Search.TimeoutSecs) * time.Second}),
	)

	cleanup := func() {}
	var shots screenshot.Capturer
	if cfg.Resolver.VisionEnabled {
		chrome := screenshot.NewChrome(screenshot.Config{
			Timeout: time.Duration(cfg.Probe.ScreenshotTimeout) * time.Second,
		})
		shots = chrome
		cleanup = chrome.Close
	}

	engine, err := resolve.NewEngine(ctx, resolve.Options{
		Store:    st,
		Fetcher:  probe.NewFetcher(time.Duration(cfg.Probe.TimeoutSecs) * time.Second),
		Search:   searchClient,
		LLM:      anthropicpkg.NewClient(cfg.Anthropic.Key),
		Shots:    shots,
		Resolver: cfg.Resolver,
		Classify: classify.Config{
			TextModel:       cfg.Anthropic.TextModel,
			VisionModel:     cfg.Anthropic.VisionModel,
			MaxTokens:       cfg.Anthropic.MaxTokens,
			Region:          cfg.Resolver.Region,
			AcceptThreshold: cfg.Resolver.AcceptThreshold,
			BlockThreshold:  cfg.Resolver.BlockThreshold,
		},
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, cleanup, nil
}
