package resolve

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/superschedules/navigator/internal/classify"
	"github.com/superschedules/navigator/internal/config"
	"github.com/superschedules/navigator/internal/model"
	"github.com/superschedules/navigator/internal/probe"
	"github.com/superschedules/navigator/internal/store"
	"github.com/superschedules/navigator/pkg/anthropic"
	"github.com/superschedules/navigator/pkg/search"
)

// scriptedLLM pops canned responses in call order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	requests  []anthropic.MessageRequest
}

func (s *scriptedLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, errors.New("scripted llm exhausted")
	}
	text := s.responses[0]
	s.responses = s.responses[1:]
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func outcomeJSON(verdict string, confidence float64, reason string) string {
	return fmt.Sprintf(`{"verdict": %q, "confidence": %.2f, "reason": %q}`, verdict, confidence, reason)
}

type stubSearch struct {
	resp *search.Response
	err  error
}

func (s *stubSearch) Search(context.Context, string) (*search.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type stubShots struct {
	img []byte
	err error
}

func (s *stubShots) Capture(context.Context, string) ([]byte, error) { return s.img, s.err }
func (s *stubShots) Close()                                          {}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "resolve.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func defaultResolverConfig() config.ResolverConfig {
	return config.ResolverConfig{
		AcceptThreshold:          0.6,
		BlockThreshold:           0.8,
		Region:                   "MA",
		SkipCategories:           []string{string(model.CategorySchool)},
		SearchFallbackCategories: []string{string(model.CategoryLibrary)},
		MaxSearchCandidates:      3,
	}
}

type engineFixture struct {
	engine *Engine
	store  store.Store
	llm    *scriptedLLM
	search *stubSearch
	shots  *stubShots
}

func newEngineFixture(t *testing.T, cfg config.ResolverConfig, llmResponses ...string) *engineFixture {
	t.Helper()
	st := newTestStore(t)
	llm := &scriptedLLM{responses: llmResponses}
	srch := &stubSearch{resp: &search.Response{}}
	shots := &stubShots{img: []byte("jpeg")}

	eng, err := NewEngine(context.Background(), Options{
		Store:    st,
		Fetcher:  probe.NewFetcher(2 * time.Second),
		Search:   srch,
		LLM:      llm,
		Shots:    shots,
		Resolver: cfg,
		Classify: classify.Config{
			TextModel:       "text-model",
			VisionModel:     "vision-model",
			AcceptThreshold: cfg.AcceptThreshold,
			BlockThreshold:  cfg.BlockThreshold,
			Region:          cfg.Region,
		},
	})
	require.NoError(t, err)

	return &engineFixture{engine: eng, store: st, llm: llm, search: srch, shots: shots}
}

func testPOI(category model.Category) *model.POI {
	return &model.POI{
		OSMType:  "node",
		OSMID:    101,
		Name:     "Needham Free Public Library",
		Category: category,
		City:     "Needham",
	}
}

func mustCreate(t *testing.T, st store.Store, poi *model.POI) *model.POI {
	t.Helper()
	require.NoError(t, st.CreatePOI(context.Background(), poi))
	return poi
}
