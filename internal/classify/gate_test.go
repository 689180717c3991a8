package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superschedules/navigator/internal/model"
	"github.com/superschedules/navigator/pkg/anthropic"
)

type stubClient struct {
	response string
	err      error
	lastReq  anthropic.MessageRequest
}

func (s *stubClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s.response}},
	}, nil
}

type stubBlocklist struct {
	added map[string]string
}

func (s *stubBlocklist) AddBlockedDomain(_ context.Context, domain, reason string) (bool, error) {
	if s.added == nil {
		s.added = map[string]string{}
	}
	_, exists := s.added[domain]
	s.added[domain] = reason
	return !exists, nil
}

func testGate(client anthropic.Client, bl BlocklistWriter) *Gate {
	return NewGate(client, bl, Config{
		TextModel:       "text-model",
		VisionModel:     "vision-model",
		Region:          "MA",
		AcceptThreshold: 0.6,
		BlockThreshold:  0.8,
	})
}

func testPOI() *model.POI {
	return &model.POI{
		Name:     "Newton Free Library",
		Category: model.CategoryLibrary,
		City:     "Newton",
		State:    "MA",
	}
}

func TestWebsite_Accepted(t *testing.T) {
	client := &stubClient{response: `{"verdict":"accepted","confidence":0.9,"reason":"official library site"}`}
	gate := testGate(client, nil)

	out := gate.Website(context.Background(), testPOI(), "https://newtonfreelibrary.net", "Newton Free Library hours and catalog")
	assert.True(t, out.Accepted())
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)
	assert.Equal(t, "text-model", client.lastReq.Model)
	require.Len(t, client.lastReq.Messages, 1)
	assert.Contains(t, client.lastReq.Messages[0].Content, "Newton Free Library")
}

func TestWebsite_AcceptedAtExactThreshold(t *testing.T) {
	client := &stubClient{response: `{"verdict":"accepted","confidence":0.6,"reason":"likely official"}`}
	gate := testGate(client, nil)

	out := gate.Website(context.Background(), testPOI(), "https://example.org", "text")
	assert.True(t, out.Accepted())
}

func TestWebsite_AcceptedBelowThresholdBecomesUncertain(t *testing.T) {
	client := &stubClient{response: `{"verdict":"accepted","confidence":0.59,"reason":"maybe"}`}
	gate := testGate(client, nil)

	out := gate.Website(context.Background(), testPOI(), "https://example.org", "text")
	assert.True(t, out.Uncertain())
	assert.False(t, out.Accepted())
}

func TestWebsite_ConfidentRejectionBlocklistsDomain(t *testing.T) {
	client := &stubClient{response: `{"verdict":"rejected","confidence":0.95,"reason":"school directory site"}`}
	bl := &stubBlocklist{}
	gate := testGate(client, bl)

	out := gate.Website(context.Background(), testPOI(), "https://www.greatdirectory.com/newton", "browse schools")
	assert.True(t, out.Rejected())
	assert.Equal(t, "school directory site", bl.added["greatdirectory.com"])
}

func TestWebsite_TrustedTLDNeverBlocklisted(t *testing.T) {
	client := &stubClient{response: `{"verdict":"rejected","confidence":0.95,"reason":"wrong town"}`}
	bl := &stubBlocklist{}
	gate := testGate(client, bl)

	out := gate.Website(context.Background(), testPOI(), "https://someothertownma.gov", "text")
	assert.True(t, out.Rejected())
	assert.Empty(t, bl.added)
}

func TestWebsite_LowConfidenceRejectionNotBlocklisted(t *testing.T) {
	client := &stubClient{response: `{"verdict":"rejected","confidence":0.7,"reason":"probably not"}`}
	bl := &stubBlocklist{}
	gate := testGate(client, bl)

	out := gate.Website(context.Background(), testPOI(), "https://somesite.com", "text")
	assert.True(t, out.Rejected())
	assert.Empty(t, bl.added)
}

func TestClassify_APIErrorIsUncertain(t *testing.T) {
	client := &stubClient{err: errors.New("rate limited")}
	gate := testGate(client, nil)

	out := gate.EventsPage(context.Background(), testPOI(), "https://example.org/events", "text")
	assert.True(t, out.Uncertain())
	assert.Zero(t, out.Confidence)
	assert.Equal(t, "classifier_error", out.Reason)
}

func TestClassify_GarbageOutputIsUncertain(t *testing.T) {
	client := &stubClient{response: "I think this is probably the right page, yes."}
	gate := testGate(client, nil)

	out := gate.EventsPage(context.Background(), testPOI(), "https://example.org/events", "text")
	assert.True(t, out.Uncertain())
	assert.Equal(t, "classifier_error", out.Reason)
}

func TestClassify_FencedJSONParses(t *testing.T) {
	client := &stubClient{response: "```json\n{\"verdict\":\"rejected\",\"confidence\":0.85,\"reason\":\"event aggregator\"}\n```"}
	gate := testGate(client, nil)

	out := gate.EventsPage(context.Background(), testPOI(), "https://eventbrite.com/e/123", "text")
	assert.True(t, out.Rejected())
	assert.InDelta(t, 0.85, out.Confidence, 1e-9)
}

func TestClassify_UnknownVerdictIsUncertain(t *testing.T) {
	client := &stubClient{response: `{"verdict":"maybe","confidence":0.9,"reason":"?"}`}
	gate := testGate(client, nil)

	out := gate.EventsPage(context.Background(), testPOI(), "https://example.org", "text")
	assert.True(t, out.Uncertain())
}

func TestEventsScreenshot_UsesVisionModel(t *testing.T) {
	client := &stubClient{response: `{"verdict":"accepted","confidence":0.9,"reason":"calendar with dated events"}`}
	gate := testGate(client, nil)

	out := gate.EventsScreenshot(context.Background(), testPOI(), "https://example.org/events", []byte("jpeg-bytes"))
	assert.True(t, out.Accepted())
	assert.Equal(t, "vision-model", client.lastReq.Model)
	require.Len(t, client.lastReq.Messages, 1)
	require.NotNil(t, client.lastReq.Messages[0].Image)
	assert.Equal(t, "image/jpeg", client.lastReq.Messages[0].Image.MediaType)
}

func TestEventsPage_ConfidentRejectionBlocklistsDomain(t *testing.T) {
	client := &stubClient{response: `{"verdict":"rejected","confidence":0.99,"reason":"aggregator"}`}
	bl := &stubBlocklist{}
	gate := testGate(client, bl)

	out := gate.EventsPage(context.Background(), testPOI(), "https://patch.com/events", "text")
	assert.True(t, out.Rejected())
	assert.Equal(t, "aggregator", bl.added["patch.com"])
}

func TestEventsPage_TrustedTLDNeverBlocklisted(t *testing.T) {
	client := &stubClient{response: `{"verdict":"rejected","confidence":0.9,"reason":"no listings"}`}
	bl := &stubBlocklist{}
	gate := testGate(client, bl)

	out := gate.EventsPage(context.Background(), testPOI(), "https://newtonma.gov/calendar", "text")
	assert.True(t, out.Rejected())
	assert.Empty(t, bl.added)
}

func TestWebsite_RejectionBelowThresholdBecomesUncertain(t *testing.T) {
	client := &stubClient{response: `{"verdict":"rejected","confidence":0.3,"reason":"hard to tell"}`}
	bl := &stubBlocklist{}
	gate := testGate(client, bl)

	out := gate.Website(context.Background(), testPOI(), "https://somesite.com", "text")
	assert.True(t, out.Uncertain())
	assert.False(t, out.Rejected())
	assert.Empty(t, bl.added)
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                          `{"a":1}`,
		"```json\n{\"a\":1}\n```":          `{"a":1}`,
		"```\n{\"a\":1}\n```":              `{"a":1}`,
		"Here you go: {\"a\":1} thanks":    `{"a":1}`,
		"no json here":                     "no json here",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanJSON(in))
	}
}
