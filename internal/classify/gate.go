// Package classify runs LLM judgments over candidate pages and applies the
// confidence policy that turns raw verdicts into resolution outcomes.
package classify

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/superschedules/navigator/internal/model"
	"github.com/superschedules/navigator/pkg/anthropic"
)

// BlocklistWriter records domains that were confidently rejected.
type BlocklistWriter interface {
	AddBlockedDomain(ctx context.Context, domain, reason string) (bool, error)
}

// Config holds model names and the confidence policy.
type Config struct {
	TextModel   string
	VisionModel string
	MaxTokens   int64
	Region      string

	// AcceptThreshold is the minimum confidence for an accepted verdict to
	// stand; confidence exactly at the threshold accepts.
	AcceptThreshold float64
	// BlockThreshold is the minimum confidence on a rejection before the
	// domain is added to the blocklist.
	BlockThreshold float64
}

// Gate classifies candidate pages. All LLM traffic in the resolver flows
// through it.
type Gate struct {
	client    anthropic.Client
	blocklist BlocklistWriter
	cfg       Config
}

// NewGate builds a Gate. blocklist may be nil to disable blocklist learning.
func NewGate(client anthropic.Client, blocklist BlocklistWriter, cfg Config) *Gate {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	return &Gate{client: client, blocklist: blocklist, cfg: cfg}
}

// Website judges whether the page at url is the POI's official website. A
// confident rejection of a non-institutional domain also lands the domain on
// the blocklist, so later POIs never fetch it again.
func (g *Gate) Website(ctx context.Context, poi *model.POI, url, text string) model.Outcome {
	out := g.classify(ctx, g.cfg.TextModel, websitePrompt(poi, g.cfg.Region, url, text), nil)
	g.maybeBlock(ctx, url, out)
	return out
}

// EventsPage judges whether the page at url is an official events page for
// the POI, from its text alone. Confident rejections feed the blocklist the
// same way website rejections do.
func (g *Gate) EventsPage(ctx context.Context, poi *model.POI, url, text string) model.Outcome {
	out := g.classify(ctx, g.cfg.TextModel, eventsPrompt(poi, url, text), nil)
	g.maybeBlock(ctx, url, out)
	return out
}

// EventsScreenshot confirms rendered event listings from a screenshot, used
// to escalate when text classification passed.
func (g *Gate) EventsScreenshot(ctx context.Context, poi *model.POI, url string, screenshot []byte) model.Outcome {
	return g.classify(ctx, g.cfg.VisionModel, eventsVisionPrompt(poi, url), &anthropic.Image{
		MediaType: "image/jpeg",
		Data:      screenshot,
	})
}

// classifierError is the uniform outcome for any classifier failure. The
// caller must treat it as inconclusive, never as evidence against the
// candidate.
func classifierError() model.Outcome {
	return model.Outcome{Verdict: model.VerdictUncertain, Confidence: 0, Reason: "classifier_error"}
}

func (g *Gate) classify(ctx context.Context, modelName, prompt string, image *anthropic.Image) model.Outcome {
	temp := 0.0
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       modelName,
		MaxTokens:   g.cfg.MaxTokens,
		System:      systemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt, Image: image},
		},
	})
	if err != nil {
		zap.L().Warn("classifier call failed", zap.String("model", modelName), zap.Error(err))
		return classifierError()
	}

	out, err := parseOutcome(resp.Text())
	if err != nil {
		zap.L().Warn("classifier returned unparseable output",
			zap.String("model", modelName),
			zap.String("output", truncate(resp.Text(), 200)),
			zap.Error(err))
		return classifierError()
	}

	// A verdict below the acceptance threshold is not actionable in either
	// direction; only uncertain survives, so a weak rejection cannot drive a
	// terminal negative state.
	if out.Verdict != model.VerdictUncertain && out.Confidence < g.cfg.AcceptThreshold {
		out.Verdict = model.VerdictUncertain
	}
	return out
}

// parseOutcome decodes the classifier's JSON, tolerating markdown fences and
// surrounding prose.
func parseOutcome(text string) (model.Outcome, error) {
	var out model.Outcome
	if err := json.Unmarshal([]byte(cleanJSON(text)), &out); err != nil {
		return model.Outcome{}, err
	}

	switch out.Verdict {
	case model.VerdictAccepted, model.VerdictRejected, model.VerdictUncertain:
	default:
		out.Verdict = model.VerdictUncertain
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}

// maybeBlock records a confidently rejected domain. Institutional TLDs are
// exempt: one venue's municipal site being wrong for it does not make the
// domain wrong for every venue.
func (g *Gate) maybeBlock(ctx context.Context, url string, out model.Outcome) {
	if g.blocklist == nil {
		return
	}
	if out.Verdict != model.VerdictRejected || out.Confidence < g.cfg.BlockThreshold {
		return
	}
	host := model.HostOf(url)
	if host == "" || model.TrustedTLD(host) {
		return
	}

	created, err := g.blocklist.AddBlockedDomain(ctx, host, out.Reason)
	if err != nil {
		zap.L().Warn("failed to record blocked domain", zap.String("domain", host), zap.Error(err))
		return
	}
	if created {
		zap.L().Info("domain blocklisted",
			zap.String("domain", host),
			zap.Float64("confidence", out.Confidence),
			zap.String("reason", out.Reason))
	}
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
