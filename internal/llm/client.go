// Package llm wraps the Gemini-compatible text-completion endpoint used by
// the translation coordinator (C3) and the structured-output callers (C4).
// The interface shape is grounded on the teacher's GenerateJSON client:
// one call that takes a single prompt string and returns raw text, with
// the JSON-schema/extraction/repair/validate loop layered on top by callers.
package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/yungbote/video-ingestor/internal/ingesterr"
	"github.com/yungbote/video-ingestor/internal/obs"
)

// GenerationParams mirrors the external interface's generationConfig
// (spec §6): temperature, topP, maxOutputTokens.
type GenerationParams struct {
	Temperature     float64
	TopP            float64
	MaxOutputTokens int
}

// Client is the narrow surface every pipeline component needs from the LLM.
type Client interface {
	// GenerateText issues a single-turn {contents, generationConfig} request
	// and returns the response text verbatim (no extraction/repair — that is
	// layered on by callers per §4.3/§4.4).
	GenerateText(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

type client struct {
	genaiClient *genai.Client
	model       string
	log         *obs.Logger
}

// New constructs a Client against the given API key and default model name.
func New(ctx context.Context, apiKey, model string, log *obs.Logger) (Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &client{genaiClient: gc, model: model, log: log.With("component", "llm.Client")}, nil
}

func (c *client) GenerateText(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(params.Temperature)),
		TopP:            genai.Ptr(float32(params.TopP)),
		MaxOutputTokens: int32(params.MaxOutputTokens),
	}

	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", classifyErr(err)
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ingesterr.Upstream(fmt.Errorf("empty response from model %s", c.model))
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// classifyErr wraps the SDK error as an UpstreamFailure. Rate-limit
// detection (IsRateLimited below) inspects the wrapped message rather than
// a typed SDK error since genai surfaces HTTP status via the error string.
func classifyErr(err error) error {
	return ingesterr.Upstream(err)
}

// IsRateLimited reports whether err indicates a 429 / RESOURCE_EXHAUSTED
// response, the signal that triggers the coordinator's fixed 30s backoff.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
}
