// Package structured implements the shared C4 pattern behind the analysis
// and exercises LLM callers: build a prompt, extract the first balanced
// JSON span, repair it, parse it, validate it, and retry with a reinforced
// prompt on any failure, bounded by a small attempt count. Grounded on the
// teacher's GenerateJSON (internal/platform/openai/client.go), generalized
// from a single JSON-schema request shape to any parse-then-validate step.
package structured

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/video-ingestor/internal/ingesterr"
	"github.com/yungbote/video-ingestor/internal/llm"
	"github.com/yungbote/video-ingestor/internal/obs"
	"github.com/yungbote/video-ingestor/internal/retry"
)

// Extractor pulls the balanced JSON span (object or array) from raw model
// output; Decode unmarshals it into T; Validate runs C1-style normalization
// over the decoded value, returning a SchemaViolation on failure.
type Extractor func(raw string) (string, error)

type Spec[T any] struct {
	Extractor  Extractor
	Decode     func(jsonSpan string) (T, error)
	Validate   func(T) (T, error)
	Temperature float64
	MaxTokens   int
	MaxAttempts int
}

const reinforcement = "\n\nRespond with valid JSON only. No markdown fences, no commentary, no explanations — the JSON value alone."

// Call runs the extract/repair/parse/validate loop against client, retrying
// up to spec.MaxAttempts times with a reinforced prompt on any failure.
// Exhausting attempts raises UpstreamFailure.
func Call[T any](ctx context.Context, client llm.Client, prompt string, spec Spec[T], log *obs.Logger) (T, error) {
	var zero T
	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	temp := spec.Temperature
	if temp > 0.4 {
		temp = 0.4
	}

	policy := retry.FixedOnRateLimit(300*time.Millisecond, 30*time.Second, llm.IsRateLimited)

	result, err := retry.WithBackoff(ctx, maxAttempts, policy, func(ctx context.Context, attempt int) (T, error) {
		attemptPrompt := prompt
		if attempt > 1 {
			attemptPrompt = prompt + reinforcement
		}
		raw, err := client.GenerateText(ctx, attemptPrompt, llm.GenerationParams{Temperature: temp, TopP: 0.9, MaxOutputTokens: spec.MaxTokens})
		if err != nil {
			return zero, err
		}
		span, err := spec.Extractor(raw)
		if err != nil {
			log.Warn("structured output missing a balanced JSON span, retrying", "attempt", attempt)
			return zero, err
		}
		decoded, err := spec.Decode(span)
		if err != nil {
			log.Warn("structured output failed to parse, retrying", "attempt", attempt, "error", err)
			return zero, err
		}
		validated, err := spec.Validate(decoded)
		if err != nil {
			log.Warn("structured output failed validation, retrying", "attempt", attempt, "error", err)
			return zero, err
		}
		return validated, nil
	})
	if err != nil {
		return zero, ingesterr.Upstream(fmt.Errorf("structured output exhausted %d attempts: %w", maxAttempts, err))
	}
	return result, nil
}
