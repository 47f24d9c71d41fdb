// Package analysis implements the analysis half of C4: a structured-output
// LLM call that classifies a transcript's CEFR level, speech speed,
// grammar/vocabulary complexity, topics (against the closed catalog), and
// adult-content flag.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/video-ingestor/internal/contract"
	"github.com/yungbote/video-ingestor/internal/domain"
	"github.com/yungbote/video-ingestor/internal/jsonrepair"
	"github.com/yungbote/video-ingestor/internal/llm"
	"github.com/yungbote/video-ingestor/internal/obs"
	"github.com/yungbote/video-ingestor/internal/structured"
)

// Analyze runs the analysis LLM call against transcriptFullText and
// validates the result through C1, falling back to the catalog's first
// three entries for topics and false for isAdultContent on missing fields.
func Analyze(ctx context.Context, client llm.Client, transcriptFullText string, catalog []string, log *obs.Logger) (domain.Analysis, error) {
	log = log.With("component", "analysis.Analyze")
	prompt := buildPrompt(transcriptFullText, catalog)

	spec := structured.Spec[domain.Analysis]{
		Extractor: jsonrepair.ExtractObject,
		Decode: func(span string) (domain.Analysis, error) {
			var a domain.Analysis
			if err := json.Unmarshal([]byte(jsonrepair.Repair(span)), &a); err != nil {
				return domain.Analysis{}, fmt.Errorf("decode analysis: %w", err)
			}
			return a, nil
		},
		Validate: func(a domain.Analysis) (domain.Analysis, error) {
			return contract.ValidateAnalysis("analysis", a, catalog)
		},
		Temperature: 0.2,
		MaxTokens:   1024,
		MaxAttempts: 2,
	}

	return structured.Call(ctx, client, prompt, spec, log)
}

func buildPrompt(transcript string, catalog []string) string {
	var b strings.Builder
	b.WriteString("Analyze the following transcript and return a JSON object with this exact shape:\n")
	b.WriteString(`{"cefrLevel": "A1|A2|B1|B2|C1|C2", "speechSpeed": "slow|normal|fast", "grammarComplexity": "simple|intermediate|complex", "vocabularyComplexity": "basic|intermediate|advanced", "topics": ["..."], "isAdultContent": false}` + "\n\n")
	fmt.Fprintf(&b, "Choose at most 3 topics from this closed catalog (use exact spelling): %s\n\n", strings.Join(catalog, ", "))
	b.WriteString("Set isAdultContent to true only if the transcript has explicit references to sex, graphic violence, or illegal drug use.\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nRespond with the JSON object only, no markdown fences, no commentary.")
	return b.String()
}
