// Package exercise implements the exercises half of C4: a structured-output
// LLM call that generates a catalog of vocabulary/topic/statementCheck
// exercises from a transcript and its analysis.
package exercise

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

// Generate runs the exercises LLM call and validates the resulting set
// through C1's composition rules (3-4 vocabulary, 1 topic, >=1
// statementCheck, 5-6 total).
func Generate(ctx context.Context, client llm.Client, transcriptFullText string, a domain.Analysis, log *obs.Logger) ([]domain.Exercise, error) {
	log = log.With("component", "exercise.Generate")
	prompt := buildPrompt(transcriptFullText, a)

	spec := structured.Spec[[]domain.Exercise]{
		Extractor: jsonrepair.ExtractArray,
		Decode: func(span string) ([]domain.Exercise, error) {
			var ex []domain.Exercise
			if err := json.Unmarshal([]byte(jsonrepair.Repair(span)), &ex); err != nil {
				return nil, fmt.Errorf("decode exercises: %w", err)
			}
			return ex, nil
		},
		Validate: func(ex []domain.Exercise) ([]domain.Exercise, error) {
			return contract.ValidateExerciseSet("exercise", ex)
		},
		Temperature: 0.4,
		MaxTokens:   2048,
		MaxAttempts: 2,
	}

	return structured.Call(ctx, client, prompt, spec, log)
}

func buildPrompt(transcript string, a domain.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate exactly 6 learning exercises (language level %s) from the transcript below, as a JSON array.\n\n", a.CEFRLevel)
	b.WriteString("Each element has this shape:\n")
	b.WriteString(`{"type": "vocabulary|topic|statementCheck", "question": "<in Russian, must contain Cyrillic>", "options": ["...", "...", "..."], "correctAnswer": 0, "word": "<only for vocabulary>"}` + "\n\n")
	b.WriteString("Composition: exactly 3 or 4 'vocabulary' exercises, exactly 1 'topic' exercise, at least 1 'statementCheck' exercise, 5 or 6 total.\n")
	b.WriteString("For vocabulary exercises: if word is in Latin script, every option must contain Cyrillic; if word is in Cyrillic script, every option must contain Latin letters.\n")
	b.WriteString("correctAnswer is the zero-based index of the correct option.\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nRespond with the JSON array only, no markdown fences, no commentary.")
	return b.String()
}
