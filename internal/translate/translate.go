// Package translate implements C3: chunked LLM translation of the phrase
// transcript view into a target language, with context windows, JSON
// repair, index alignment, and per-line Cyrillic-validation retry. The
// batching/context-window shape is grounded on alnah-go-transcript's
// map-reduce chunk processing (internal/restructure/mapreduce.go),
// retargeted from token-budget chunking to a fixed-size batch-of-chunks
// scheme with positional index alignment instead of free-form merging.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/yungbote/video-ingestor/internal/domain"
	"github.com/yungbote/video-ingestor/internal/ingesterr"
	"github.com/yungbote/video-ingestor/internal/jsonrepair"
	"github.com/yungbote/video-ingestor/internal/llm"
	"github.com/yungbote/video-ingestor/internal/obs"
	"github.com/yungbote/video-ingestor/internal/retry"
)

// Config parameterizes the coordinator; defaults match §4.3/§6.
type Config struct {
	BatchSize          int // default 60
	ContextWindowLines int // default 4 (lines of prev/next-batch context)
	MaxAttempts        int // default 3
	FullTextBudget     int // default 4000 (head+tail character budget)
	TargetLanguageName string
}

func DefaultConfig() Config {
	return Config{BatchSize: 60, ContextWindowLines: 4, MaxAttempts: 3, FullTextBudget: 4000, TargetLanguageName: "Russian"}
}

type item struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Translate translates phrases (a validated phrase TranscriptionView) into
// the target language configured in cfg, returning a Translation whose
// chunk count always equals len(phrases.Chunks) and whose timestamps are
// copied bit-identical from the source chunks.
func Translate(ctx context.Context, client llm.Client, phrases domain.TranscriptionView, cfg Config, log *obs.Logger) (domain.Translation, error) {
	log = log.With("component", "translate.Translate")
	if len(phrases.Chunks) == 0 {
		return domain.Translation{FullText: "", Chunks: []domain.TranslationChunk{}}, nil
	}

	truncatedFull := truncateHeadTail(phrases.FullText, cfg.FullTextBudget)

	all := make([]domain.TranslationChunk, len(phrases.Chunks))
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 60
	}

	for offset := 0; offset < len(phrases.Chunks); offset += batchSize {
		end := offset + batchSize
		if end > len(phrases.Chunks) {
			end = len(phrases.Chunks)
		}
		batch := phrases.Chunks[offset:end]

		prevCtx := contextLines(phrases.Chunks, offset-cfg.ContextWindowLines, offset)
		nextCtx := contextLines(phrases.Chunks, end, end+cfg.ContextWindowLines)

		translated, err := translateBatch(ctx, client, batch, offset, truncatedFull, prevCtx, nextCtx, cfg, log)
		if err != nil {
			return domain.Translation{}, err
		}
		for i, tc := range translated {
			all[offset+i] = tc
		}
	}

	var fullText strings.Builder
	for i, c := range all {
		if i > 0 {
			fullText.WriteString(" ")
		}
		fullText.WriteString(c.Text)
	}

	return domain.Translation{FullText: fullText.String(), Chunks: all}, nil
}

func contextLines(chunks []domain.Chunk, start, end int) []string {
	if start < 0 {
		start = 0
	}
	if end > len(chunks) {
		end = len(chunks)
	}
	if start >= end {
		return nil
	}
	out := make([]string, 0, end-start)
	for _, c := range chunks[start:end] {
		out = append(out, c.Text)
	}
	return out
}

func translateBatch(ctx context.Context, client llm.Client, batch []domain.Chunk, offset int, truncatedFull string, prevCtx, nextCtx []string, cfg Config, log *obs.Logger) ([]domain.TranslationChunk, error) {
	prompt := buildBatchPrompt(batch, offset, truncatedFull, prevCtx, nextCtx, cfg)

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	policy := retry.FixedOnRateLimit(300*time.Millisecond, 30*time.Second, llm.IsRateLimited)

	items, err := retry.WithBackoff(ctx, maxAttempts, policy, func(ctx context.Context, attempt int) ([]item, error) {
		raw, err := client.GenerateText(ctx, prompt, llm.GenerationParams{Temperature: 0.3, TopP: 0.9, MaxOutputTokens: 4096})
		if err != nil {
			return nil, err
		}
		return parseItems(raw)
	})
	if err != nil {
		return nil, ingesterr.Upstream(fmt.Errorf("translate batch at offset %d: %w", offset, err))
	}

	normalized := normalizeItems(items, batch, offset)
	byIndex := indexMap(normalized)

	aligned := make([]domain.TranslationChunk, len(batch))
	for i, c := range batch {
		expectedIndex := offset + i
		text := c.Text
		if entry, ok := byIndex[expectedIndex]; ok && entry.Text != "" {
			text = entry.Text
		} else {
			log.Warn("translation index missing, falling back to source text", "index", expectedIndex)
		}
		aligned[i] = domain.TranslationChunk{Text: collapseWhitespace(text), SourceText: c.Text, Timestamp: c.Timestamp}
	}

	for i := range aligned {
		if !hasCyrillic(aligned[i].Text) {
			retried, err := retranslateLine(ctx, client, aligned[i].SourceText, prevLine(aligned, i), nextLine(batch, i), cfg)
			if err == nil && hasCyrillic(retried) {
				aligned[i].Text = collapseWhitespace(retried)
			} else {
				log.Warn("per-line retry did not produce Cyrillic text, keeping best available", "index", offset+i)
			}
		}
	}

	return aligned, nil
}

func prevLine(aligned []domain.TranslationChunk, i int) string {
	if i == 0 {
		return ""
	}
	return aligned[i-1].SourceText
}

func nextLine(batch []domain.Chunk, i int) string {
	if i+1 >= len(batch) {
		return ""
	}
	return batch[i+1].Text
}

func retranslateLine(ctx context.Context, client llm.Client, line, prev, next string, cfg Config) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following line into %s. Respond with only the translated text, no quotes, no commentary.\n", cfg.TargetLanguageName)
	if prev != "" {
		fmt.Fprintf(&b, "Previous line (context only, do not translate): %s\n", prev)
	}
	if next != "" {
		fmt.Fprintf(&b, "Next line (context only, do not translate): %s\n", next)
	}
	fmt.Fprintf(&b, "Line to translate: %s\n", line)

	return client.GenerateText(ctx, b.String(), llm.GenerationParams{Temperature: 0.3, TopP: 0.9, MaxOutputTokens: 512})
}

func buildBatchPrompt(batch []domain.Chunk, offset int, truncatedFull string, prevCtx, nextCtx []string, cfg Config) string {
	type payloadItem struct {
		Index int    `json:"index"`
		Text  string `json:"text"`
	}
	payload := make([]payloadItem, len(batch))
	for i, c := range batch {
		payload[i] = payloadItem{Index: offset + i, Text: c.Text}
	}
	payloadJSON, _ := json.Marshal(payload)

	var b strings.Builder
	fmt.Fprintf(&b, "Global transcript context (truncated):\n%s\n\n", truncatedFull)
	if len(prevCtx) > 0 {
		fmt.Fprintf(&b, "Previous context (do not translate, reference only):\n%s\n\n", strings.Join(prevCtx, "\n"))
	}
	if len(nextCtx) > 0 {
		fmt.Fprintf(&b, "Upcoming context (do not translate, reference only):\n%s\n\n", strings.Join(nextCtx, "\n"))
	}
	fmt.Fprintf(&b, "Translate each line below into %s. Lines:\n%s\n\n", cfg.TargetLanguageName, string(payloadJSON))
	b.WriteString(`Rules:
1. Translate one-to-one: one input line produces exactly one output line at the same index.
2. Never merge, split, borrow text across, or reorder lines.
3. Respond with only a JSON array of objects: [{"index": <int>, "text": "<translation>"}, ...].
4. No commentary, no markdown fences, no explanations.
5. Preserve punctuation, emphasis, and tone.
6. Transliterate proper names where a standard localization exists.
7. Every index in the input must appear exactly once in the output.
8. Do not translate the context sections above, they are reference only.
9. Keep translations natural, not literal word-for-word when idiomatic.
10. If unsure of a term, prefer the most common translation.`)
	return b.String()
}

func parseItems(raw string) ([]item, error) {
	arr, err := jsonrepair.ExtractArray(raw)
	if err != nil {
		return nil, fmt.Errorf("extract JSON array: %w", err)
	}
	arr = jsonrepair.Repair(arr)

	var items []item
	if err := json.Unmarshal([]byte(arr), &items); err != nil {
		return nil, fmt.Errorf("parse JSON array: %w", err)
	}
	return items, nil
}

// normalizeItems trims/strips quotes from each item, substitutes source
// text for empty entries, coerces a missing index to the positional index,
// and truncates/pads the list to batch length.
func normalizeItems(items []item, batch []domain.Chunk, offset int) []item {
	out := make([]item, 0, len(batch))
	for i, it := range items {
		if i >= len(batch) {
			break
		}
		text := stripWrappingQuotes(strings.TrimSpace(it.Text))
		if text == "" {
			text = batch[i].Text
		}
		idx := it.Index
		if idx == 0 {
			idx = offset + i
		}
		out = append(out, item{Index: idx, Text: text})
	}
	for len(out) < len(batch) {
		i := len(out)
		out = append(out, item{Index: offset + i, Text: batch[i].Text})
	}
	return out
}

func indexMap(items []item) map[int]item {
	m := make(map[int]item, len(items))
	for _, it := range items {
		existing, ok := m[it.Index]
		if !ok || (existing.Text == "" && it.Text != "") {
			m[it.Index] = it
		}
	}
	return m
}

func stripWrappingQuotes(s string) string {
	quotes := []string{`"`, `'`, "“”", "«»"}
	for _, pair := range quotes {
		if len(pair) == 1 {
			if strings.HasPrefix(s, pair) && strings.HasSuffix(s, pair) && len(s) >= 2 {
				return strings.TrimSuffix(strings.TrimPrefix(s, pair), pair)
			}
			continue
		}
		open, close := string(pair[0]), string(pair[1])
		if strings.HasPrefix(s, open) && strings.HasSuffix(s, close) && len(s) >= 2 {
			return strings.TrimSuffix(strings.TrimPrefix(s, open), close)
		}
	}
	return s
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

func truncateHeadTail(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	half := budget / 2
	head := s[:half]
	tail := s[len(s)-half:]
	return head + " … " + tail
}
