// Package segment implements C2: grouping word-level timings into
// phrase-level and word-level chunk views under duration/gap/word-count
// constraints. The grouping algorithm is applied identically for both
// views, parameterized differently — see Params.
package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/video-ingestor/internal/domain"
)

// Params configures one grouping pass over a word sequence.
type Params struct {
	MinWords      int
	MaxWords      int
	MaxGapSeconds float64
	MinDuration   float64
	MaxDuration   float64
}

// PhraseParams returns the default phrase-view grouping parameters.
func PhraseParams() Params {
	return Params{MinWords: 5, MaxWords: 9, MaxGapSeconds: 1.5, MinDuration: 1.0, MaxDuration: 4.5}
}

// WordParams returns the word-view grouping parameters: one word per chunk,
// no duration constraint.
func WordParams() Params {
	return Params{MinWords: 1, MaxWords: 1, MaxGapSeconds: 0, MinDuration: 0, MaxDuration: 0}
}

var sentenceFinal = regexp.MustCompile(`[.!?…]$`)

// Group buffers words in order and flushes chunks per the rules in §4.2:
// gap-forced flush, maxWords/maxDuration reached, would-exceed-max-with-
// min-satisfied, min-satisfied-at-sentence-boundary, or end of input.
// Returns an empty slice for empty input; otherwise every input word
// appears in exactly one output chunk.
func Group(words []domain.WordEntry, p Params) []domain.Chunk {
	if len(words) == 0 {
		return []domain.Chunk{}
	}

	var chunks []domain.Chunk
	var buf []domain.WordEntry

	flush := func() {
		if len(buf) == 0 {
			return
		}
		chunks = append(chunks, domain.Chunk{
			Text:      joinWords(buf),
			Timestamp: domain.Timestamp{Start: buf[0].Start, End: maxEnd(buf)},
		})
		buf = nil
	}

	for i, w := range words {
		buf = append(buf, w)
		isLast := i == len(words)-1

		duration := maxEnd(buf) - buf[0].Start

		gapExceeded := false
		if !isLast {
			gap := words[i+1].Start - w.End
			if gap > p.MaxGapSeconds {
				gapExceeded = true
			}
		}

		switch {
		case gapExceeded:
			flush()
		case isLast:
			flush()
		case p.MaxWords > 0 && len(buf) >= p.MaxWords:
			flush()
		case p.MaxDuration > 0 && duration >= p.MaxDuration:
			flush()
		case p.MaxDuration > 0 && wouldExceedMax(buf, words[i+1], p.MaxDuration) && duration >= p.MinDuration:
			flush()
		case p.MinDuration > 0 && duration >= p.MinDuration && len(buf) >= p.MinWords && sentenceFinal.MatchString(strings.TrimSpace(w.Text)):
			flush()
		}
	}
	flush()

	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	return chunks
}

func wouldExceedMax(buf []domain.WordEntry, next domain.WordEntry, maxDuration float64) bool {
	projected := next.End - buf[0].Start
	return projected > maxDuration
}

func maxEnd(buf []domain.WordEntry) float64 {
	end := buf[0].End
	for _, w := range buf {
		if w.End > end {
			end = w.End
		}
	}
	return end
}

// noSpaceBefore holds punctuation that must not be preceded by a space
// when joining word texts into chunk text.
const noSpaceBefore = ".,!?;:)]»\""

// joinWords concatenates word texts with standard spacing: no leading
// space before closing punctuation or an apostrophe, no space after an
// opening paren or a trailing dash.
func joinWords(words []domain.WordEntry) string {
	var b strings.Builder
	for i, w := range words {
		text := w.Text
		if i == 0 {
			b.WriteString(text)
			continue
		}
		prevEndsOpenParenOrDash := strings.HasSuffix(words[i-1].Text, "(") || strings.HasSuffix(words[i-1].Text, "-")
		first, _ := utf8.DecodeRuneInString(text)
		startsWithNoSpaceBefore := len(text) > 0 && (strings.ContainsRune(noSpaceBefore, first) || first == '\'')
		if prevEndsOpenParenOrDash || startsWithNoSpaceBefore {
			b.WriteString(text)
		} else {
			b.WriteString(" ")
			b.WriteString(text)
		}
	}
	return b.String()
}

// JoinPlain joins raw word texts with single spaces and the same
// punctuation-spacing rule as Group, used to check the invariant that
// concatenated chunk text equals the plain join of all input words.
func JoinPlain(words []domain.WordEntry) string {
	return joinWords(words)
}

// BuildVariants runs both grouping passes and assembles the full
// TranscriptionVariants record. fullText is the engine-reported canonical
// text, trimmed; it is NOT derived from the word join (the engine's
// transcript may differ slightly in whitespace/casing from the timed words).
func BuildVariants(fullText string, words []domain.WordEntry, phraseParams, wordParams Params) domain.TranscriptionVariants {
	full := strings.TrimSpace(fullText)
	return domain.TranscriptionVariants{
		Plain:    domain.TranscriptionView{FullText: full, Chunks: []domain.Chunk{}},
		Phrases:  domain.TranscriptionView{FullText: full, Chunks: Group(words, phraseParams)},
		Words:    domain.TranscriptionView{FullText: full, Chunks: Group(words, wordParams)},
		FullText: full,
	}
}
