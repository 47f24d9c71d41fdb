package segment

import (
	"testing"

	"github.com/yungbote/video-ingestor/internal/domain"
)

func words(specs ...[3]interface{}) []domain.WordEntry {
	out := make([]domain.WordEntry, len(specs))
	for i, s := range specs {
		out[i] = domain.WordEntry{Text: s[0].(string), Start: s[1].(float64), End: s[2].(float64)}
	}
	return out
}

func TestGroup_EmptyInput(t *testing.T) {
	got := Group(nil, PhraseParams())
	if len(got) != 0 {
		t.Fatalf("want empty slice, got %v", got)
	}
}

func TestGroup_SingleWord(t *testing.T) {
	w := []domain.WordEntry{{Text: "Hello", Start: 0, End: 0.5}}
	phrases := Group(w, PhraseParams())
	wordsView := Group(w, WordParams())
	if len(phrases) != 1 || len(wordsView) != 1 {
		t.Fatalf("want 1 chunk each, got %d phrases, %d words", len(phrases), len(wordsView))
	}
	if phrases[0].Timestamp != (domain.Timestamp{Start: 0, End: 0.5}) {
		t.Fatalf("timestamp mismatch: %v", phrases[0].Timestamp)
	}
}

func TestGroup_LastWordAlwaysFlushes(t *testing.T) {
	w := []domain.WordEntry{
		{Text: "one", Start: 0, End: 0.2},
		{Text: "two", Start: 0.2, End: 0.4},
	}
	got := Group(w, Params{MinWords: 10, MaxWords: 10, MaxGapSeconds: 10, MinDuration: 10, MaxDuration: 10})
	if len(got) != 1 {
		t.Fatalf("want 1 chunk (forced flush at input end), got %d", len(got))
	}
}

func TestGroup_GapForcesFlush(t *testing.T) {
	w := []domain.WordEntry{
		{Text: "one", Start: 0, End: 0.2},
		{Text: "two", Start: 5.0, End: 5.2},
	}
	got := Group(w, PhraseParams())
	if len(got) != 2 {
		t.Fatalf("want 2 chunks due to gap > maxGapSeconds, got %d", len(got))
	}
}

func TestGroup_WordCountInvariant(t *testing.T) {
	w := []domain.WordEntry{
		{Text: "The", Start: 0, End: 0.2},
		{Text: "quick", Start: 0.2, End: 0.4},
		{Text: "brown", Start: 0.4, End: 0.6},
		{Text: "fox", Start: 0.6, End: 0.8},
		{Text: "jumps.", Start: 0.8, End: 1.1},
		{Text: "Then", Start: 1.3, End: 1.5},
		{Text: "it", Start: 1.5, End: 1.6},
		{Text: "ran.", Start: 1.6, End: 1.9},
	}
	phrases := Group(w, PhraseParams())
	wordsView := Group(w, WordParams())

	sumWords := func(chunks []domain.Chunk) int {
		n := 0
		for _, c := range chunks {
			n += len(splitFields(c.Text))
		}
		return n
	}
	if sumWords(phrases) != len(w) {
		t.Fatalf("phrase chunks should cover all %d words, counted %d", len(w), sumWords(phrases))
	}
	if sumWords(wordsView) != len(w) {
		t.Fatalf("word chunks should cover all %d words, counted %d", len(w), sumWords(wordsView))
	}
	if len(wordsView) != len(w) {
		t.Fatalf("word view must have one chunk per word, got %d chunks for %d words", len(wordsView), len(w))
	}
}

func splitFields(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func TestJoinWords_PunctuationSpacing(t *testing.T) {
	w := []domain.WordEntry{
		{Text: "Hello", Start: 0, End: 0.2},
		{Text: ",", Start: 0.2, End: 0.3},
		{Text: "world", Start: 0.3, End: 0.5},
		{Text: "!", Start: 0.5, End: 0.6},
	}
	got := joinWords(w)
	want := "Hello, world!"
	if got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestBuildVariants_FullTextEqualityAcrossViews(t *testing.T) {
	w := words(
		[3]interface{}{"Hi", 0.0, 0.2},
		[3]interface{}{"there.", 0.2, 0.5},
	)
	variants := BuildVariants("  Hi there.  ", w, PhraseParams(), WordParams())
	if variants.Plain.FullText != variants.Phrases.FullText || variants.Phrases.FullText != variants.Words.FullText {
		t.Fatalf("fullText must match across all three views: %+v", variants)
	}
	if len(variants.Plain.Chunks) != 0 {
		t.Fatalf("plain view must have no chunks")
	}
}
