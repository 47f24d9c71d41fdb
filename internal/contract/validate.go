// Package contract implements C1: the data-contract validators that are the
// sole source of semantic correctness between pipeline stages. Every
// exported Validate* function is total — it returns a normalized value or
// a *ingesterr.Error of kind SchemaViolation carrying a path like
// "exercise[2].options[1]".
package contract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/yungbote/video-ingestor/internal/domain"
	"github.com/yungbote/video-ingestor/internal/ingesterr"
)

// ValidateTimestamp enforces start >= 0 and end >= start.
func ValidateTimestamp(path string, ts domain.Timestamp) (domain.Timestamp, error) {
	if ts.Start < 0 {
		return ts, ingesterr.SchemaViolationf(path+".start", "start must be >= 0, got %v", ts.Start)
	}
	if ts.End < ts.Start {
		return ts, ingesterr.SchemaViolationf(path+".end", "end (%v) must be >= start (%v)", ts.End, ts.Start)
	}
	return ts, nil
}

// ValidateWordEntry trims Text and rejects empty-after-trim entries.
func ValidateWordEntry(path string, w domain.WordEntry) (domain.WordEntry, error) {
	w.Text = strings.TrimSpace(w.Text)
	if w.Text == "" {
		return w, ingesterr.SchemaViolationf(path+".text", "word text must be non-empty after trim")
	}
	ts, err := ValidateTimestamp(path, domain.Timestamp{Start: w.Start, End: w.End})
	if err != nil {
		return w, err
	}
	w.Start, w.End = ts.Start, ts.End
	return w, nil
}

// ValidateChunk trims Text and rejects empty-after-trim chunks.
func ValidateChunk(path string, c domain.Chunk) (domain.Chunk, error) {
	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		return c, ingesterr.SchemaViolationf(path+".text", "chunk text must be non-empty after trim")
	}
	ts, err := ValidateTimestamp(path+".timestamp", c.Timestamp)
	if err != nil {
		return c, err
	}
	c.Timestamp = ts
	return c, nil
}

// ValidateTranscriptionVariants enforces the cross-view fullText equality
// invariant and that Plain carries no chunks.
func ValidateTranscriptionVariants(path string, v domain.TranscriptionVariants) (domain.TranscriptionVariants, error) {
	full := strings.TrimSpace(v.FullText)
	if v.Plain.FullText != "" && strings.TrimSpace(v.Plain.FullText) != full {
		return v, ingesterr.SchemaViolationf(path+".plain.fullText", "plain.fullText must equal fullText")
	}
	if strings.TrimSpace(v.Phrases.FullText) != full {
		return v, ingesterr.SchemaViolationf(path+".phrases.fullText", "phrases.fullText must equal fullText")
	}
	if strings.TrimSpace(v.Words.FullText) != full {
		return v, ingesterr.SchemaViolationf(path+".words.fullText", "words.fullText must equal fullText")
	}
	if len(v.Plain.Chunks) != 0 {
		return v, ingesterr.SchemaViolationf(path+".plain.chunks", "plain view must carry no chunks")
	}

	out := v
	out.FullText = full
	out.Plain = domain.TranscriptionView{FullText: full, Chunks: nil}

	phraseChunks := make([]domain.Chunk, len(v.Phrases.Chunks))
	for i, c := range v.Phrases.Chunks {
		nc, err := ValidateChunk(fmt.Sprintf("%s.phrases.chunks[%d]", path, i), c)
		if err != nil {
			return v, err
		}
		phraseChunks[i] = nc
	}
	out.Phrases = domain.TranscriptionView{FullText: full, Chunks: phraseChunks}

	wordChunks := make([]domain.Chunk, len(v.Words.Chunks))
	for i, c := range v.Words.Chunks {
		nc, err := ValidateChunk(fmt.Sprintf("%s.words.chunks[%d]", path, i), c)
		if err != nil {
			return v, err
		}
		wordChunks[i] = nc
	}
	out.Words = domain.TranscriptionView{FullText: full, Chunks: wordChunks}

	return out, nil
}

// ValidateTranslation enforces non-empty, trimmed chunk text. Chunk-count
// and timestamp-equality against the source phrase view are the
// translation coordinator's own contract (§4.3), not re-checked here since
// an empty translation (no phrase chunks) is valid.
func ValidateTranslation(path string, t domain.Translation) (domain.Translation, error) {
	out := t
	out.FullText = strings.TrimSpace(t.FullText)
	out.Chunks = make([]domain.TranslationChunk, len(t.Chunks))
	for i, c := range t.Chunks {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			return t, ingesterr.SchemaViolationf(fmt.Sprintf("%s.chunks[%d].text", path, i), "translation chunk text must be non-empty")
		}
		ts, err := ValidateTimestamp(fmt.Sprintf("%s.chunks[%d].timestamp", path, i), c.Timestamp)
		if err != nil {
			return t, err
		}
		c.Timestamp = ts
		out.Chunks[i] = c
	}
	return out, nil
}

var (
	validCEFR = map[string]string{
		"a1": domain.CEFR_A1, "a2": domain.CEFR_A2, "b1": domain.CEFR_B1,
		"b2": domain.CEFR_B2, "c1": domain.CEFR_C1, "c2": domain.CEFR_C2,
	}
	validSpeed = map[string]string{
		"slow": domain.SpeedSlow, "normal": domain.SpeedNormal, "fast": domain.SpeedFast,
	}
	validGrammar = map[string]string{
		"simple": domain.GrammarSimple, "intermediate": domain.GrammarIntermediate, "complex": domain.GrammarComplex,
	}
	validVocab = map[string]string{
		"basic": domain.VocabBasic, "intermediate": domain.VocabIntermediate, "advanced": domain.VocabAdvanced,
	}
)

func lookupEnum(path, field string, m map[string]string, raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", ingesterr.SchemaViolationf(path+"."+field, "unrecognized value %q", raw)
}

// ValidateAnalysis normalizes enum casing, canonicalizes topics against the
// closed catalog (case-insensitive match, dropping unknowns; falling back
// to the catalog's first three entries if nothing survives), and caps the
// topic list at three.
func ValidateAnalysis(path string, a domain.Analysis, catalog []string) (domain.Analysis, error) {
	out := a
	var err error
	if out.CEFRLevel, err = lookupEnum(path, "cefrLevel", validCEFR, a.CEFRLevel); err != nil {
		return a, err
	}
	if out.SpeechSpeed, err = lookupEnum(path, "speechSpeed", validSpeed, a.SpeechSpeed); err != nil {
		return a, err
	}
	if out.GrammarComplexity, err = lookupEnum(path, "grammarComplexity", validGrammar, a.GrammarComplexity); err != nil {
		return a, err
	}
	if out.VocabularyComplexity, err = lookupEnum(path, "vocabularyComplexity", validVocab, a.VocabularyComplexity); err != nil {
		return a, err
	}

	canonical := make(map[string]string, len(catalog))
	for _, t := range catalog {
		canonical[strings.ToLower(t)] = t
	}

	var topics []string
	seen := map[string]bool{}
	for _, t := range a.Topics {
		c, ok := canonical[strings.ToLower(strings.TrimSpace(t))]
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		topics = append(topics, c)
		if len(topics) == 3 {
			break
		}
	}
	if len(topics) == 0 {
		for i := 0; i < len(catalog) && i < 3; i++ {
			topics = append(topics, catalog[i])
		}
	}
	out.Topics = topics
	return out, nil
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

func hasLatin(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}

// ValidateExercise normalizes one exercise and checks the script-alignment
// rule for vocabulary exercises: word and options must be disjoint
// alphabets (Latin vs Cyrillic).
func ValidateExercise(path string, e domain.Exercise) (domain.Exercise, error) {
	out := e
	out.Question = strings.TrimSpace(e.Question)
	if out.Question == "" {
		return e, ingesterr.SchemaViolationf(path+".question", "question must be non-empty")
	}
	if !hasCyrillic(out.Question) {
		return e, ingesterr.SchemaViolationf(path+".question", "question must contain Cyrillic characters")
	}

	if len(e.Options) != 3 && len(e.Options) != 4 {
		return e, ingesterr.SchemaViolationf(path+".options", "options must have 3 or 4 entries, got %d", len(e.Options))
	}
	out.Options = make([]string, len(e.Options))
	for i, o := range e.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return e, ingesterr.SchemaViolationf(fmt.Sprintf("%s.options[%d]", path, i), "option must be non-empty")
		}
		out.Options[i] = o
	}

	if e.CorrectAnswer < 0 || e.CorrectAnswer >= len(out.Options) {
		return e, ingesterr.SchemaViolationf(path+".correctAnswer", "correctAnswer %d out of range [0,%d)", e.CorrectAnswer, len(out.Options))
	}

	switch e.Type {
	case domain.ExerciseVocabulary, domain.ExerciseTopic, domain.ExerciseStatementCheck:
		out.Type = e.Type
	default:
		return e, ingesterr.SchemaViolationf(path+".type", "unrecognized exercise type %q", e.Type)
	}

	if out.Type == domain.ExerciseVocabulary {
		out.Word = strings.TrimSpace(e.Word)
		if out.Word == "" {
			return e, ingesterr.SchemaViolationf(path+".word", "vocabulary exercise requires word")
		}
		wordIsLatin := hasLatin(out.Word)
		wordIsCyrillic := hasCyrillic(out.Word)
		for i, o := range out.Options {
			optPath := fmt.Sprintf("%s.options[%d]", path, i)
			if wordIsLatin && !hasCyrillic(o) {
				return e, ingesterr.SchemaViolationf(optPath, "option must contain Cyrillic when word is Latin-script")
			}
			if wordIsCyrillic && !hasLatin(o) {
				return e, ingesterr.SchemaViolationf(optPath, "option must contain Latin letters when word is Cyrillic-script")
			}
		}
	}

	return out, nil
}

// ValidateExerciseSet checks per-exercise normalization plus the catalog
// composition counts (3-4 vocabulary, exactly 1 topic, >=1 statementCheck).
func ValidateExerciseSet(path string, exercises []domain.Exercise) ([]domain.Exercise, error) {
	out := make([]domain.Exercise, len(exercises))
	var vocab, topic, statement int
	for i, e := range exercises {
		ne, err := ValidateExercise(fmt.Sprintf("%s[%d]", path, i), e)
		if err != nil {
			return nil, err
		}
		out[i] = ne
		switch ne.Type {
		case domain.ExerciseVocabulary:
			vocab++
		case domain.ExerciseTopic:
			topic++
		case domain.ExerciseStatementCheck:
			statement++
		}
	}
	if vocab != 3 && vocab != 4 {
		return nil, ingesterr.SchemaViolationf(path, "expected 3 or 4 vocabulary exercises, got %d", vocab)
	}
	if topic != 1 {
		return nil, ingesterr.SchemaViolationf(path, "expected exactly 1 topic exercise, got %d", topic)
	}
	if statement < 1 {
		return nil, ingesterr.SchemaViolationf(path, "expected at least 1 statementCheck exercise, got %d", statement)
	}
	total := vocab + topic + statement
	if total != 5 && total != 6 {
		return nil, ingesterr.SchemaViolationf(path, "expected 5 or 6 total exercises, got %d", total)
	}
	return out, nil
}

// ValidateProcessedVideo validates the composite record end to end before
// persistence; any failure aborts the video without persisting.
func ValidateProcessedVideo(pv domain.ProcessedVideo, catalog []string) (domain.ProcessedVideo, error) {
	out := pv
	out.VideoName = strings.TrimSpace(pv.VideoName)
	if out.VideoName == "" {
		return pv, ingesterr.SchemaViolationf("videoName", "videoName must be non-empty")
	}
	out.VideoURL = strings.TrimSpace(pv.VideoURL)
	if out.VideoURL == "" {
		return pv, ingesterr.SchemaViolationf("videoUrl", "videoUrl must be non-empty")
	}

	variants, err := ValidateTranscriptionVariants("transcription", pv.Transcription)
	if err != nil {
		return pv, err
	}
	out.Transcription = variants

	if strings.TrimSpace(variants.FullText) == "" {
		return pv, ingesterr.SchemaViolationf("transcription.fullText", "analysis requires a non-empty transcript")
	}

	translation, err := ValidateTranslation("translation", pv.Translation)
	if err != nil {
		return pv, err
	}
	out.Translation = translation

	analysis, err := ValidateAnalysis("analysis", pv.Analysis, catalog)
	if err != nil {
		return pv, err
	}
	out.Analysis = analysis
	out.IsAdultContent = analysis.IsAdultContent

	if len(pv.Exercises) > 0 {
		exercises, err := ValidateExerciseSet("exercise", pv.Exercises)
		if err != nil {
			return pv, err
		}
		out.Exercises = exercises
	}

	return out, nil
}
