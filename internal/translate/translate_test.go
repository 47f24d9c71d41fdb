package translate

import (
	"context"
	"testing"

	"github.com/yungbote/video-ingestor/internal/domain"
	"github.com/yungbote/video-ingestor/internal/llm"
	"github.com/yungbote/video-ingestor/internal/obs"
)

type fakeClient struct {
	responses []string
	calls     int
}

func (f *fakeClient) GenerateText(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return resp, nil
}

func testLogger(t *testing.T) *obs.Logger {
	t.Helper()
	log, err := obs.New("development")
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	return log
}

func phraseView(n int) domain.TranscriptionView {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{Text: "line", Timestamp: domain.Timestamp{Start: float64(i), End: float64(i) + 1}}
	}
	return domain.TranscriptionView{FullText: "full text", Chunks: chunks}
}

func TestTranslate_EmptyInput(t *testing.T) {
	out, err := Translate(context.Background(), &fakeClient{}, phraseView(0), DefaultConfig(), testLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Chunks) != 0 {
		t.Fatalf("want 0 chunks, got %d", len(out.Chunks))
	}
}

func TestTranslate_ChunkCountAndTimestampAlignment(t *testing.T) {
	src := phraseView(3)
	fake := &fakeClient{responses: []string{
		`[{"index":0,"text":"раз"},{"index":1,"text":"два"},{"index":2,"text":"три"}]`,
	}}
	out, err := Translate(context.Background(), fake, src, DefaultConfig(), testLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Chunks) != len(src.Chunks) {
		t.Fatalf("want %d chunks, got %d", len(src.Chunks), len(out.Chunks))
	}
	for i, c := range out.Chunks {
		if c.Timestamp != src.Chunks[i].Timestamp {
			t.Fatalf("chunk %d timestamp mismatch: want %v, got %v", i, src.Chunks[i].Timestamp, c.Timestamp)
		}
	}
}

func TestTranslate_MissingIndexFallsBackToSource(t *testing.T) {
	src := phraseView(3)
	fake := &fakeClient{responses: []string{
		`[{"index":0,"text":"раз"},{"index":2,"text":"три"}]`,
		// Reply to the per-line retry for index 1: not Cyrillic, so the
		// source-text fallback is kept.
		"line",
	}}
	out, err := Translate(context.Background(), fake, src, DefaultConfig(), testLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(out.Chunks))
	}
	if out.Chunks[1].Text != "line" {
		t.Fatalf("want fallback to source text %q, got %q", "line", out.Chunks[1].Text)
	}
}

func TestTranslate_MarkdownWrappedResponseIsRepaired(t *testing.T) {
	src := phraseView(1)
	fake := &fakeClient{responses: []string{
		"```json\n[{\"index\":0,\"text\":\"раз\",}]\n```",
	}}
	out, err := Translate(context.Background(), fake, src, DefaultConfig(), testLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Chunks[0].Text != "раз" {
		t.Fatalf("want 'раз', got %q", out.Chunks[0].Text)
	}
}
