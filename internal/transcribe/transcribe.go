// Package transcribe wraps the external speech-to-text collaborator behind
// a narrow interface so the orchestrator never imports a cloud SDK
// directly. The concrete binding is Google Cloud Speech-to-Text
// (cloud.google.com/go/speech), chosen as the default implementation;
// spec.md treats this collaborator as a black box and a fake satisfying
// Engine is used throughout the orchestrator's test suite.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/yungbote/video-ingestor/internal/domain"
	"github.com/yungbote/video-ingestor/internal/ingesterr"
	"github.com/yungbote/video-ingestor/internal/obs"
)

// Result is the engine's raw output: the canonical transcript text plus
// word-level timings, prior to C2 segmentation.
type Result struct {
	FullText string
	Words    []domain.WordEntry
}

// Engine transcribes a mono 16kHz 16-bit PCM WAV file at wavPath in the
// given language, returning word-level timings.
type Engine interface {
	Transcribe(ctx context.Context, wavPath, languageCode string) (Result, error)
}

// languageAliases maps the friendly names spec.md's configuration surface
// accepts to ISO-639-1 codes understood by the engine.
var languageAliases = map[string]string{
	"english": "en", "russian": "ru", "spanish": "es", "french": "fr",
	"german": "de", "italian": "it", "portuguese": "pt", "japanese": "ja",
	"korean": "ko", "chinese": "zh", "arabic": "ar", "ukrainian": "uk",
}

// ResolveLanguageCode normalizes a configured language (alias or bare
// ISO-639-1 code) into the code the engine expects.
func ResolveLanguageCode(language string) string {
	lower := strings.ToLower(strings.TrimSpace(language))
	if code, ok := languageAliases[lower]; ok {
		return code
	}
	return lower
}

type googleSpeechEngine struct {
	client *speech.Client
	log    *obs.Logger
}

// NewGoogleSpeechEngine builds the default Engine binding.
func NewGoogleSpeechEngine(ctx context.Context, log *obs.Logger) (Engine, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, ingesterr.Upstream(fmt.Errorf("create speech client: %w", err))
	}
	return &googleSpeechEngine{client: client, log: log.With("service", "transcribe.Engine")}, nil
}

func (e *googleSpeechEngine) Transcribe(ctx context.Context, wavPath, languageCode string) (Result, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return Result{}, ingesterr.MediaTool(fmt.Errorf("read wav for transcription: %w", err))
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:              speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:       16000,
			AudioChannelCount:     1,
			LanguageCode:          ResolveLanguageCode(languageCode),
			EnableWordTimeOffsets: true,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	}

	resp, err := e.client.Recognize(ctx, req)
	if err != nil {
		return Result{}, ingesterr.Upstream(fmt.Errorf("recognize: %w", err))
	}

	var sb strings.Builder
	var words []domain.WordEntry
	for i, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strings.TrimSpace(alt.Transcript))
		for _, w := range alt.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			words = append(words, domain.WordEntry{
				Text:  text,
				Start: durationSeconds(w.StartTime),
				End:   durationSeconds(w.EndTime),
			})
		}
	}

	return Result{FullText: strings.TrimSpace(sb.String()), Words: words}, nil
}

func durationSeconds(d interface {
	GetSeconds() int64
	GetNanos() int32
}) float64 {
	if d == nil {
		return 0
	}
	return float64(d.GetSeconds()) + float64(d.GetNanos())/1e9
}
