// Package orchestrator implements C8: the per-video state machine
// Downloaded -> AudioExtracted -> Transcribed -> SegmentsBuilt ->
// Translated -> Analyzed -> ExercisesGenerated -> AudioNormalized ->
// Renamed -> Packaged -> Uploaded -> Persisted -> Done, plus the safe-ID
// generation, temp-resource cleanup, and HLS-to-MP4 fallback rules around
// it. Grounded on the teacher's internal/modules/learning/ingestion/pipeline/video.go
// handleVideo: staged degrade-to-warning control flow, os.MkdirTemp +
// defer os.RemoveAll scoped temp directories, a diagnostics map alongside
// the happy-path return value.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/video-ingestor/internal/analysis"
	"github.com/yungbote/video-ingestor/internal/config"
	"github.com/yungbote/video-ingestor/internal/contract"
	"github.com/yungbote/video-ingestor/internal/domain"
	"github.com/yungbote/video-ingestor/internal/exercise"
	"github.com/yungbote/video-ingestor/internal/ingesterr"
	"github.com/yungbote/video-ingestor/internal/llm"
	"github.com/yungbote/video-ingestor/internal/media"
	"github.com/yungbote/video-ingestor/internal/obs"
	"github.com/yungbote/video-ingestor/internal/segment"
	"github.com/yungbote/video-ingestor/internal/transcribe"
	"github.com/yungbote/video-ingestor/internal/translate"
)

// Mode selects the stage-inclusion policy: which state-machine edges are
// active for this run. All three modes share the same underlying graph;
// a mode simply removes edges rather than branching into a parallel path.
type Mode string

const (
	ModeFull              Mode = "full"
	ModeNoExercises       Mode = "no-exercises"
	ModeTranscriptionOnly Mode = "transcription-only"
)

type stagePolicy struct {
	translate bool
	analyze   bool
	exercises bool
	persist   bool
}

func policyFor(m Mode) stagePolicy {
	switch m {
	case ModeTranscriptionOnly:
		return stagePolicy{translate: false, analyze: false, exercises: false, persist: false}
	case ModeNoExercises:
		return stagePolicy{translate: true, analyze: true, exercises: false, persist: true}
	default:
		return stagePolicy{translate: true, analyze: true, exercises: true, persist: true}
	}
}

// RunConfig carries the per-run, request-scoped parameters the orchestrator
// needs beyond its constructor dependencies. Transcription is copied by the
// caller (config.TranscriptionConfig.Copy) to avoid the shared-mutation
// hazard a global config object would create across concurrent runs.
type RunConfig struct {
	Mode               Mode
	Transcription      config.TranscriptionConfig
	AudioNormalization config.AudioNormalizationConfig
	VideoCompression   config.VideoCompressionConfig
	HLS                config.HLSConfig
	Translation        translate.Config
	VideoTopics        []string
	OutputDir          string // where <safeId>.json is written
	UploadPrefix       string // output-bucket key prefix for uploaded media
}

// Result is what ProcessVideo returns on success.
type Result struct {
	SafeID         string
	ProcessedVideo domain.ProcessedVideo
	JSONPath       string
}

// Uploader is the subset of store.Output the orchestrator needs.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, prefix, targetName string) (string, error)
	UploadTree(ctx context.Context, localDir, prefix, baseName, entryFile string) (string, error)
}

// Persister is the subset of dbstore.Store the orchestrator needs, narrowed
// to an interface so tests can substitute a fake instead of a live MySQL
// connection.
type Persister interface {
	Insert(ctx context.Context, pv domain.ProcessedVideo) (int64, error)
}

type Orchestrator struct {
	media  media.Tools
	engine transcribe.Engine
	llm    llm.Client
	output Uploader
	db     Persister
	log    *obs.Logger
	tracer trace.Tracer
}

func New(mediaTools media.Tools, engine transcribe.Engine, llmClient llm.Client, output Uploader, db Persister, log *obs.Logger) *Orchestrator {
	return &Orchestrator{
		media:  mediaTools,
		engine: engine,
		llm:    llmClient,
		output: output,
		db:     db,
		log:    log.With("service", "orchestrator.Orchestrator"),
		tracer: otel.Tracer("video-ingestor/orchestrator"),
	}
}

// runStage wraps one state-machine transition in an OpenTelemetry span and
// start/success/failure log lines. It is a free function (not a method)
// because Go methods cannot carry their own type parameters.
func runStage[T any](ctx context.Context, o *Orchestrator, log *obs.Logger, name string, fn func(context.Context) (T, error)) (T, error) {
	spanCtx, span := o.tracer.Start(ctx, "stage."+name, trace.WithAttributes(attribute.String("stage", name)))
	defer span.End()
	begin := time.Now()
	log.Debug("stage starting", "stage", name)
	result, err := fn(spanCtx)
	elapsed := time.Since(begin)
	if err != nil {
		span.RecordError(err)
		log.Error("stage failed", "stage", name, "durationMs", elapsed.Milliseconds(), "error", err)
		return result, err
	}
	log.Debug("stage succeeded", "stage", name, "durationMs", elapsed.Milliseconds())
	return result, nil
}

// ProcessVideo runs one video through the full state machine. sourcePath is
// a local file already downloaded by the caller (C9); sourceExt is the
// original extension (leading dot optional, any case). A non-nil error is
// always fatal for this video: the caller is responsible for routing the
// object-store key to failed/ and leaving sourcePath for its own cleanup.
func (o *Orchestrator) ProcessVideo(ctx context.Context, sourcePath, sourceExt string, cfg RunConfig) (Result, error) {
	start := time.Now()
	policy := policyFor(cfg.Mode)
	safeID, err := newSafeID()
	if err != nil {
		return Result{}, ingesterr.Cleanup(fmt.Errorf("generate safe id: %w", err))
	}
	ext := strings.ToLower(strings.TrimPrefix(sourceExt, "."))
	log := o.log.With("videoId", safeID, "mode", string(cfg.Mode))

	tempDir, mkErr := os.MkdirTemp("", "ingest_"+safeID+"_")
	if mkErr != nil {
		return Result{}, ingesterr.MediaTool(fmt.Errorf("create scoped temp dir: %w", mkErr))
	}
	succeeded := false
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			log.Warn("cleanup of scoped temp dir failed", "path", tempDir, "error", rmErr)
		}
		if succeeded {
			if rmErr := os.Remove(sourcePath); rmErr != nil {
				log.Warn("cleanup of source local video failed", "path", sourcePath, "error", rmErr)
			}
		}
	}()

	// --- AudioExtracted ---
	var durationSeconds *int
	audioPath, err := runStage(ctx, o, log, "extract_audio", func(ctx context.Context) (string, error) {
		path, dur, err := o.media.ExtractAudio(ctx, sourcePath, tempDir)
		durationSeconds = dur
		return path, err
	})
	if err != nil {
		return Result{}, err
	}

	// --- Transcribed ---
	engineResult, err := runStage(ctx, o, log, "transcribe", func(ctx context.Context) (transcribe.Result, error) {
		return o.engine.Transcribe(ctx, audioPath, cfg.Transcription.Language)
	})
	if err != nil {
		return Result{}, err
	}

	// --- SegmentsBuilt + validate ---
	phraseParams := segment.Params{
		MinWords: cfg.Transcription.PhraseMinWords, MaxWords: cfg.Transcription.PhraseMaxWords,
		MaxGapSeconds: cfg.Transcription.MaxGapBetweenWordChunksSeconds,
		MinDuration:   cfg.Transcription.PhraseMinDurationSeconds, MaxDuration: cfg.Transcription.PhraseMaxDurationSeconds,
	}
	wordParams := segment.Params{MinWords: cfg.Transcription.WordMinWords, MaxWords: cfg.Transcription.WordMaxWords}
	variants, err := runStage(ctx, o, log, "segment", func(ctx context.Context) (domain.TranscriptionVariants, error) {
		v := segment.BuildVariants(engineResult.FullText, engineResult.Words, phraseParams, wordParams)
		return contract.ValidateTranscriptionVariants("transcription", v)
	})
	if err != nil {
		return Result{}, err
	}

	// --- Translated ---
	var tr domain.Translation
	if policy.translate {
		tr, err = runStage(ctx, o, log, "translate", func(ctx context.Context) (domain.Translation, error) {
			return translate.Translate(ctx, o.llm, variants.Phrases, cfg.Translation, log)
		})
		if err != nil {
			return Result{}, err
		}
	} else {
		tr = domain.Translation{FullText: "", Chunks: []domain.TranslationChunk{}}
	}

	if cfg.Mode == ModeTranscriptionOnly {
		return o.finishTranscriptionOnly(safeID, ext, variants, durationSeconds, start, cfg, log, &succeeded)
	}

	// --- Analyzed ---
	an, err := runStage(ctx, o, log, "analyze", func(ctx context.Context) (domain.Analysis, error) {
		return analysis.Analyze(ctx, o.llm, variants.FullText, cfg.VideoTopics, log)
	})
	if err != nil {
		return Result{}, err
	}

	// --- ExercisesGenerated ---
	var exercises []domain.Exercise
	if policy.exercises {
		exercises, err = runStage(ctx, o, log, "generate_exercises", func(ctx context.Context) ([]domain.Exercise, error) {
			return exercise.Generate(ctx, o.llm, variants.FullText, an, log)
		})
		if err != nil {
			return Result{}, err
		}
	} else {
		exercises = []domain.Exercise{}
	}

	// --- AudioNormalized ---
	normalizedPath, err := runStage(ctx, o, log, "normalize_audio", func(ctx context.Context) (string, error) {
		return o.media.NormalizeAudio(ctx, sourcePath, tempDir, cfg.AudioNormalization, cfg.VideoCompression)
	})
	if err != nil {
		return Result{}, err
	}

	// --- Renamed ---
	targetPath := filepath.Join(tempDir, safeID+"."+ext)
	if _, err := runStage(ctx, o, log, "rename", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, renameOrCopy(normalizedPath, targetPath)
	}); err != nil {
		return Result{}, err
	}

	// --- Packaged + Uploaded ---
	videoURL, err := o.packageAndUpload(ctx, log, tempDir, targetPath, safeID, ext, cfg)
	if err != nil {
		return Result{}, err
	}

	pv := domain.ProcessedVideo{
		VideoName:            safeID + "." + ext,
		VideoURL:             videoURL,
		DurationSeconds:      durationSeconds,
		Transcription:        variants,
		Translation:          tr,
		Analysis:             an,
		Exercises:            exercises,
		IsAdultContent:       an.IsAdultContent,
		SourceLanguage:       cfg.Transcription.Language,
		TargetLanguage:       cfg.Translation.TargetLanguageName,
		ProcessingDurationMs: time.Since(start).Milliseconds(),
	}

	// --- validate composite (before Persisted) ---
	pv, err = runStage(ctx, o, log, "validate_composite", func(ctx context.Context) (domain.ProcessedVideo, error) {
		return contract.ValidateProcessedVideo(pv, cfg.VideoTopics)
	})
	if err != nil {
		return Result{}, err
	}

	// --- Persisted ---
	if policy.persist {
		if _, err := runStage(ctx, o, log, "persist", func(ctx context.Context) (int64, error) {
			return o.db.Insert(ctx, pv)
		}); err != nil {
			return Result{}, err
		}
	}

	jsonPath, err := writeJSON(cfg.OutputDir, safeID, pv)
	if err != nil {
		return Result{}, ingesterr.Storage(err)
	}

	succeeded = true
	log.Info("video processing done", "durationMs", time.Since(start).Milliseconds())
	return Result{SafeID: safeID, ProcessedVideo: pv, JSONPath: jsonPath}, nil
}

func (o *Orchestrator) finishTranscriptionOnly(safeID, ext string, variants domain.TranscriptionVariants, durationSeconds *int, start time.Time, cfg RunConfig, log *obs.Logger, succeeded *bool) (Result, error) {
	pv := domain.ProcessedVideo{
		VideoName:            safeID + "." + ext,
		DurationSeconds:      durationSeconds,
		Transcription:        variants,
		Translation:          domain.Translation{FullText: "", Chunks: []domain.TranslationChunk{}},
		Exercises:            []domain.Exercise{},
		SourceLanguage:       cfg.Transcription.Language,
		ProcessingDurationMs: time.Since(start).Milliseconds(),
	}
	jsonPath, err := writeJSON(cfg.OutputDir, safeID, variants)
	if err != nil {
		return Result{}, ingesterr.Storage(err)
	}
	*succeeded = true
	log.Info("transcription-only run done", "durationMs", time.Since(start).Milliseconds())
	return Result{SafeID: safeID, ProcessedVideo: pv, JSONPath: jsonPath}, nil
}

// packageAndUpload attempts HLS encode + tree upload when enabled, falling
// back to a plain file upload on any HLS-stage failure — the only stage in
// the graph whose failure degrades instead of aborting the video.
func (o *Orchestrator) packageAndUpload(ctx context.Context, log *obs.Logger, tempDir, targetPath, safeID, ext string, cfg RunConfig) (string, error) {
	if cfg.HLS.Enabled {
		hlsDir := filepath.Join(tempDir, "hls")
		hlsResult, err := runStage(ctx, o, log, "package_hls", func(ctx context.Context) (media.HLSResult, error) {
			return o.media.EncodeHLS(ctx, targetPath, hlsDir, safeID, cfg.HLS)
		})
		if err == nil {
			url, uploadErr := runStage(ctx, o, log, "upload_hls", func(ctx context.Context) (string, error) {
				return o.output.UploadTree(ctx, hlsDir, cfg.UploadPrefix, safeID, hlsResult.MasterPlaylistName)
			})
			if uploadErr == nil {
				return url, nil
			}
		}
	}

	url, err := runStage(ctx, o, log, "upload_mp4", func(ctx context.Context) (string, error) {
		return o.output.UploadFile(ctx, targetPath, cfg.UploadPrefix, safeID+"."+ext)
	})
	if err != nil {
		return "", ingesterr.Storage(fmt.Errorf("fallback mp4 upload: %w", err))
	}
	return url, nil
}

// renameOrCopy makes dst's basename the final name for src, falling back to
// copy+unlink when the rename fails (typically EXDEV, a cross-device move).
func renameOrCopy(src, dst string) error {
	if src == dst {
		return nil
	}
	if err := os.Rename(src, dst); err != nil {
		if copyErr := copyThenUnlink(src, dst); copyErr != nil {
			return ingesterr.MediaTool(fmt.Errorf("rename %s -> %s: %w (copy fallback: %v)", src, dst, err, copyErr))
		}
	}
	return nil
}

func copyThenUnlink(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return os.Remove(src)
}

func writeJSON(outputDir, safeID string, v interface{}) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir output dir: %w", err)
	}
	path := filepath.Join(outputDir, safeID+".json")
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json output: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write json output: %w", err)
	}
	return path, nil
}

// newSafeID generates a 16-character alphanumeric identifier used as both
// the upload basename and the JSON output filename: a v4 UUID with its
// hyphens stripped, truncated to 16 characters.
func newSafeID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", "")[:16], nil
}
