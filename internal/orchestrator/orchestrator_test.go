package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"unicode"

	"github.com/yungbote/video-ingestor/internal/config"
	"github.com/yungbote/video-ingestor/internal/domain"
	"github.com/yungbote/video-ingestor/internal/media"
	"github.com/yungbote/video-ingestor/internal/obs"
	"github.com/yungbote/video-ingestor/internal/transcribe"
)

func testLogger(t *testing.T) *obs.Logger {
	t.Helper()
	log, err := obs.New("development")
	if err != nil {
		t.Fatalf("obs.New: %v", err)
	}
	return log
}

type fakeMedia struct {
	audioPath   string
	duration    *int
	normalized  string
	encodeHLSFn func(outputDir string) (media.HLSResult, error)
}

func (f *fakeMedia) AssertReady(ctx context.Context) error { return nil }

func (f *fakeMedia) ExtractAudio(ctx context.Context, videoPath, tempDir string) (string, *int, error) {
	p := filepath.Join(tempDir, "audio.wav")
	if err := os.WriteFile(p, []byte("wav"), 0o644); err != nil {
		return "", nil, err
	}
	return p, f.duration, nil
}

func (f *fakeMedia) NormalizeAudio(ctx context.Context, videoPath, tempDir string, norm config.AudioNormalizationConfig, comp config.VideoCompressionConfig) (string, error) {
	p := filepath.Join(tempDir, "normalized.mp4")
	if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func (f *fakeMedia) EncodeHLS(ctx context.Context, inputPath, outputDir, baseName string, hls config.HLSConfig) (media.HLSResult, error) {
	if f.encodeHLSFn != nil {
		return f.encodeHLSFn(outputDir)
	}
	return media.HLSResult{}, nil
}

type fakeEngine struct {
	result transcribe.Result
	err    error
}

func (f *fakeEngine) Transcribe(ctx context.Context, wavPath, languageCode string) (transcribe.Result, error) {
	return f.result, f.err
}

type fakeUploader struct {
	uploadFileCalls int
	uploadTreeCalls int
	uploadFileErr   error
	uploadTreeErr   error
}

func (f *fakeUploader) UploadFile(ctx context.Context, localPath, prefix, targetName string) (string, error) {
	f.uploadFileCalls++
	if f.uploadFileErr != nil {
		return "", f.uploadFileErr
	}
	return "https://cdn.example.com/" + prefix + "/" + targetName, nil
}

func (f *fakeUploader) UploadTree(ctx context.Context, localDir, prefix, baseName, entryFile string) (string, error) {
	f.uploadTreeCalls++
	if f.uploadTreeErr != nil {
		return "", f.uploadTreeErr
	}
	return "https://cdn.example.com/" + prefix + "/" + baseName + "/" + entryFile, nil
}

type fakePersister struct {
	inserted bool
	id       int64
}

func (f *fakePersister) Insert(ctx context.Context, pv domain.ProcessedVideo) (int64, error) {
	f.inserted = true
	return f.id, nil
}

func sampleWords() []domain.WordEntry {
	texts := []string{"Hello", "there", "friend", "this", "is", "a", "test", "sentence."}
	var words []domain.WordEntry
	t := 0.0
	for _, txt := range texts {
		words = append(words, domain.WordEntry{Text: txt, Start: t, End: t + 0.4})
		t += 0.5
	}
	return words
}

func TestProcessVideo_TranscriptionOnly_SkipsDownstreamStages(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "source.mp4")
	if err := os.WriteFile(sourcePath, []byte("source"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	fm := &fakeMedia{}
	fe := &fakeEngine{result: transcribe.Result{FullText: "Hello there friend this is a test sentence.", Words: sampleWords()}}
	fu := &fakeUploader{}
	fp := &fakePersister{}

	o := New(fm, fe, nil, fu, fp, testLogger(t))

	outDir := filepath.Join(dir, "out")
	cfg := RunConfig{
		Mode:          ModeTranscriptionOnly,
		Transcription: config.TranscriptionConfig{Language: "en", PhraseMinWords: 5, PhraseMaxWords: 9, PhraseMinDurationSeconds: 1.0, PhraseMaxDurationSeconds: 4.5, WordMinWords: 1, WordMaxWords: 1, MaxGapBetweenWordChunksSeconds: 1.5},
		OutputDir:     outDir,
	}

	res, err := o.ProcessVideo(context.Background(), sourcePath, ".mp4", cfg)
	if err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}

	if fu.uploadFileCalls != 0 || fu.uploadTreeCalls != 0 {
		t.Errorf("expected no uploads in transcription-only mode, got uploadFile=%d uploadTree=%d", fu.uploadFileCalls, fu.uploadTreeCalls)
	}
	if fp.inserted {
		t.Error("expected no db insert in transcription-only mode")
	}
	if _, err := os.Stat(res.JSONPath); err != nil {
		t.Errorf("expected json output at %s: %v", res.JSONPath, err)
	}
	if _, err := os.Stat(sourcePath); !os.IsNotExist(err) {
		t.Errorf("expected source video deleted after success, stat err: %v", err)
	}
	if len(res.ProcessedVideo.Transcription.Phrases.Chunks) == 0 {
		t.Error("expected non-empty phrase chunks")
	}
}

func TestProcessVideo_FatalErrorPreservesSourceVideo(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "source.mp4")
	if err := os.WriteFile(sourcePath, []byte("source"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	fm := &fakeMedia{}
	fe := &fakeEngine{err: errUnrelatedEncodeFailure}
	o := New(fm, fe, nil, &fakeUploader{}, &fakePersister{}, testLogger(t))

	cfg := RunConfig{
		Mode:          ModeTranscriptionOnly,
		Transcription: config.TranscriptionConfig{Language: "en"},
		OutputDir:     filepath.Join(dir, "out"),
	}

	_, err := o.ProcessVideo(context.Background(), sourcePath, ".mp4", cfg)
	if err == nil {
		t.Fatal("expected a fatal error from transcription failure")
	}
	if _, statErr := os.Stat(sourcePath); statErr != nil {
		t.Errorf("expected source video preserved on failure: %v", statErr)
	}
}

func TestPackageAndUpload_HLSFailureFallsBackToMP4(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "abc123.mp4")
	if err := os.WriteFile(targetPath, []byte("video"), 0o644); err != nil {
		t.Fatalf("write target: %v", err)
	}

	fm := &fakeMedia{encodeHLSFn: func(outputDir string) (media.HLSResult, error) {
		return media.HLSResult{}, errUnrelatedEncodeFailure
	}}
	fu := &fakeUploader{}
	o := New(fm, &fakeEngine{}, nil, fu, &fakePersister{}, testLogger(t))

	cfg := RunConfig{HLS: config.HLSConfig{Enabled: true}, UploadPrefix: "videos"}
	url, err := o.packageAndUpload(context.Background(), o.log, dir, targetPath, "abc123", "mp4", cfg)
	if err != nil {
		t.Fatalf("packageAndUpload: %v", err)
	}
	if fu.uploadTreeCalls != 0 {
		t.Errorf("expected no tree upload after hls failure, got %d", fu.uploadTreeCalls)
	}
	if fu.uploadFileCalls != 1 {
		t.Errorf("expected exactly one mp4 fallback upload, got %d", fu.uploadFileCalls)
	}
	if url == "" {
		t.Error("expected non-empty fallback url")
	}
}

func TestPackageAndUpload_HLSSuccessUploadsTree(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "abc123.mp4")
	if err := os.WriteFile(targetPath, []byte("video"), 0o644); err != nil {
		t.Fatalf("write target: %v", err)
	}

	fm := &fakeMedia{encodeHLSFn: func(outputDir string) (media.HLSResult, error) {
		return media.HLSResult{OutputDir: outputDir, MasterPlaylistName: "master.m3u8", Renditions: []string{"abc123_720p.m3u8"}}, nil
	}}
	fu := &fakeUploader{}
	o := New(fm, &fakeEngine{}, nil, fu, &fakePersister{}, testLogger(t))

	cfg := RunConfig{HLS: config.HLSConfig{Enabled: true}, UploadPrefix: "videos"}
	_, err := o.packageAndUpload(context.Background(), o.log, dir, targetPath, "abc123", "mp4", cfg)
	if err != nil {
		t.Fatalf("packageAndUpload: %v", err)
	}
	if fu.uploadTreeCalls != 1 || fu.uploadFileCalls != 0 {
		t.Errorf("expected exactly one tree upload and no file upload, got tree=%d file=%d", fu.uploadTreeCalls, fu.uploadFileCalls)
	}
}

func TestRenameOrCopy_SamePathIsNoop(t *testing.T) {
	if err := renameOrCopy("/tmp/x", "/tmp/x"); err != nil {
		t.Fatalf("expected no error for same path, got %v", err)
	}
}

func TestRenameOrCopy_MovesFileWithinSameDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	dst := filepath.Join(dir, "dst.mp4")
	if err := os.WriteFile(src, []byte("content"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if err := renameOrCopy(src, dst); err != nil {
		t.Fatalf("renameOrCopy: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("expected src removed after move")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("expected dst present: %v", err)
	}
}

func TestNewSafeID_SixteenAlphanumericChars(t *testing.T) {
	id, err := newSafeID()
	if err != nil {
		t.Fatalf("newSafeID: %v", err)
	}
	if len(id) != 16 {
		t.Fatalf("expected 16 chars, got %d (%q)", len(id), id)
	}
	for _, r := range id {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) {
			t.Errorf("unexpected character %q in safe id %q", r, id)
		}
	}
}

func TestPolicyFor_TranscriptionOnlyDisablesEverything(t *testing.T) {
	p := policyFor(ModeTranscriptionOnly)
	if p.translate || p.analyze || p.exercises || p.persist {
		t.Errorf("expected all stages disabled for transcription-only, got %+v", p)
	}
}

func TestPolicyFor_NoExercisesOnlyDisablesExercises(t *testing.T) {
	p := policyFor(ModeNoExercises)
	if !p.translate || !p.analyze || p.exercises || !p.persist {
		t.Errorf("expected only exercises disabled for no-exercises, got %+v", p)
	}
}

var errUnrelatedEncodeFailure = &encodeErr{"simulated encode failure"}

type encodeErr struct{ msg string }

func (e *encodeErr) Error() string { return e.msg }
