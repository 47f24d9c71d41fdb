package poll

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/video-ingestor/internal/config"
	"github.com/yungbote/video-ingestor/internal/domain"
	"github.com/yungbote/video-ingestor/internal/obs"
	"github.com/yungbote/video-ingestor/internal/orchestrator"
)

func testLogger(t *testing.T) *obs.Logger {
	t.Helper()
	log, err := obs.New("development")
	if err != nil {
		t.Fatalf("obs.New: %v", err)
	}
	return log
}

type fakeIngest struct {
	pending      []domain.PendingObject
	downloadDir  string
	failDownload bool
	moved        map[string]string // key -> "processing"|"completed"|"failed"
}

func newFakeIngest(pending []domain.PendingObject) *fakeIngest {
	return &fakeIngest{pending: pending, moved: map[string]string{}}
}

func (f *fakeIngest) ListPending(ctx context.Context) ([]domain.PendingObject, error) {
	return f.pending, nil
}

func (f *fakeIngest) MoveToProcessing(ctx context.Context, key string) string {
	f.moved[key] = "processing"
	return key
}

func (f *fakeIngest) Download(ctx context.Context, key, localDir string) (string, int64, error) {
	if f.failDownload {
		return "", 0, errors.New("simulated download failure")
	}
	p := filepath.Join(localDir, filepath.Base(key))
	if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
		return "", 0, err
	}
	return p, 5, nil
}

func (f *fakeIngest) MoveToCompleted(ctx context.Context, key string) { f.moved[key] = "completed" }
func (f *fakeIngest) MoveToFailed(ctx context.Context, key string)    { f.moved[key] = "failed" }

type fakeProcessor struct {
	fail       bool
	calls      int32
	blockUntil chan struct{} // if non-nil, ProcessVideo blocks until this closes
}

func (f *fakeProcessor) ProcessVideo(ctx context.Context, sourcePath, sourceExt string, cfg orchestrator.RunConfig) (orchestrator.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.blockUntil != nil {
		<-f.blockUntil
	}
	if f.fail {
		return orchestrator.Result{}, errors.New("simulated processing failure")
	}
	return orchestrator.Result{SafeID: "abc1234567890123"}, nil
}

func buildRunCfg() orchestrator.RunConfig {
	return orchestrator.RunConfig{Mode: orchestrator.ModeFull, Transcription: config.TranscriptionConfig{Language: "en"}}
}

func TestRunBatch_AllSucceed(t *testing.T) {
	pending := []domain.PendingObject{{Key: "pending/a.mp4", Name: "a.mp4"}, {Key: "pending/b.mp4", Name: "b.mp4"}}
	ing := newFakeIngest(pending)
	proc := &fakeProcessor{}
	d := New(ing, proc, buildRunCfg, time.Second, testLogger(t))

	report, err := d.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Total != 2 || report.Completed != 2 || report.Failed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if ing.moved["pending/a.mp4"] != "completed" || ing.moved["pending/b.mp4"] != "completed" {
		t.Errorf("expected both keys moved to completed, got %v", ing.moved)
	}
}

func TestRunBatch_ProcessingFailureRoutesToFailed(t *testing.T) {
	pending := []domain.PendingObject{{Key: "pending/bad.mp4", Name: "bad.mp4"}}
	ing := newFakeIngest(pending)
	proc := &fakeProcessor{fail: true}
	d := New(ing, proc, buildRunCfg, time.Second, testLogger(t))

	report, err := d.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Failed != 1 || report.Completed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if ing.moved["pending/bad.mp4"] != "failed" {
		t.Errorf("expected key moved to failed, got %v", ing.moved)
	}
}

func TestRunBatch_DownloadFailureRoutesToFailed(t *testing.T) {
	pending := []domain.PendingObject{{Key: "pending/bad.mp4", Name: "bad.mp4"}}
	ing := newFakeIngest(pending)
	ing.failDownload = true
	proc := &fakeProcessor{}
	d := New(ing, proc, buildRunCfg, time.Second, testLogger(t))

	report, err := d.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("expected one failure, got %+v", report)
	}
	if proc.calls != 0 {
		t.Errorf("expected processor never invoked after download failure, got %d calls", proc.calls)
	}
}

func TestRunBatch_DownloadDirAlwaysCleanedUp(t *testing.T) {
	pending := []domain.PendingObject{{Key: "pending/a.mp4", Name: "a.mp4"}}
	ing := newFakeIngest(pending)
	proc := &fakeProcessor{}

	var captured string
	d2 := New(&capturingIngest{fakeIngest: ing, captured: &captured}, proc, buildRunCfg, time.Second, testLogger(t))

	if _, err := d2.RunBatch(context.Background()); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if captured == "" {
		t.Fatal("expected download dir to be captured")
	}
	if _, err := os.Stat(captured); !os.IsNotExist(err) {
		t.Errorf("expected download dir removed after processing, stat err: %v", err)
	}
}

type capturingIngest struct {
	*fakeIngest
	captured *string
}

func (c *capturingIngest) Download(ctx context.Context, key, localDir string) (string, int64, error) {
	*c.captured = localDir
	return c.fakeIngest.Download(ctx, key, localDir)
}

func TestTick_DropsOverlappingCycle(t *testing.T) {
	pending := []domain.PendingObject{{Key: "pending/a.mp4", Name: "a.mp4"}}
	ing := newFakeIngest(pending)
	block := make(chan struct{})
	proc := &fakeProcessor{blockUntil: block}
	d := New(ing, proc, buildRunCfg, time.Second, testLogger(t))

	done := make(chan struct{})
	go func() {
		d.tick(context.Background())
		close(done)
	}()

	// Wait until the first tick has entered processing.
	for atomic.LoadInt32(&proc.calls) == 0 {
		time.Sleep(time.Millisecond)
	}

	// A second tick arriving now must be dropped, not queued.
	d.tick(context.Background())
	if calls := atomic.LoadInt32(&proc.calls); calls != 1 {
		t.Errorf("expected overlapping tick to be dropped, processor called %d times", calls)
	}

	close(block)
	<-done
}

func TestRunPolling_StopsOnContextCancellation(t *testing.T) {
	ing := newFakeIngest(nil)
	proc := &fakeProcessor{}
	d := New(ing, proc, buildRunCfg, 10*time.Millisecond, testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := d.RunPolling(ctx)
	if err != nil {
		t.Fatalf("RunPolling: %v", err)
	}
}
