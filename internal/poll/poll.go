// Package poll implements C9: the batch and polling drivers over the
// ListPending/MoveToProcessing/.../MoveToCompleted|Failed lifecycle around
// one orchestrator run per video. Mode selection and the block-forever
// daemon shape are grounded on the teacher's cmd/main.go; the
// non-overlapping-cycle guard generalizes the concept in the teacher's
// internal/jobs/orchestrator/engine.go run loop to spec's drop-not-queue
// polling rule.
package poll

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/video-ingestor/internal/domain"
	"github.com/yungbote/video-ingestor/internal/obs"
	"github.com/yungbote/video-ingestor/internal/orchestrator"
)

// Ingest is the subset of store.Ingest the driver needs.
type Ingest interface {
	ListPending(ctx context.Context) ([]domain.PendingObject, error)
	MoveToProcessing(ctx context.Context, key string) string
	Download(ctx context.Context, key, localDir string) (string, int64, error)
	MoveToCompleted(ctx context.Context, key string)
	MoveToFailed(ctx context.Context, key string)
}

// VideoProcessor is the subset of *orchestrator.Orchestrator the driver
// needs, narrowed to an interface for test substitution.
type VideoProcessor interface {
	ProcessVideo(ctx context.Context, sourcePath, sourceExt string, cfg orchestrator.RunConfig) (orchestrator.Result, error)
}

// RunConfigFunc builds the per-video RunConfig. It is a function rather
// than a fixed value because §9's resolved Open Question requires handing
// each run its own copy of the transcription sub-config.
type RunConfigFunc func() orchestrator.RunConfig

// Outcome is one video's batch-pass result.
type Outcome struct {
	Key      string
	SafeID   string
	Error    error
	Duration time.Duration
}

// Report summarizes one pass over ListPending.
type Report struct {
	Total     int
	Completed int
	Failed    int
	Outcomes  []Outcome
}

// Recorder is notified of cycle/video progress so C11's /status endpoint
// can reflect it without this package depending on httpapi.
type Recorder interface {
	BeginVideo(safeID string)
	EndVideo(succeeded bool)
	RecordCycleDuration(d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) BeginVideo(string)                 {}
func (noopRecorder) EndVideo(bool)                     {}
func (noopRecorder) RecordCycleDuration(time.Duration) {}

type Driver struct {
	ingest       Ingest
	processor    VideoProcessor
	buildRunCfg  RunConfigFunc
	pollInterval time.Duration
	log          *obs.Logger
	recorder     Recorder

	group    singleflight.Group
	inFlight atomic.Bool
}

func New(ingest Ingest, processor VideoProcessor, buildRunCfg RunConfigFunc, pollInterval time.Duration, log *obs.Logger) *Driver {
	return &Driver{
		ingest:       ingest,
		processor:    processor,
		buildRunCfg:  buildRunCfg,
		pollInterval: pollInterval,
		log:          log.With("service", "poll.Driver"),
		recorder:     noopRecorder{},
	}
}

// SetRecorder wires a status recorder (e.g. httpapi.CycleState) after
// construction, so C11 and C9 stay decoupled at the import level.
func (d *Driver) SetRecorder(r Recorder) {
	if r != nil {
		d.recorder = r
	}
}

// RunBatch runs exactly one pass over ListPending and returns when it
// completes; the caller is done after this returns.
func (d *Driver) RunBatch(ctx context.Context) (Report, error) {
	return d.runOnce(ctx)
}

// RunPolling runs passes every pollInterval until ctx is cancelled
// (interrupt signal), skipping a tick if the previous cycle has not
// finished rather than queueing it.
func (d *Driver) RunPolling(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.log.Info("polling driver started", "intervalSeconds", int(d.pollInterval.Seconds()))
	for {
		select {
		case <-ctx.Done():
			d.log.Info("polling driver shutting down on context cancellation")
			return nil
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Driver) tick(ctx context.Context) {
	if !d.inFlight.CompareAndSwap(false, true) {
		d.log.Warn("previous polling cycle still running, dropping this tick")
		return
	}
	defer d.inFlight.Store(false)

	_, err, _ := d.group.Do("cycle", func() (interface{}, error) {
		report, err := d.runOnce(ctx)
		if err != nil {
			return nil, err
		}
		d.log.Info("polling cycle finished", "total", report.Total, "completed", report.Completed, "failed", report.Failed)
		return report, nil
	})
	if err != nil {
		d.log.Error("polling cycle failed", "error", err)
	}
}

func (d *Driver) runOnce(ctx context.Context) (Report, error) {
	cycleBegin := time.Now()
	defer func() { d.recorder.RecordCycleDuration(time.Since(cycleBegin)) }()

	pending, err := d.ingest.ListPending(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{Total: len(pending)}
	for _, obj := range pending {
		outcome := d.processOne(ctx, obj)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Error != nil {
			report.Failed++
		} else {
			report.Completed++
		}
	}
	return report, nil
}

func (d *Driver) processOne(ctx context.Context, obj domain.PendingObject) Outcome {
	begin := time.Now()
	log := d.log.With("key", obj.Key)

	processingKey := d.ingest.MoveToProcessing(ctx, obj.Key)

	localDir, err := os.MkdirTemp("", "ingest_download_*")
	if err != nil {
		log.Error("create download dir failed", "error", err)
		d.ingest.MoveToFailed(ctx, processingKey)
		return Outcome{Key: obj.Key, Error: err, Duration: time.Since(begin)}
	}
	defer func() {
		if rmErr := os.RemoveAll(localDir); rmErr != nil {
			log.Warn("cleanup of download dir failed", "path", localDir, "error", rmErr)
		}
	}()

	localPath, _, err := d.ingest.Download(ctx, processingKey, localDir)
	if err != nil {
		log.Error("download failed", "error", err)
		d.ingest.MoveToFailed(ctx, processingKey)
		return Outcome{Key: obj.Key, Error: err, Duration: time.Since(begin)}
	}

	ext := strings.TrimPrefix(filepath.Ext(obj.Name), ".")
	runCfg := d.buildRunCfg()
	d.recorder.BeginVideo(obj.Key)
	result, err := d.processor.ProcessVideo(ctx, localPath, ext, runCfg)
	if err != nil {
		d.recorder.EndVideo(false)
		log.Error("video processing failed", "error", err, "durationMs", time.Since(begin).Milliseconds())
		d.ingest.MoveToFailed(ctx, processingKey)
		return Outcome{Key: obj.Key, Error: err, Duration: time.Since(begin)}
	}

	d.recorder.EndVideo(true)
	d.ingest.MoveToCompleted(ctx, processingKey)
	log.Info("video processed", "safeId", result.SafeID, "durationMs", time.Since(begin).Milliseconds())
	return Outcome{Key: obj.Key, SafeID: result.SafeID, Duration: time.Since(begin)}
}
