// Package app wires every component into a running process: config,
// logger, telemetry, LLM client, object-store (ingest + output),
// transcription engine, media toolchain, persistence, orchestrator and
// poll driver. Grounded on the teacher's New/Start/Close lifecycle shape,
// generalized from the teacher's gorm/Postgres/SSE/gin wiring to this
// domain's collaborators.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/video-ingestor/internal/config"
	"github.com/yungbote/video-ingestor/internal/httpapi"
	"github.com/yungbote/video-ingestor/internal/llm"
	"github.com/yungbote/video-ingestor/internal/media"
	"github.com/yungbote/video-ingestor/internal/obs"
	"github.com/yungbote/video-ingestor/internal/orchestrator"
	"github.com/yungbote/video-ingestor/internal/poll"
	"github.com/yungbote/video-ingestor/internal/store"
	"github.com/yungbote/video-ingestor/internal/store/dbstore"
	"github.com/yungbote/video-ingestor/internal/transcribe"
	"github.com/yungbote/video-ingestor/internal/translate"
)

type App struct {
	Log        *obs.Logger
	Cfg        config.Config
	Telemetry  *obs.Telemetry
	CycleState *httpapi.CycleState
	Driver     *poll.Driver
	db         *dbstore.Store
}

// Options are the CLI-resolved run parameters app.New needs beyond Cfg.
type Options struct {
	Mode orchestrator.Mode
}

func New(ctx context.Context, cfgPath string, opts Options) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := obs.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	telemetry, err := obs.InitTelemetry(ctx, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	llmClient, err := llm.New(ctx, cfg.Google.APIKey, cfg.Google.GeminiModel, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	ingest, err := store.NewIngest(ctx, cfg.S3Input, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init ingest bucket: %w", err)
	}

	output, err := store.NewOutput(ctx, cfg.Storage, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init output bucket: %w", err)
	}

	engine, err := transcribe.NewGoogleSpeechEngine(ctx, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init transcription engine: %w", err)
	}

	db, err := dbstore.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		log.Sync()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	mediaTools := media.New(log)
	if err := mediaTools.AssertReady(ctx); err != nil {
		log.Sync()
		return nil, fmt.Errorf("media toolchain not ready: %w", err)
	}

	orch := orchestrator.New(mediaTools, engine, llmClient, output, db, log)

	mode := opts.Mode
	if mode == "" {
		mode = orchestrator.ModeFull
	}
	buildRunCfg := func() orchestrator.RunConfig {
		return orchestrator.RunConfig{
			Mode:               mode,
			Transcription:      cfg.Transcription.Copy(),
			AudioNormalization: cfg.AudioNormalization,
			VideoCompression:   cfg.VideoCompression,
			HLS:                cfg.HLS,
			Translation:        translateConfigFrom(cfg),
			VideoTopics:        cfg.VideoTopics,
			OutputDir:          "output",
			UploadPrefix:       "videos",
		}
	}

	interval := time.Duration(cfg.S3Input.PollingIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	driver := poll.New(ingest, orch, buildRunCfg, interval, log)
	cycleState := httpapi.NewCycleState()
	driver.SetRecorder(cycleState)

	return &App{
		Log:        log,
		Cfg:        cfg,
		Telemetry:  telemetry,
		CycleState: cycleState,
		Driver:     driver,
		db:         db,
	}, nil
}

func translateConfigFrom(cfg config.Config) translate.Config {
	t := translate.DefaultConfig()
	if cfg.Google.TranslationChunkSize > 0 {
		t.BatchSize = cfg.Google.TranslationChunkSize
	}
	if cfg.Google.TranslationAttempts > 0 {
		t.MaxAttempts = cfg.Google.TranslationAttempts
	}
	return t
}

// RunBatch runs exactly one pass over the pending prefix and returns.
func (a *App) RunBatch(ctx context.Context) (poll.Report, error) {
	return a.Driver.RunBatch(ctx)
}

// RunWatch runs the polling loop, serving the health/status HTTP surface
// alongside it, until ctx is cancelled.
func (a *App) RunWatch(ctx context.Context) error {
	router := httpapi.NewRouter(a.Log, a.CycleState, a.Telemetry.MetricsHandler)
	srv := newHTTPServer(a.Cfg.HTTPAddr, router, a.Log)
	srv.start()
	defer srv.stop(context.Background())

	return a.Driver.RunPolling(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Log.Warn("close database failed", "error", err)
		}
	}
	if a.Telemetry != nil {
		a.Telemetry.Shutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}






