// Command ingestor is the process entry point: flag parsing, mode
// selection, signal handling and the exit-code contract. Grounded on the
// teacher's cmd/main.go (env-flag-driven mode booleans, app.New()/Start()/
// Close() lifecycle, select{} block-forever daemon shape), generalized
// from the teacher's RUN_SERVER/RUN_WORKER booleans to this binary's
// -mode/-watch/-once flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/video-ingestor/internal/app"
	"github.com/yungbote/video-ingestor/internal/orchestrator"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to YAML configuration file")
	mode := flag.String("mode", "full", "pipeline mode: full | no-exercises | transcription-only")
	watch := flag.Bool("watch", false, "run the polling driver continuously instead of a single batch pass")
	_ = flag.Bool("once", true, "explicit alias for the default non-watch behavior (deploy-script readability)")
	flag.Parse()

	if envConfig := os.Getenv("INGESTOR_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	runMode, err := resolveMode(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, *configPath, app.Options{Mode: runMode})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		return 1
	}
	defer a.Close()

	if *watch {
		a.Log.Info("starting polling driver", "intervalSeconds", a.Cfg.S3Input.PollingIntervalSeconds, "mode", string(runMode))
		if err := a.RunWatch(ctx); err != nil {
			a.Log.Error("polling driver exited with error", "error", err)
			return 1
		}
		a.Log.Info("polling driver shut down cleanly")
		return 0
	}

	a.Log.Info("running one batch pass", "mode", string(runMode))
	report, err := a.RunBatch(ctx)
	if err != nil {
		a.Log.Error("batch pass failed", "error", err)
		return 1
	}
	a.Log.Info("batch pass complete", "total", report.Total, "completed", report.Completed, "failed", report.Failed)
	return 0
}

func resolveMode(raw string) (orchestrator.Mode, error) {
	switch orchestrator.Mode(raw) {
	case orchestrator.ModeFull, orchestrator.ModeNoExercises, orchestrator.ModeTranscriptionOnly:
		return orchestrator.Mode(raw), nil
	default:
		return "", fmt.Errorf("invalid -mode %q: must be full, no-exercises, or transcription-only", raw)
	}
}
