package main

import (
	"testing"

	"github.com/yungbote/video-ingestor/internal/orchestrator"
)

func TestResolveMode_ValidValues(t *testing.T) {
	cases := map[string]orchestrator.Mode{
		"full":               orchestrator.ModeFull,
		"no-exercises":       orchestrator.ModeNoExercises,
		"transcription-only": orchestrator.ModeTranscriptionOnly,
	}
	for raw, want := range cases {
		got, err := resolveMode(raw)
		if err != nil {
			t.Errorf("resolveMode(%q): unexpected error %v", raw, err)
		}
		if got != want {
			t.Errorf("resolveMode(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestResolveMode_RejectsUnknownValue(t *testing.T) {
	if _, err := resolveMode("bogus"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
