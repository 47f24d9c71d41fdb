package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yungbote/video-ingestor/internal/obs"
)

func testLogger(t *testing.T) *obs.Logger {
	t.Helper()
	log, err := obs.New("development")
	if err != nil {
		t.Fatalf("obs.New: %v", err)
	}
	return log
}

func TestCycleState_SnapshotReflectsIdleByDefault(t *testing.T) {
	s := NewCycleState()
	snap := s.snapshot()
	if snap.State != "idle" {
		t.Errorf("expected idle state, got %q", snap.State)
	}
}

func TestCycleState_BeginEndVideoTracksCounts(t *testing.T) {
	s := NewCycleState()
	s.BeginVideo("abc123")
	mid := s.snapshot()
	if mid.State != "processing" || mid.CurrentVideoID != "abc123" {
		t.Errorf("unexpected mid-video snapshot: %+v", mid)
	}

	s.EndVideo(true)
	after := s.snapshot()
	if after.State != "idle" || after.CurrentVideoID != "" {
		t.Errorf("expected idle state after EndVideo, got %+v", after)
	}
	if after.VideosCompleted != 1 || after.VideosFailed != 0 {
		t.Errorf("expected one completed, zero failed, got %+v", after)
	}

	s.BeginVideo("def456")
	s.EndVideo(false)
	final := s.snapshot()
	if final.VideosCompleted != 1 || final.VideosFailed != 1 {
		t.Errorf("expected one completed, one failed, got %+v", final)
	}
}

func TestCycleState_RecordCycleDuration(t *testing.T) {
	s := NewCycleState()
	s.RecordCycleDuration(250 * time.Millisecond)
	snap := s.snapshot()
	if snap.LastCycleDurationMs != 250 {
		t.Errorf("expected 250ms, got %d", snap.LastCycleDurationMs)
	}
}

func TestNewRouter_HealthzReturnsOK(t *testing.T) {
	router := NewRouter(testLogger(t), NewCycleState(), nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestNewRouter_StatusReturnsJSON(t *testing.T) {
	state := NewCycleState()
	state.BeginVideo("xyz789")
	router := NewRouter(testLogger(t), state, nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !contains(rec.Body.String(), "xyz789") {
		t.Errorf("expected response to contain current video id, got %s", rec.Body.String())
	}
}

func TestNewRouter_NoMetricsHandlerOmitsRoute(t *testing.T) {
	router := NewRouter(testLogger(t), NewCycleState(), nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when no metrics handler is wired, got %d", rec.Code)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
