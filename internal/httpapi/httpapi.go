// Package httpapi implements C11: the read-only health/status surface
// exposed only while the polling driver runs in watch mode. Grounded on
// the teacher's internal/server router (gin + gin-contrib/cors, a plain
// GET /healthcheck route) generalized from a request-serving API to a
// liveness/status surface for a work-consuming daemon.
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/video-ingestor/internal/obs"
)

// CycleState is read by /status; the poll driver updates it via Recorder
// as each video begins and ends and when each pass finishes.
type CycleState struct {
	mu                sync.RWMutex
	processing        bool
	currentVideoID    string
	videosCompleted   int
	videosFailed      int
	lastCycleDuration time.Duration
}

func NewCycleState() *CycleState { return &CycleState{} }

func (s *CycleState) BeginVideo(safeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = true
	s.currentVideoID = safeID
}

func (s *CycleState) EndVideo(succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
	s.currentVideoID = ""
	if succeeded {
		s.videosCompleted++
	} else {
		s.videosFailed++
	}
}

func (s *CycleState) RecordCycleDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycleDuration = d
}

func (s *CycleState) snapshot() statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := "idle"
	if s.processing {
		state = "processing"
	}
	return statusResponse{
		State:                 state,
		CurrentVideoID:        s.currentVideoID,
		VideosCompleted:       s.videosCompleted,
		VideosFailed:          s.videosFailed,
		LastCycleDurationMs:   s.lastCycleDuration.Milliseconds(),
	}
}

type statusResponse struct {
	State               string `json:"state"`
	CurrentVideoID      string `json:"currentVideoId,omitempty"`
	VideosCompleted     int    `json:"videosCompleted"`
	VideosFailed        int    `json:"videosFailed"`
	LastCycleDurationMs int64  `json:"lastCycleDurationMs"`
}

// NewRouter builds the gin engine serving /healthz, /status and /metrics.
// metricsHandler is the OpenTelemetry Prometheus exporter's http.Handler;
// it is accepted as a parameter so this package never imports a specific
// metrics SDK binding directly.
func NewRouter(log *obs.Logger, state *CycleState, metricsHandler http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("video-ingestor"))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, state.snapshot())
	})

	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	return router
}
