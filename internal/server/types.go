package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MeKo-Tech/pocrop/internal/editor"
	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/MeKo-Tech/pocrop/internal/perspective"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	editorCfg   editor.Config
	spec        perspective.Spec
	render      measurement.RenderOptions
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*wsSession
	closed   bool
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	MaxSessions int

	Editor      editor.Config
	Perspective perspective.Spec
	Render      measurement.RenderOptions
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Time     string `json:"time"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DetectResponse is returned by /detect. Coordinates are image pixels.
type DetectResponse struct {
	Success    bool               `json:"success"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Clusters   [][]geometry.Point `json:"clusters"`
	Centroids  []geometry.Point   `json:"centroids"`
	Rectangles []geometry.Quad    `json:"rectangles"`
	Seed       *geometry.Quad     `json:"seed,omitempty"`
	Processing struct {
		DetectionTimeMs int64 `json:"detection_time_ms"`
	} `json:"processing"`
}

// MeasureResponse is returned by /measure for JSON requests.
type MeasureResponse struct {
	Success bool                         `json:"success"`
	Record  measurement.CollectionRecord `json:"record"`
	Labels  []string                     `json:"labels"`
}

// NewServer creates a new server instance.
func NewServer(config Config) (*Server, error) {
	if err := config.Editor.Corners.Validate(); err != nil {
		return nil, fmt.Errorf("invalid corner configuration: %w", err)
	}
	if _, err := config.Perspective.Value(); err != nil {
		return nil, err
	}
	if config.MaxUploadMB <= 0 {
		return nil, errors.New("max upload size must be positive")
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 30
	}
	if config.MaxSessions <= 0 {
		config.MaxSessions = 16
	}

	return &Server{
		editorCfg:   config.Editor,
		spec:        config.Perspective,
		render:      config.Render,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		maxSessions: config.MaxSessions,
		sessions:    make(map[string]*wsSession),
	}, nil
}

// Close ends every interactive session and releases its files.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	open := make([]*wsSession, 0, len(s.sessions))
	for _, ws := range s.sessions {
		open = append(open, ws)
	}
	s.sessions = make(map[string]*wsSession)
	s.mu.Unlock()

	for _, ws := range open {
		ws.close()
	}
	activeSessions.Set(0)
	if len(open) > 0 {
		slog.Info("Closed interactive sessions", "count", len(open))
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/detect", s.corsMiddleware(s.detectHandler))
	mux.HandleFunc("/correct", s.corsMiddleware(s.correctHandler))
	mux.HandleFunc("/measure", s.corsMiddleware(s.measureHandler))
	mux.HandleFunc("/ws", s.sessionWebSocketHandler)
}

func (s *Server) timeout() time.Duration {
	return time.Duration(s.timeoutSec) * time.Second
}

func (s *Server) maxUploadBytes() int64 {
	return s.maxUploadMB * 1024 * 1024
}

// DefaultConfig returns server defaults.
func DefaultConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        8080,
		CORSOrigin:  "*",
		MaxUploadMB: 50,
		TimeoutSec:  30,
		MaxSessions: 16,
		Editor:      editor.DefaultConfig(),
		Perspective: perspective.Spec{Ratio: perspective.A4Portrait},
		Render:      measurement.DefaultRenderOptions(),
	}
}
