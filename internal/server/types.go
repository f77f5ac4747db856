package server

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/MeKo-Tech/platescan/internal/annotate"
	"github.com/MeKo-Tech/platescan/internal/media"
	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// mediaPipeline defines the methods needed by the server from a pipeline.
type mediaPipeline interface {
	ProcessImage(img image.Image) (*pipeline.ImageResult, error)
	ProcessVideo(ctx context.Context, path string, progress pipeline.ProgressCallback) (*pipeline.VideoResult, error)
	TempStore() *media.TempStore
	DetectorErr() error
	RecognizerErr() error
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    mediaPipeline
	corsOrigin  string
	maxUploadMB int64
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string          `json:"status"`
	Version    string          `json:"version,omitempty"`
	Time       string          `json:"time"`
	Detector   ComponentStatus `json:"detector"`
	Recognizer ComponentStatus `json:"recognizer"`
}

// ComponentStatus reports whether a model-backed component can be used.
type ComponentStatus struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// MediaPayload carries the annotated output. Data is base64 in JSON.
type MediaPayload struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// DetectResponse is the JSON result of one upload.
type DetectResponse struct {
	Success     bool                `json:"success"`
	Kind        string              `json:"kind,omitempty"`
	Plates      []annotate.Plate    `json:"plates"`
	Frames      int                 `json:"frames,omitempty"`
	FrameErrors int                 `json:"frame_errors,omitempty"`
	Truncated   bool                `json:"truncated,omitempty"`
	Video       *pipeline.VideoInfo `json:"video,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
	Media       *MediaPayload       `json:"media,omitempty"`
	Error       string              `json:"error,omitempty"`
	Processing  struct {
		TotalMs int64 `json:"total_ms"`
	} `json:"processing"`
}

// NewServer creates a server around an already built pipeline. The pipeline is
// shared by all requests.
func NewServer(config Config, p mediaPipeline) *Server {
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 200
	}
	return &Server{
		pipeline:    p,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: maxUpload,
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.instrument("/", s.indexHandler))
	mux.HandleFunc("/health", s.instrument("/health", s.corsMiddleware(s.healthHandler)))
	mux.HandleFunc("/api/detect", s.instrument("/api/detect", s.corsMiddleware(s.detectHandler)))
	mux.HandleFunc("/ws", s.detectWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// HTTPServer returns an http.Server for config serving this server's routes.
func (s *Server) HTTPServer(config Config) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(config.TimeoutSec) * time.Second,
		// No WriteTimeout: video jobs run synchronously inside the handler.
	}
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return loggingMiddleware(mux)
}
