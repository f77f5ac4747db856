package server

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/platescan/internal/version"
)

const formatRaw = "raw"

//go:embed static/index.html
var indexHTML []byte

// indexHandler serves the single page UI.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// healthHandler returns server health and model availability. A missing model
// degrades the status but the endpoint still answers 200.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.String(),
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.pipeline == nil {
		response.Status = "unavailable"
	} else {
		response.Detector = componentStatus(s.pipeline.DetectorErr(), "model unavailable")
		response.Recognizer = componentStatus(s.pipeline.RecognizerErr(), "ocr unavailable")
		if !response.Detector.Available || !response.Recognizer.Available {
			response.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func componentStatus(err error, prefix string) ComponentStatus {
	if err == nil {
		return ComponentStatus{Available: true}
	}
	return ComponentStatus{Error: prefix + ": " + err.Error()}
}

// detectHandler accepts one multipart upload in the "file" field. The body is
// streamed part by part so rejected uploads are never buffered to disk.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeErrorResponse(w, "Expected multipart form data", http.StatusBadRequest)
		return
	}

	format := r.URL.Query().Get("format")
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeErrorResponse(w, "No file provided", http.StatusBadRequest)
			return
		}
		if err != nil {
			s.writeErrorResponse(w, readError(err).Error(), statusOf(readError(err)))
			return
		}

		switch part.FormName() {
		case "format":
			value, _ := io.ReadAll(io.LimitReader(part, 16))
			format = string(value)
		case "file":
			resp, err := s.runDetection(r.Context(), part.FileName(), part, nil)
			_ = part.Close()
			if err != nil {
				slog.Warn("Detection request failed", "filename", part.FileName(), "error", err)
				s.writeErrorResponse(w, err.Error(), statusOf(err))
				return
			}
			s.writeDetectResponse(w, resp, format)
			return
		}
		_ = part.Close()
	}
}

func (s *Server) writeDetectResponse(w http.ResponseWriter, resp *DetectResponse, format string) {
	for _, warn := range resp.Warnings {
		w.Header().Add("X-Platescan-Warning", warn)
	}
	if format == formatRaw && resp.Media != nil {
		w.Header().Set("Content-Type", resp.Media.ContentType)
		w.Header().Set("X-Plate-Count", strconv.Itoa(len(resp.Plates)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp.Media.Data)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, DetectResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}
