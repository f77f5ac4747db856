package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/platescan/internal/pipeline"
	"github.com/gorilla/websocket"
)

// progressInterval bounds how often per-frame progress is pushed to a client.
const progressInterval = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketDetectRequest is a detection request over WebSocket. Data is base64 in JSON.
type WebSocketDetectRequest struct {
	Type     string `json:"type"` // "detect"
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// WebSocketDetectResponse is one message of a detection exchange.
type WebSocketDetectResponse struct {
	Type      string          `json:"type"`
	Status    string          `json:"status"` // "processing", "completed", "error"
	Progress  float64         `json:"progress,omitempty"`
	Frame     int             `json:"frame,omitempty"`
	Total     int             `json:"total,omitempty"`
	Result    *DetectResponse `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorType string          `json:"error_type,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// detectWebSocketHandler handles WebSocket connections for detection with progress.
func (s *Server) detectWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r, conn)
}

// handleWebSocketConnection reads requests until the client goes away. Jobs run
// synchronously on this goroutine; a separate goroutine keeps the link alive.
func (s *Server) handleWebSocketConnection(r *http.Request, conn *websocket.Conn) {
	conn.SetReadLimit(s.maxUploadMB*1024*1024*4/3 + 4096)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(r, conn, data)
			// Processing may exceed the read deadline.
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}
}

// handleWebSocketMessage processes one detection request.
func (s *Server) handleWebSocketMessage(r *http.Request, conn WebSocketConnWriter, data []byte) {
	var req WebSocketDetectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.Type != "detect" {
		s.sendWebSocketError(conn, "", "invalid_request", "Unsupported request type: "+req.Type)
		return
	}
	if len(req.Data) == 0 {
		s.sendWebSocketError(conn, "", "invalid_request", "No file data provided")
		return
	}

	requestID := strconv.FormatInt(time.Now().UnixNano(), 10)
	s.sendWebSocketResponse(conn, WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "processing",
		RequestID: requestID,
	})

	progress := pipeline.NewThrottledProgressCallback(&wsProgress{
		server:    s,
		conn:      conn,
		requestID: requestID,
	}, progressInterval)

	resp, err := s.runDetection(r.Context(), req.Filename, bytes.NewReader(req.Data), progress)
	if err != nil {
		errType := "processing_error"
		if statusOf(err) == http.StatusUnsupportedMediaType {
			errType = "unsupported_type"
		}
		s.sendWebSocketError(conn, requestID, errType, err.Error())
		return
	}

	s.sendWebSocketResponse(conn, WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "completed",
		Progress:  1.0,
		Result:    resp,
		RequestID: requestID,
	})
}

// wsProgress forwards frame progress as "processing" messages.
type wsProgress struct {
	server    *Server
	conn      WebSocketConnWriter
	requestID string
}

func (p *wsProgress) OnStart(total int) {}

func (p *wsProgress) OnProgress(current, total int) {
	p.server.sendWebSocketResponse(p.conn, WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "processing",
		Progress:  pipeline.Fraction(current, total),
		Frame:     current,
		Total:     total,
		RequestID: p.requestID,
	})
}

func (p *wsProgress) OnComplete() {}

func (p *wsProgress) OnError(current int, err error) {}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketDetectResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketDetectResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
