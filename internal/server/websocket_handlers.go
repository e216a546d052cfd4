package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/pocrop/internal/editor"
	"github.com/MeKo-Tech/pocrop/internal/filters"
	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var (
	errNoSession       = errors.New("no image opened in this session")
	errTooManySessions = errors.New("too many open sessions")
	errServerClosed    = errors.New("server is shutting down")
)

// WebSocketRequest is one client command. Which fields are read depends on Type.
type WebSocketRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	// open
	Image        []byte  `json:"image,omitempty"`
	Filename     string  `json:"filename,omitempty"`
	DisplayWidth float64 `json:"display_width,omitempty"`

	// move_corner, calibrate
	Index *int            `json:"index,omitempty"`
	Point *geometry.Point `json:"point,omitempty"`
	Snap  bool            `json:"snap,omitempty"`

	// add_distance (2 points), add_angle (arm, vertex, arm)
	Points []geometry.Point `json:"points,omitempty"`

	// correct
	Ratio        string  `json:"ratio,omitempty"`
	CustomWidth  float64 `json:"custom_width,omitempty"`
	CustomHeight float64 `json:"custom_height,omitempty"`

	// filter
	Filter string `json:"filter,omitempty"`

	// calibrate: "<length> [units]" applied to distance Index or to PixelLength
	Calibration string  `json:"calibration,omitempty"`
	PixelLength float64 `json:"pixel_length,omitempty"`

	// Preview asks for the current image as PNG in the response.
	Preview bool `json:"preview,omitempty"`
}

// WebSocketResponse answers one request.
type WebSocketResponse struct {
	Type      string      `json:"type"`
	Status    string      `json:"status"` // "completed", "error"
	SessionID string      `json:"session_id,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorType string      `json:"error_type,omitempty"`
}

// SessionState describes the image being edited. Quad and display sizes are
// in display coordinates.
type SessionState struct {
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	DisplayWidth  float64        `json:"display_width"`
	DisplayHeight float64        `json:"display_height"`
	Quad          *geometry.Quad `json:"quad,omitempty"`
	CanUndo       bool           `json:"can_undo"`
	CanRedo       bool           `json:"can_redo"`
	Changed       bool           `json:"changed"`
	Preview       []byte         `json:"preview,omitempty"`
}

// DetectResult is the result of a detect command.
type DetectResult struct {
	Quad       geometry.Quad    `json:"quad"`
	Points     []geometry.Point `json:"points"`
	Rectangles []geometry.Quad  `json:"rectangles"`
}

// MeasurementResult is returned by measurement commands.
type MeasurementResult struct {
	Index      int                           `json:"index"`
	Label      string                        `json:"label,omitempty"`
	Calibrated bool                          `json:"calibrated,omitempty"`
	Scale      *measurement.Scale            `json:"scale,omitempty"`
	Record     *measurement.CollectionRecord `json:"record,omitempty"`
	Labels     []string                      `json:"labels,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsSession is the editing state of one connection.
type wsSession struct {
	id     string
	server *Server

	mu     sync.Mutex
	sess   *editor.Session
	upload string
}

// close releases the editor session and the uploaded file.
func (ws *wsSession) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.reset()
}

func (ws *wsSession) reset() {
	if ws.sess != nil {
		ws.sess.Close()
		ws.sess = nil
	}
	if ws.upload != "" {
		if err := os.Remove(ws.upload); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove upload", "path", ws.upload, "error", err)
		}
		ws.upload = ""
	}
}

func (s *Server) newSession() (*wsSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errServerClosed
	}
	if len(s.sessions) >= s.maxSessions {
		return nil, errTooManySessions
	}
	ws := &wsSession{id: uuid.NewString(), server: s}
	s.sessions[ws.id] = ws
	activeSessions.Inc()
	return ws, nil
}

func (s *Server) endSession(ws *wsSession) {
	s.mu.Lock()
	_, ok := s.sessions[ws.id]
	delete(s.sessions, ws.id)
	s.mu.Unlock()
	if ok {
		activeSessions.Dec()
	}
	ws.close()
}

// sessionWebSocketHandler serves one interactive editing session per connection.
func (s *Server) sessionWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := s.newSession()
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.endSession(ws)

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

	slog.Info("WebSocket session started", "session_id", ws.id, "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(conn, ws)
	slog.Info("WebSocket session ended", "session_id", ws.id)
}

// handleWebSocketConnection processes messages until the client leaves.
func (s *Server) handleWebSocketConnection(conn *websocket.Conn, ws *wsSession) {
	// base64 inflates uploads by a third
	conn.SetReadLimit(s.maxUploadBytes()*4/3 + 64*1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
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
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType != websocket.TextMessage {
			continue
		}
		if !s.handleWebSocketMessage(conn, ws, data) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// handleWebSocketMessage runs one command. It returns false when the
// connection should end.
func (s *Server) handleWebSocketMessage(conn WebSocketConnWriter, ws *wsSession, data []byte) bool {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, ws, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return true
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	result, err := s.dispatch(ctx, ws, req)
	if err != nil {
		errType := "processing_error"
		var reqErr *requestError
		switch {
		case errors.Is(err, errNoSession):
			errType = "no_session"
		case errors.As(err, &reqErr):
			errType = "invalid_request"
		}
		s.sendWebSocketError(conn, ws, req.RequestID, errType, err.Error())
		return true
	}

	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      req.Type,
		Status:    "completed",
		SessionID: ws.id,
		RequestID: req.RequestID,
		Result:    result,
	})
	return req.Type != "close"
}

func (s *Server) dispatch(ctx context.Context, ws *wsSession, req WebSocketRequest) (interface{}, error) {
	if req.Type == "open" {
		return s.wsOpen(ws, req)
	}
	if req.Type == "close" {
		ws.reset()
		return nil, nil
	}

	sess := ws.sess
	if sess == nil {
		return nil, errNoSession
	}

	switch req.Type {
	case "detect":
		start := time.Now()
		q, err := sess.SeedCorners(ctx)
		cornerDetectionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			cornerDetectionFailures.WithLabelValues(failureReason(err)).Inc()
			return nil, err
		}
		res := DetectResult{Quad: q, Points: sess.DetectedPoints(), Rectangles: sess.Rectangles()}
		if res.Points == nil {
			res.Points = []geometry.Point{}
		}
		if res.Rectangles == nil {
			res.Rectangles = []geometry.Quad{}
		}
		return res, nil

	case "move_corner":
		if req.Index == nil || req.Point == nil {
			return nil, badRequest("move_corner needs index and point")
		}
		p, err := sess.MoveCorner(*req.Index, *req.Point, req.Snap)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		return map[string]interface{}{"index": *req.Index, "point": p}, nil

	case "correct":
		spec, err := s.specFor(req.Ratio, req.CustomWidth, req.CustomHeight)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		err = sess.Correct(ctx, spec)
		status := "success"
		if err != nil {
			status = "error"
		}
		warpDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		return s.state(sess, true, req.Preview)

	case "filter":
		f, err := filters.Parse(req.Filter)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		err = sess.ApplyFilter(ctx, f)
		status := "success"
		if err != nil {
			status = "error"
		}
		filterOperationsTotal.WithLabelValues(string(f), status).Inc()
		if err != nil {
			return nil, err
		}
		return s.state(sess, true, req.Preview)

	case "undo":
		changed, err := sess.Undo()
		if err != nil {
			return nil, err
		}
		return s.state(sess, changed, req.Preview)

	case "redo":
		changed, err := sess.Redo()
		if err != nil {
			return nil, err
		}
		return s.state(sess, changed, req.Preview)

	case "add_distance":
		if len(req.Points) != 2 {
			return nil, badRequest("add_distance needs two points")
		}
		c := sess.Measurements()
		i := c.AddDistance(req.Points[0], req.Points[1])
		return MeasurementResult{Index: i, Label: c.Distances[i].Label()}, nil

	case "add_angle":
		if len(req.Points) != 3 {
			return nil, badRequest("add_angle needs three points")
		}
		c := sess.Measurements()
		i := c.AddAngle(req.Points[0], req.Points[1], req.Points[2])
		return MeasurementResult{Index: i, Label: c.Angles[i].Label()}, nil

	case "calibrate":
		c := sess.Measurements()
		var ok bool
		index := -1
		switch {
		case req.Index != nil:
			index = *req.Index
			ok = c.CalibrateDistance(index, req.Calibration)
		case req.PixelLength > 0:
			ok = c.Calibrate(req.PixelLength, req.Calibration)
		default:
			return nil, badRequest("calibrate needs index or pixel_length")
		}
		scale := c.GlobalScale()
		return MeasurementResult{Index: index, Calibrated: ok, Scale: &scale, Labels: c.Labels()}, nil

	case "measurements":
		c := sess.Measurements()
		rec := c.ToRecord()
		labels := c.Labels()
		if labels == nil {
			labels = []string{}
		}
		return MeasurementResult{Index: -1, Record: &rec, Labels: labels}, nil
	}

	return nil, badRequest("unsupported request type: %s", req.Type)
}

// wsOpen replaces the session image with the uploaded one.
func (s *Server) wsOpen(ws *wsSession, req WebSocketRequest) (interface{}, error) {
	if len(req.Image) == 0 {
		return nil, badRequest("no image data provided")
	}
	if int64(len(req.Image)) > s.maxUploadBytes() {
		return nil, badRequest("file too large")
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if ext == "" {
		ext = ".png"
	}
	if !imageio.IsSupportedImage("x"+ext) && !imageio.IsPDF("x"+ext) && ext != ".mcm" {
		return nil, badRequest("unsupported file type: %s", ext)
	}
	uploadSizeBytes.Observe(float64(len(req.Image)))

	path, cleanup, err := saveUpload(s.editorCfg.TempDir, ext, bytes.NewReader(req.Image))
	if err != nil {
		return nil, err
	}
	var opts []editor.Option
	if req.DisplayWidth > 0 {
		opts = append(opts, editor.WithDisplayWidth(req.DisplayWidth))
	}
	sess, err := editor.Open(path, s.editorCfg, opts...)
	if err != nil {
		cleanup()
		return nil, err
	}

	ws.reset()
	ws.sess = sess
	ws.upload = path
	return s.state(sess, true, req.Preview)
}

func (s *Server) state(sess *editor.Session, changed, preview bool) (SessionState, error) {
	size := sess.ImageSize()
	display := sess.DisplaySize()
	st := SessionState{
		Width:         int(size.Width),
		Height:        int(size.Height),
		DisplayWidth:  display.Width,
		DisplayHeight: display.Height,
		CanUndo:       sess.CanUndo(),
		CanRedo:       sess.CanRedo(),
		Changed:       changed,
	}
	if q, ok := sess.Quad(); ok {
		st.Quad = &q
	}
	if preview {
		img, _, err := imageio.Load(sess.Path())
		if err != nil {
			return SessionState{}, err
		}
		var buf bytes.Buffer
		if err := imageio.Encode(&buf, img, imageio.PNG, 0); err != nil {
			return SessionState{}, err
		}
		st.Preview = buf.Bytes()
	}
	return st, nil
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketResponse) {
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
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, ws *wsSession, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      "error",
		Status:    "error",
		SessionID: ws.id,
		RequestID: requestID,
		Error:     message,
		ErrorType: errorType,
	})
}
