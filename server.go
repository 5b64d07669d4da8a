package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-screenrec/internal/server"
	"github.com/oszuidwest/zwfm-screenrec/internal/types"
)

// statusInterval is how often connected WebSocket clients get a status update.
const statusInterval = time.Second

// sessionView is what the status server needs from a recording session.
type sessionView interface {
	Status() types.SessionStatus
	Stop() error
	Kill()
	Ready() <-chan struct{}
	Done() <-chan struct{}
}

// Server serves the status of the active recording over HTTP and WebSocket.
type Server struct {
	addr     string
	apiKey   string
	version  types.VersionInfo
	commands *server.CommandHandler

	mu      sync.RWMutex
	session sessionView
	changed chan struct{} // Closed and replaced when the session changes
}

// NewServer creates a status server for addr. When apiKey is set, the stop
// controls require it in the X-API-Key header.
func NewServer(addr string, version types.VersionInfo, apiKey string) *Server {
	s := &Server{
		addr:    addr,
		apiKey:  apiKey,
		version: version,
		changed: make(chan struct{}),
	}
	s.commands = server.NewCommandHandler(s)
	return s
}

// SetSession makes sess the session reported and controlled by the server.
func (s *Server) SetSession(sess sessionView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
	close(s.changed)
	s.changed = make(chan struct{})
}

// StopSession stops the active session. It implements server.SessionController.
func (s *Server) StopSession(kill bool) error {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess == nil {
		return server.ErrNoSession
	}
	if kill {
		slog.Warn("killing ffmpeg on client request")
		sess.Kill()
		return nil
	}
	return sess.Stop()
}

// sessionSignals returns the channels that announce the next status change.
// ready and done are nil when there is no session.
func (s *Server) sessionSignals() (ready, done, changed <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session != nil {
		ready, done = s.session.Ready(), s.session.Done()
	}
	return ready, done, s.changed
}

// buildWSStatus builds the status message sent to clients.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	resp := types.WSStatusResponse{
		Type:    "status",
		Version: s.version,
	}
	if sess != nil {
		status := sess.Status()
		resp.Session = &status
	}
	return resp
}

// handleWebSocket handles WebSocket connections for real-time status updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done, statusUpdate)
	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes queued messages until send is closed.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader handles client commands until the connection drops.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes status on session changes, on request and every statusInterval.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	defer close(send)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	trySend := func() bool {
		select {
		case send <- s.buildWSStatus():
			return true
		case <-done:
			return false
		}
	}

	ready, exited, changed := s.sessionSignals()
	if !trySend() {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-changed:
			ready, exited, changed = s.sessionSignals()
		case <-ready:
			ready = nil
		case <-exited:
			exited = nil
		case <-statusUpdate:
		case <-ticker.C:
		}
		if !trySend() {
			return
		}
	}
}

// SetupRoutes configures HTTP routes and returns the handler.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/stop", s.controlAuth(s.handleStop))
	mux.HandleFunc("/ws", s.controlAuth(s.handleWebSocket))

	return securityHeaders(mux)
}

// controlAuth returns middleware for the routes that can stop a recording.
// Cross-origin browser requests are refused, and the API key is checked when configured.
func (s *Server) controlAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !server.CheckOrigin(r) {
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		if s.apiKey != "" {
			providedKey := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(providedKey), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleStop handles POST /api/stop. Pass ?mode=kill to skip the graceful stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode != "" && mode != "graceful" && mode != "kill" {
		writeError(w, http.StatusBadRequest, "mode must be graceful or kill")
		return
	}

	if err := s.StopSession(mode == "kill"); err != nil {
		if errors.Is(err, server.ErrNoSession) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	slog.Info("starting status server", "addr", s.addr)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
