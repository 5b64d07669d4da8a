package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
)

// ErrNoSession is returned when a command needs a recording but none is active.
var ErrNoSession = errors.New("no active recording")

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StopRequest is the payload of a session/stop command.
type StopRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=graceful kill"` // graceful (default) or kill
}

// SessionController is the part of the recorder that commands act on.
type SessionController interface {
	// StopSession ends the active recording. kill skips the graceful stop.
	StopSession(kill bool) error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	sessions SessionController
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(sessions SessionController) *CommandHandler {
	return &CommandHandler{sessions: sessions}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "session/stop").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "session":
		h.handleSession(action, cmd, send)
	case "status":
		// The status update below is the reply.
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
		SendError(send, cmd.Type, errors.New("unknown command"))
	}

	triggerStatusUpdate()
}

// handleSession routes session/* commands.
func (h *CommandHandler) handleSession(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "stop":
		HandleCommand(h, cmd, send, func(req *StopRequest) error {
			return h.sessions.StopSession(req.Mode == "kill")
		})
	default:
		slog.Warn("unknown session action", "action", action)
		SendError(send, cmd.Type, errors.New("unknown command"))
	}
}
