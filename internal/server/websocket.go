package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single WebSocket write so a stalled client cannot block the writer.
const writeWait = 5 * time.Second

// WebSocketConn is the interface for WebSocket connection operations.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

var upgrader = websocket.Upgrader{
	HandshakeTimeout: writeWait,
	CheckOrigin:      CheckOrigin,
}

// CheckOrigin reports whether a browser request may control the server.
// Only pages on this machine or on the server's own host are accepted.
func CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		slog.Warn("rejected request: invalid origin URL", "origin", origin, "path", r.URL.Path)
		return false
	}
	host := u.Hostname()

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost || isLocalHost(host) {
		return true
	}

	slog.Warn("rejected cross-origin request", "origin", origin, "path", r.URL.Path)
	return false
}

// isLocalHost reports whether host is localhost or a loopback address.
func isLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Conn is a WebSocket connection with bounded writes.
type Conn struct {
	ws *websocket.Conn
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

// WriteJSON writes v as a JSON text message.
func (c *Conn) WriteJSON(v any) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// ReadJSON reads the next JSON message into v.
func (c *Conn) ReadJSON(v any) error {
	return c.ws.ReadJSON(v)
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		slog.Debug("WebSocket close frame not sent", "error", err)
	}
	return c.ws.Close()
}
