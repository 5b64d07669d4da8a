package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-screenrec/internal/types"
)

// fakeSession is a controllable sessionView.
type fakeSession struct {
	mu     sync.Mutex
	state  types.SessionState
	stops  int
	kills  int
	ready  chan struct{}
	done   chan struct{}
	closed sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		state: types.StateStarting,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (f *fakeSession) Status() types.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.SessionStatus{
		ID:         "sess-1",
		State:      f.state,
		Live:       f.state != types.StateExited,
		Recording:  f.state == types.StateRecording,
		OutputPath: "out.mkv",
	}
}

func (f *fakeSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeSession) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills++
}

func (f *fakeSession) counts() (stops, kills int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops, f.kills
}

func (f *fakeSession) Ready() <-chan struct{} { return f.ready }
func (f *fakeSession) Done() <-chan struct{}  { return f.done }

func (f *fakeSession) markRecording() {
	f.mu.Lock()
	f.state = types.StateRecording
	f.mu.Unlock()
	close(f.ready)
}

func (f *fakeSession) markExited() {
	f.mu.Lock()
	f.state = types.StateExited
	f.mu.Unlock()
	f.closed.Do(func() { close(f.done) })
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	return newKeyedTestServer(t, "")
}

func newKeyedTestServer(t *testing.T, apiKey string) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer("", versionInfo("v6.1.1"), apiKey)
	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getStatus(t *testing.T, url string) types.WSStatusResponse {
	t.Helper()
	resp, err := http.Get(url + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	var status types.WSStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func TestStatusEndpoint(t *testing.T) {
	srv, ts := newTestServer(t)

	status := getStatus(t, ts.URL)
	assert.Equal(t, "status", status.Type)
	assert.Nil(t, status.Session)
	assert.Equal(t, "6.1.1", status.Version.FFmpegVersion)
	assert.Equal(t, Version, status.Version.Current)

	sess := newFakeSession()
	srv.SetSession(sess)
	sess.markRecording()

	status = getStatus(t, ts.URL)
	require.NotNil(t, status.Session)
	assert.Equal(t, types.StateRecording, status.Session.State)
	assert.True(t, status.Session.Recording)
}

func TestStopEndpoint(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	sess := newFakeSession()
	srv.SetSession(sess)

	resp, err = http.Post(ts.URL+"/api/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/stop?mode=kill", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/stop?mode=pause", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/stop")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	stops, kills := sess.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, kills)
}

func readStatus(t *testing.T, conn *websocket.Conn) types.WSStatusResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&msg))
		var kind string
		require.NoError(t, json.Unmarshal(msg["type"], &kind))
		if kind != "status" {
			continue
		}
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		var status types.WSStatusResponse
		require.NoError(t, json.Unmarshal(data, &status))
		return status
	}
}

// readUntil reads status messages until one has the wanted session state.
func readUntil(t *testing.T, conn *websocket.Conn, want types.SessionState) types.WSStatusResponse {
	t.Helper()
	for {
		status := readStatus(t, conn)
		if status.Session != nil && status.Session.State == want {
			return status
		}
	}
}

func TestWebSocketPushesSessionChanges(t *testing.T) {
	srv, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	assert.Nil(t, readStatus(t, conn).Session)

	sess := newFakeSession()
	srv.SetSession(sess)
	readUntil(t, conn, types.StateStarting)

	sess.markRecording()
	readUntil(t, conn, types.StateRecording)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "session/stop"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var reply map[string]any
		require.NoError(t, conn.ReadJSON(&reply))
		if reply["type"] == "session/stop_result" {
			assert.Equal(t, true, reply["success"])
			break
		}
	}

	sess.markExited()
	status := readUntil(t, conn, types.StateExited)
	assert.False(t, status.Session.Live)

	stops, _ := sess.counts()
	assert.Equal(t, 1, stops)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	_, ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	for _, origin := range []string{"https://evil.example.com", "http://192.168.1.77:8000"} {
		header := http.Header{"Origin": []string{origin}}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.Error(t, err, origin)
		require.NotNil(t, resp, origin)
		resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, origin)
	}
}

// postStop sends POST /api/stop with the given headers and returns the status code.
func postStop(t *testing.T, url string, header http.Header) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/stop", nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestStopEndpointRejectsForeignOrigin(t *testing.T) {
	srv, ts := newTestServer(t)
	sess := newFakeSession()
	srv.SetSession(sess)

	tests := []struct {
		origin string
		want   int
	}{
		{"https://evil.example.com", http.StatusForbidden},
		{"http://192.168.1.77:8000", http.StatusForbidden},
		{"null", http.StatusForbidden},
		{"http://localhost:3000", http.StatusAccepted},
	}
	for _, tt := range tests {
		got := postStop(t, ts.URL, http.Header{"Origin": []string{tt.origin}})
		assert.Equal(t, tt.want, got, tt.origin)
	}

	stops, kills := sess.counts()
	assert.Equal(t, 1, stops, "only the local page may stop the recording")
	assert.Zero(t, kills)
}

func TestControlRoutesRequireAPIKey(t *testing.T) {
	srv, ts := newKeyedTestServer(t, "s3cret")
	sess := newFakeSession()
	srv.SetSession(sess)

	assert.Equal(t, http.StatusUnauthorized, postStop(t, ts.URL, nil))
	assert.Equal(t, http.StatusUnauthorized, postStop(t, ts.URL, http.Header{"X-Api-Key": []string{"guess"}}))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	stops, _ := sess.counts()
	assert.Zero(t, stops)

	// Status stays readable without the key.
	assert.NotNil(t, getStatus(t, ts.URL).Session)

	withKey := http.Header{"X-Api-Key": []string{"s3cret"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, withKey)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	require.NotNil(t, readStatus(t, conn).Session)

	assert.Equal(t, http.StatusAccepted, postStop(t, ts.URL, withKey))
	stops, _ = sess.counts()
	assert.Equal(t, 1, stops)
}
