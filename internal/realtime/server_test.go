package realtime

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"plantify-cam/internal/protocol"
	"plantify-cam/internal/store"
)

type fakeController struct {
	mu       sync.Mutex
	active   bool
	detector bool
	restarts int
}

func (f *fakeController) SetActive(desired bool) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == desired {
		return false, f.active
	}
	f.active = desired
	return true, f.active
}

func (f *fakeController) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeController) Restart(time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	f.active = true
	return f.active
}

func (f *fakeController) DetectorReady() bool { return f.detector }

type fakeAlerts struct {
	alerts []store.Alert
	limit  int
}

func (f *fakeAlerts) RecentAlerts(limit int) ([]store.Alert, error) {
	f.limit = limit
	return f.alerts, nil
}

func newTestServer() (*Server, *fakeController) {
	srv := New(&fakeAlerts{}, zap.NewNop())
	ctrl := &fakeController{detector: true}
	srv.AttachController(ctrl)
	return srv, ctrl
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServer_Handler(t *testing.T) {
	srv, _ := newTestServer()
	if srv.Handler() == nil {
		t.Fatal("expected non-nil handler")
	}
}

func TestToggleIdempotent(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.Handler()

	toggle := func(status string) toggleResponse {
		t.Helper()
		req := httptest.NewRequest("POST", "/toggle_camera", strings.NewReader(`{"status":`+status+`}`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp toggleResponse
		json.NewDecoder(w.Body).Decode(&resp)
		return resp
	}

	if resp := toggle("true"); !resp.Changed || !resp.Active {
		t.Errorf("first toggle on: expected changed+active, got %+v", resp)
	}
	if resp := toggle("true"); resp.Changed || !resp.Active {
		t.Errorf("second toggle on: expected no-op, got %+v", resp)
	}
	if resp := toggle("false"); !resp.Changed || resp.Active {
		t.Errorf("toggle off: expected changed+inactive, got %+v", resp)
	}
}

func TestToggleBadBody(t *testing.T) {
	srv, _ := newTestServer()
	handler := srv.Handler()

	req := httptest.NewRequest("POST", "/toggle_camera", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Status != "error" {
		t.Errorf("expected structured error body, got %+v (err %v)", resp, err)
	}
}

func TestToggleWithoutController(t *testing.T) {
	srv := New(&fakeAlerts{}, zap.NewNop())
	handler := srv.Handler()

	req := httptest.NewRequest("POST", "/toggle_camera", strings.NewReader(`{"status":true}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	srv, ctrl := newTestServer()
	ctrl.SetActive(true)
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp statusResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "running" || !resp.Active || !resp.Detector || resp.Subscribers != 0 {
		t.Errorf("unexpected status response: %+v", resp)
	}
}

func TestCheckConnection(t *testing.T) {
	srv, ctrl := newTestServer()
	ctrl.SetActive(true)
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "/check-connection", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp probeResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "success" || !resp.Active {
		t.Errorf("unexpected probe response: %+v", resp)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.TestImage)
	if err != nil {
		t.Fatalf("test image is not valid base64: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("test image is not a decodable jpeg: %v", err)
	}
}

func TestRestart(t *testing.T) {
	srv, ctrl := newTestServer()
	handler := srv.Handler()

	req := httptest.NewRequest("POST", "/restart-camera", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp restartResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "success" || !resp.Active {
		t.Errorf("unexpected restart response: %+v", resp)
	}
	if ctrl.restarts != 1 {
		t.Errorf("expected 1 restart, got %d", ctrl.restarts)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	alerts := &fakeAlerts{alerts: []store.Alert{
		{ID: "a", Disease: "Black_Spot_of_Jackfruit"},
		{ID: "b", Disease: "Algal_Leaf_Spot_of_Jackfruit"},
	}}
	srv := New(alerts, zap.NewNop())
	srv.AttachController(&fakeController{})
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "/alerts?limit=5", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var got []store.Alert
	json.NewDecoder(w.Body).Decode(&got)
	if len(got) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(got))
	}
	if alerts.limit != 5 {
		t.Errorf("expected limit 5 to reach the store, got %d", alerts.limit)
	}
}

func dialWS(t *testing.T, httpSrv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read message failed: %v", err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message failed: %v", err)
	}
	return &msg
}

func TestWebSocketStatusOnConnect(t *testing.T) {
	srv, ctrl := newTestServer()
	ctrl.SetActive(true)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dialWS(t, httpSrv)

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeServerStatus {
		t.Fatalf("expected %q first, got %q", protocol.TypeServerStatus, msg.Type)
	}
	var p protocol.ServerStatusPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Status != "connected" || !p.Active {
		t.Errorf("unexpected status payload: %+v", p)
	}
}

func TestWebSocketStatusRequest(t *testing.T) {
	srv, _ := newTestServer()
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dialWS(t, httpSrv)
	readMessage(t, ws) // connect-time status push

	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"status.request","payload":{}}`))

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeServerStatus {
		t.Errorf("expected %q, got %q", protocol.TypeServerStatus, msg.Type)
	}
}

func TestWebSocketInvalidMessage(t *testing.T) {
	srv, _ := newTestServer()
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dialWS(t, httpSrv)
	readMessage(t, ws) // connect-time status push

	ws.WriteMessage(websocket.TextMessage, []byte("not json"))

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeError {
		t.Errorf("expected error message, got %q", msg.Type)
	}
}

func TestRegistrySizeTracksConnections(t *testing.T) {
	srv, _ := newTestServer()
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	if !srv.IsEmpty() {
		t.Fatal("expected empty registry before any connection")
	}

	ws := dialWS(t, httpSrv)
	waitFor(t, "registration", func() bool { return srv.Size() == 1 })

	ws.Close()
	waitFor(t, "deregistration", func() bool { return srv.IsEmpty() })
}

func TestBroadcastSurvivesDeadSubscriber(t *testing.T) {
	srv, _ := newTestServer()
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws1 := dialWS(t, httpSrv)
	ws2 := dialWS(t, httpSrv)
	ws3 := dialWS(t, httpSrv)
	for _, ws := range []*websocket.Conn{ws1, ws2, ws3} {
		readMessage(t, ws) // connect-time status push
	}
	waitFor(t, "3 subscribers", func() bool { return srv.Size() == 3 })

	// Kill one subscriber's connection under the registry's feet.
	ws1.Close()

	msg, err := protocol.NewMessage(protocol.TypeFrame, protocol.FramePayload{Image: "aGk=", Label: "x", Advice: "y"})
	if err != nil {
		t.Fatal(err)
	}
	srv.Broadcast(msg)

	// The two live subscribers still receive the frame.
	for _, ws := range []*websocket.Conn{ws2, ws3} {
		got := readMessage(t, ws)
		if got.Type != protocol.TypeFrame {
			t.Errorf("expected frame, got %q", got.Type)
		}
	}
}
