package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/examrender/internal/assets"
	"github.com/ziadkadry99/examrender/internal/live"
	"github.com/ziadkadry99/examrender/internal/texmath"
)

type fakeBackend struct{}

func (fakeBackend) Convert(tex string, mode texmath.Mode) (string, error) {
	return "<math>" + tex + "</math>", nil
}

func newTestServer(t *testing.T, cfg Config, load texmath.LoadFunc) *Server {
	t.Helper()
	if load == nil {
		load = func(ctx context.Context) (texmath.Compiler, error) {
			return texmath.New(texmath.WithBackend(fakeBackend{})), nil
		}
	}
	r := live.NewRenderer(texmath.NewLoader(load), assets.NewRemote("http://api.test"), nil)
	return New(cfg, r, nil)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, Config{Port: 0}, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t, Config{Port: 0, AllowAll: true}, nil)

	req := httptest.NewRequest("OPTIONS", "/api/render", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestIndexPage(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `id="mount"`) {
		t.Errorf("unexpected index: %d %q", w.Code, w.Body.String())
	}
}

func TestImageEndpoint(t *testing.T) {
	dir := t.TempDir()
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	if err := os.WriteFile(filepath.Join(dir, "q1.png"), png, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, Config{ImagesDir: dir}, nil)

	tests := []struct {
		path string
		code int
	}{
		{"/api/images/q1.png", http.StatusOK},
		{"/api/images/missing.png", http.StatusNotFound},
		{"/api/images/..%2Fsecret.txt", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))
		if w.Code != tt.code {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.code, w.Code)
			continue
		}
		if tt.code == http.StatusOK {
			if ct := w.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("content type: got %q", ct)
			}
			if !bytes.Equal(w.Body.Bytes(), png) {
				t.Error("image bytes differ")
			}
		}
	}
}

func TestRenderEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{}, nil)

	body := strings.NewReader(`{"content":"Find $x$ ![fig](../images/q1.png)"}`)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("POST", "/api/render", body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp renderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.HTML, "<math>x</math>") || !strings.Contains(resp.HTML, "http://api.test/api/images/q1.png") {
		t.Errorf("unexpected html: %s", resp.HTML)
	}
	if resp.Fallback {
		t.Error("fallback should be unset")
	}

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("POST", "/api/render", strings.NewReader("{")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", w.Code)
	}
}

func TestRenderEndpointFallback(t *testing.T) {
	srv := newTestServer(t, Config{}, func(ctx context.Context) (texmath.Compiler, error) {
		return nil, errors.New("engine unavailable")
	})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("POST", "/api/render", strings.NewReader(`{"content":"<i>$x$</i>"}`)))
	var resp renderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Fallback || resp.HTML != "&lt;i&gt;$x$&lt;/i&gt;" {
		t.Errorf("unexpected fallback response: %+v", resp)
	}
}

func dialMount(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/mount"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) mountMessage {
	t.Helper()
	var msg mountMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestMountWebSocket(t *testing.T) {
	conn := dialMount(t, newTestServer(t, Config{}, nil))

	ready := readMessage(t, conn)
	if ready.Type != "ready" || ready.Session == "" {
		t.Fatalf("expected ready with a session, got %+v", ready)
	}

	if err := conn.WriteJSON(mountMessage{Type: "show", Content: "# Q1\n\n$$y$$"}); err != nil {
		t.Fatal(err)
	}
	msg := readMessage(t, conn)
	if msg.Type != "mount" || msg.Session != ready.Session {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !strings.Contains(msg.HTML, `<span class="math math-display"><math>y</math></span>`) {
		t.Errorf("math not mounted: %s", msg.HTML)
	}

	if err := conn.WriteJSON(mountMessage{Type: "bogus"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != "error" {
		t.Errorf("expected error for unknown type, got %+v", msg)
	}
}

func TestMountWebSocketFallback(t *testing.T) {
	conn := dialMount(t, newTestServer(t, Config{}, func(ctx context.Context) (texmath.Compiler, error) {
		return nil, errors.New("engine unavailable")
	}))
	readMessage(t, conn)

	if err := conn.WriteJSON(mountMessage{Type: "show", Content: "$x$"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != "mount" || msg.HTML != "$x$" {
		t.Errorf("expected raw mount, got %+v", msg)
	}
	if msg := readMessage(t, conn); msg.Type != "error" || !msg.Fallback {
		t.Errorf("expected fallback error, got %+v", msg)
	}
}
