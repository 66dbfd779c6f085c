package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/morezero/analytics-bridge/pkg/bridge"
)

const wsTestPrefix = "server:websocket_test"

func dialWebSocket(t *testing.T, s *Server) (*websocket.Conn, context.Context) {
	t.Helper()
	s.cfg.WSEnabled = true
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("%s - dial failed: %v", wsTestPrefix, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readReply(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("%s - read failed: %v", wsTestPrefix, err)
	}
	if typ != websocket.MessageText {
		t.Errorf("%s - reply type = %v, want text", wsTestPrefix, typ)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("%s - reply not JSON: %v", wsTestPrefix, err)
	}
	return out
}

func TestWebSocket_CallAndReply(t *testing.T) {
	backend := &stubBackend{}
	s := testServer(t, &mockStore{}, backend)
	conn, ctx := dialWebSocket(t, s)

	req := `{"id":"ws-1","method":"logEvent","arguments":{"name":"level_up","parameters":{"level":3}}}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(req)); err != nil {
		t.Fatalf("%s - write failed: %v", wsTestPrefix, err)
	}
	reply := readReply(t, ctx, conn)
	if reply["id"] != "ws-1" || reply["ok"] != true {
		t.Errorf("%s - unexpected reply %v", wsTestPrefix, reply)
	}
	if backend.lastEvent != "level_up" {
		t.Errorf("%s - backend saw %q, want level_up", wsTestPrefix, backend.lastEvent)
	}
}

func TestWebSocket_ErrorShapes(t *testing.T) {
	s := testServer(t, &mockStore{}, nil)
	conn, ctx := dialWebSocket(t, s)

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"id":"ws-2","method":"nope","arguments":{}}`)); err != nil {
		t.Fatalf("%s - write failed: %v", wsTestPrefix, err)
	}
	if reply := readReply(t, ctx, conn); reply["notImplemented"] != true || reply["id"] != "ws-2" {
		t.Errorf("%s - unexpected notImplemented reply %v", wsTestPrefix, reply)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"broken`)); err != nil {
		t.Fatalf("%s - write failed: %v", wsTestPrefix, err)
	}
	if reply := readReply(t, ctx, conn); reply["ok"] != false || reply["code"] != bridge.CodeInvalidArgument {
		t.Errorf("%s - unexpected reply to malformed request %v", wsTestPrefix, reply)
	}
}

func TestWebSocket_DisabledRoute(t *testing.T) {
	s := testServer(t, &mockStore{}, nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	// "/" catches the path and answers 404 when the WebSocket route is off.
	if rec.Code != http.StatusNotFound {
		t.Errorf("%s - /ws with WebSocket disabled got %d, want 404", wsTestPrefix, rec.Code)
	}
}
