package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const wsLogPrefix = "server:websocket"

const (
	maxWSRequestBytes = 1 << 20
	wsWriteTimeout    = 10 * time.Second
)

// handleWebSocket serves the bridge over a WebSocket: every message is one request
// envelope and every reply is one text message. Replies may arrive out of order;
// callers match them by id. Closing the socket cancels the calls still pending on it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: s.cfg.WSInsecureOrigins})
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - accept failed: %v", wsLogPrefix, err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxWSRequestBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := func(data []byte) error {
		writeCtx, writeCancel := context.WithTimeout(ctx, wsWriteTimeout)
		defer writeCancel()
		return conn.Write(writeCtx, websocket.MessageText, data)
	}

	slog.Debug(fmt.Sprintf("%s - client connected from %s", wsLogPrefix, r.RemoteAddr))
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				slog.Debug(fmt.Sprintf("%s - client %s disconnected", wsLogPrefix, r.RemoteAddr))
			} else {
				slog.Warn(fmt.Sprintf("%s - read from %s: %v", wsLogPrefix, r.RemoteAddr, err))
			}
			return
		}
		s.serveRequest(ctx, data, send)
	}
}
