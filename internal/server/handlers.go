package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/analytics-bridge/pkg/analytics"
	"github.com/morezero/analytics-bridge/pkg/bridge"
	"github.com/morezero/analytics-bridge/pkg/commsutil"
)

const handlersLogPrefix = "server:handlers"

// MethodsOutput describes the served channel and its operations table.
type MethodsOutput struct {
	Channel string   `json:"channel"`
	Version string   `json:"version"`
	Subject string   `json:"subject,omitempty"`
	Methods []string `json:"methods"`
}

// NewMethodsOutput lists the methods of reg served on subject.
func NewMethodsOutput(reg *bridge.Registry, subject string) *MethodsOutput {
	return &MethodsOutput{
		Channel: analytics.Channel,
		Version: reg.Version(),
		Subject: subject,
		Methods: reg.Methods(),
	}
}

// handleCall serves requests arriving on the channel subject. ctx is the server's
// lifetime context; every call derives its own context from it.
func (s *Server) handleCall(ctx context.Context) comms.MsgHandler {
	return func(msg *comms.Msg) {
		s.serveRequest(ctx, msg.Data, msg.Respond)
	}
}

// serveRequest decodes one request envelope and hands it to the dispatcher. The
// reply is written through send exactly once, possibly after serveRequest returns.
func (s *Server) serveRequest(ctx context.Context, data []byte, send func([]byte) error) {
	req, err := bridge.DecodeRequest(data)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", handlersLogPrefix, err))
		detail := bridge.Normalize(bridge.NewOperationError(bridge.CodeInvalidArgument, err))
		if err := bridge.NewResponseWriter("", send).Error(detail); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond: %v", handlersLogPrefix, err))
		}
		return
	}

	s.inflight.Add(1)
	var once sync.Once
	tracked := func(b []byte) error {
		defer once.Do(func() { s.inflight.Add(-1) })
		return send(b)
	}

	call := req.Call()
	s.dispatcher.Dispatch(ctx, call, bridge.NewResponseWriter(call.ID, tracked))
}

// handleMethods answers with the method listing.
func (s *Server) handleMethods() comms.MsgHandler {
	return func(msg *comms.Msg) {
		data, err := commsutil.EncodePayload(NewMethodsOutput(s.dispatcher.Registry(), s.subject))
		if err != nil {
			slog.Error(fmt.Sprintf("%s - methods response encode: %v", handlersLogPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond: %v", handlersLogPrefix, err))
		}
	}
}
