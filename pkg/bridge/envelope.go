package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nuid"

	"github.com/morezero/analytics-bridge/pkg/commsutil"
)

// Call is one request: a method name plus an untyped argument bundle.
type Call struct {
	ID        string
	Method    string
	Arguments map[string]any
	// Ver optionally constrains the served API version (e.g. "^1.0.0").
	Ver string
}

// Request is the JSON envelope for an incoming call.
type Request struct {
	ID        string         `json:"id"`
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments"`
	Ver       string         `json:"ver,omitempty"`
}

// Call converts the envelope into a Call, assigning an id when the caller sent none.
func (r *Request) Call() *Call {
	id := r.ID
	if id == "" {
		id = nuid.Next()
	}
	return &Call{ID: id, Method: r.Method, Arguments: r.Arguments, Ver: r.Ver}
}

// DecodeRequest decodes a request envelope, keeping numbers as json.Number so
// integer widths survive decoding.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := commsutil.DecodePayload(data, &req); err != nil {
		return nil, fmt.Errorf("bridge:envelope - failed to decode request: %w", err)
	}
	if req.Method == "" {
		return nil, errors.New("bridge:envelope - request has no method")
	}
	return &req, nil
}

// Response is the JSON envelope for the single reply to a call.
type Response struct {
	ID             string            `json:"id"`
	Ok             bool              `json:"ok"`
	Value          any               `json:"value,omitempty"`
	Code           string            `json:"code,omitempty"`
	Message        string            `json:"message,omitempty"`
	Detail         map[string]string `json:"detail,omitempty"`
	NotImplemented bool              `json:"notImplemented,omitempty"`
}

// SuccessResponse builds an ok reply.
func SuccessResponse(id string, value any) *Response {
	return &Response{ID: id, Ok: true, Value: value}
}

// ErrorResponse builds an error reply.
func ErrorResponse(id string, detail ErrorDetail) *Response {
	d := detail.Details
	if d == nil {
		d = map[string]string{}
	}
	return &Response{ID: id, Ok: false, Code: detail.Code, Message: detail.Message, Detail: d}
}

// NotImplementedResponse builds the unknown-method signal.
func NotImplementedResponse(id string) *Response {
	return &Response{ID: id, NotImplemented: true}
}

// MarshalJSON writes exactly one of the three reply shapes.
func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.NotImplemented:
		return json.Marshal(struct {
			ID             string `json:"id"`
			NotImplemented bool   `json:"notImplemented"`
		}{r.ID, true})
	case r.Ok:
		return json.Marshal(struct {
			ID    string `json:"id"`
			Ok    bool   `json:"ok"`
			Value any    `json:"value"`
		}{r.ID, true, r.Value})
	default:
		detail := r.Detail
		if detail == nil {
			detail = map[string]string{}
		}
		return json.Marshal(struct {
			ID      string            `json:"id"`
			Ok      bool              `json:"ok"`
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Detail  map[string]string `json:"detail"`
		}{r.ID, false, r.Code, r.Message, detail})
	}
}
