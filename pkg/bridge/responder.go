package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/valyala/bytebufferpool"
)

const responderLogPrefix = "bridge:responder"

// Responder is the caller's reply channel for one call.
type Responder interface {
	Success(value any) error
	Error(detail ErrorDetail) error
	NotImplemented() error
}

// ResponseWriter encodes replies as JSON envelopes and hands them to send.
type ResponseWriter struct {
	id   string
	send func([]byte) error
}

var replyBuffers bytebufferpool.Pool

// NewResponseWriter creates a ResponseWriter for the call with the given id.
// send must not retain the slice after it returns.
func NewResponseWriter(id string, send func([]byte) error) *ResponseWriter {
	return &ResponseWriter{id: id, send: send}
}

func (w *ResponseWriter) Success(value any) error {
	return w.write(SuccessResponse(w.id, value))
}

func (w *ResponseWriter) Error(detail ErrorDetail) error {
	return w.write(ErrorResponse(w.id, detail))
}

func (w *ResponseWriter) NotImplemented() error {
	return w.write(NotImplementedResponse(w.id))
}

func (w *ResponseWriter) write(resp *Response) error {
	buf := replyBuffers.Get()
	defer replyBuffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response for call %s: %v", responderLogPrefix, w.id, err))
		// the caller still gets exactly one reply
		buf.Reset()
		fallback := ErrorResponse(w.id, Normalize(NewOperationError(CodeInternal,
			fmt.Errorf("reply could not be encoded: %w", err))))
		if err := json.NewEncoder(buf).Encode(fallback); err != nil {
			return fmt.Errorf("%s - failed to encode response: %w", responderLogPrefix, err)
		}
	}
	return w.send(bytes.TrimSuffix(buf.B, []byte("\n")))
}

// Recorder is an in-process Responder that captures replies.
type Recorder struct {
	id      string
	replies chan *Response
	mu      sync.Mutex
	all     []*Response
}

// NewRecorder creates a Recorder for the call with the given id.
func NewRecorder(id string) *Recorder {
	return &Recorder{id: id, replies: make(chan *Response, 4)}
}

func (r *Recorder) Success(value any) error {
	return r.record(SuccessResponse(r.id, value))
}

func (r *Recorder) Error(detail ErrorDetail) error {
	return r.record(ErrorResponse(r.id, detail))
}

func (r *Recorder) NotImplemented() error {
	return r.record(NotImplementedResponse(r.id))
}

func (r *Recorder) record(resp *Response) error {
	r.mu.Lock()
	r.all = append(r.all, resp)
	r.mu.Unlock()
	select {
	case r.replies <- resp:
	default:
	}
	return nil
}

// Replies returns the replies delivered so far.
func (r *Recorder) Replies() <-chan *Response {
	return r.replies
}

// Count returns how many replies were delivered.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.all)
}

// replyOnce enforces a single reply per call.
type replyOnce struct {
	id   string
	r    Responder
	once sync.Once
}

func newReplyOnce(id string, r Responder) *replyOnce {
	if ro, ok := r.(*replyOnce); ok {
		return ro
	}
	return &replyOnce{id: id, r: r}
}

func (o *replyOnce) Success(value any) error {
	return o.deliver(func() error { return o.r.Success(value) })
}

func (o *replyOnce) Error(detail ErrorDetail) error {
	return o.deliver(func() error { return o.r.Error(detail) })
}

func (o *replyOnce) NotImplemented() error {
	return o.deliver(o.r.NotImplemented)
}

func (o *replyOnce) deliver(fn func() error) error {
	delivered := false
	var err error
	o.once.Do(func() {
		delivered = true
		err = fn()
	})
	if !delivered {
		slog.Warn(fmt.Sprintf("%s - protocol violation: duplicate reply for call %s discarded", responderLogPrefix, o.id))
		return nil
	}
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to deliver reply for call %s: %v", responderLogPrefix, o.id, err))
	}
	return err
}
