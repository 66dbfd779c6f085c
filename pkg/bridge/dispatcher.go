package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/analytics-bridge/pkg/semver"
)

const dispatchLogPrefix = "bridge:dispatch"

// Dispatcher routes calls to registered handlers.
type Dispatcher struct {
	registry  *Registry
	forwarder *Forwarder
}

// NewDispatcher creates a Dispatcher. A nil forwarder waits for outcomes without a timeout.
func NewDispatcher(reg *Registry, fwd *Forwarder) *Dispatcher {
	if fwd == nil {
		fwd = &Forwarder{}
	}
	return &Dispatcher{registry: reg, forwarder: fwd}
}

// Registry returns the dispatcher's method table.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch resolves and starts one call. It returns as soon as the operation has been
// handed off; the reply reaches r later, exactly once. Unknown methods get NotImplemented.
func (d *Dispatcher) Dispatch(ctx context.Context, call *Call, r Responder) {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", dispatchLogPrefix, call.Method, call.ID))

	reply := newReplyOnce(call.ID, r)

	handler, ok := d.registry.Lookup(call.Method)
	if !ok {
		slog.Debug(fmt.Sprintf("%s - method %s not implemented", dispatchLogPrefix, call.Method))
		reply.NotImplemented()
		return
	}

	if call.Ver != "" && !semver.SatisfiesRange(d.registry.Version(), call.Ver) {
		reply.Error(Normalize(&OperationError{
			Code:    CodeUnsupportedVersion,
			Message: fmt.Sprintf("version %s does not satisfy %q", d.registry.Version(), call.Ver),
			Err:     ErrVersionMismatch,
		}))
		return
	}

	bag, err := ToNativeBag(call.Arguments)
	if err != nil {
		reply.Error(Normalize(err))
		return
	}

	callCtx, cancel := d.forwarder.callContext(WithCallID(ctx, call.ID))
	fut := invoke(callCtx, handler, bag)
	d.forwarder.forward(callCtx, cancel, fut, reply)
}

// invoke runs the handler's synchronous part, turning panics and missing futures into failures.
func invoke(ctx context.Context, h Handler, bag Bag) (fut *Future) {
	defer func() {
		if r := recover(); r != nil {
			fut = Failed(fmt.Errorf("handler panicked: %v", r))
		}
	}()
	fut = h(ctx, bag)
	if fut == nil {
		return Failed(ErrNilFuture)
	}
	return fut
}

type callIDKey struct{}

// WithCallID returns a context carrying the id of the call being served.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallID returns the id of the call being served, or "" outside a dispatch.
func CallID(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

// Call dispatches and blocks until the reply arrives or ctx ends.
func (d *Dispatcher) Call(ctx context.Context, call *Call) (*Response, error) {
	rec := NewRecorder(call.ID)
	d.Dispatch(ctx, call, rec)
	select {
	case resp := <-rec.Replies():
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
