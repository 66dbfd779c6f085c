package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const forwarderLogPrefix = "bridge:forwarder"

// Forwarder turns a pending outcome into exactly one reply.
type Forwarder struct {
	// Timeout bounds how long a call may stay unanswered. Zero waits forever.
	Timeout time.Duration
}

// NewForwarder creates a Forwarder with the given reply timeout.
func NewForwarder(timeout time.Duration) *Forwarder {
	return &Forwarder{Timeout: timeout}
}

// Forward awaits fut on its own goroutine and delivers one reply to r.
// It never blocks the caller.
func (f *Forwarder) Forward(ctx context.Context, callID string, fut *Future, r Responder) {
	ctx, cancel := f.callContext(ctx)
	f.forward(ctx, cancel, fut, newReplyOnce(callID, r))
}

func (f *Forwarder) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout > 0 {
		return context.WithTimeout(ctx, f.Timeout)
	}
	return context.WithCancel(ctx)
}

func (f *Forwarder) forward(ctx context.Context, cancel context.CancelFunc, fut *Future, reply *replyOnce) {
	go func() {
		defer cancel()
		select {
		case <-fut.Done():
			f.deliver(fut, reply)
		case <-ctx.Done():
			// an outcome that raced the deadline still wins
			select {
			case <-fut.Done():
				f.deliver(fut, reply)
				return
			default:
			}
			slog.Warn(fmt.Sprintf("%s - call %s unanswered: %v", forwarderLogPrefix, reply.id, ctx.Err()))
			reply.Error(Normalize(ctx.Err()))
		}
	}()
}

func (f *Forwarder) deliver(fut *Future, reply *replyOnce) {
	value, err, failed := fut.outcome()
	if !failed {
		reply.Success(value)
		return
	}
	if err == nil {
		slog.Error(fmt.Sprintf("%s - protocol violation: call %s failed without an error", forwarderLogPrefix, reply.id))
		err = ErrNilFailure
	}
	slog.Debug(fmt.Sprintf("%s - call %s failed: %v", forwarderLogPrefix, reply.id, err))
	reply.Error(Normalize(err))
}
