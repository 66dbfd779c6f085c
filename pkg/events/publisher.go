package events

import "context"

// EventPublisher fans activity out to observers once an operation has succeeded.
// Publishing is best effort: callers log the error and keep the call's reply.
type EventPublisher interface {
	PublishActivity(ctx context.Context, event *ActivityEvent) error
}

// NoOpPublisher drops every event. Used when activity events are disabled.
type NoOpPublisher struct{}

func (p *NoOpPublisher) PublishActivity(context.Context, *ActivityEvent) error {
	return nil
}

// PublisherFunc lets an ordinary function observe activity in process.
type PublisherFunc func(ctx context.Context, event *ActivityEvent) error

// PublishActivity calls f(ctx, event).
func (f PublisherFunc) PublishActivity(ctx context.Context, event *ActivityEvent) error {
	return f(ctx, event)
}
