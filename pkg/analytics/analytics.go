// Package analytics wires the analytics call surface onto the bridge: a fixed
// operations table whose handlers validate typed parameters, hand them to a
// vendor Backend and fan out activity events once the backend has accepted them.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/analytics-bridge/pkg/bridge"
	"github.com/morezero/analytics-bridge/pkg/events"
)

const logPrefix = "analytics:analytics"

// Channel is the bridge channel served by this package.
const Channel = "firebase.analytics"

// APIVersion is the version of the operations table.
const APIVersion = "1.0.0"

// Method names.
const (
	MethodLogEvent                      = "logEvent"
	MethodSetAnalyticsCollectionEnabled = "setAnalyticsCollectionEnabled"
	MethodSetCurrentScreen              = "setCurrentScreen"
	MethodSetMinimumSessionDuration     = "setMinimumSessionDuration"
	MethodSetSessionTimeoutDuration     = "setSessionTimeoutDuration"
	MethodSetUserID                     = "setUserId"
	MethodSetUserProperty               = "setUserProperty"
	MethodSetUserProperties             = "setUserProperties"
	MethodResetAnalyticsData            = "resetAnalyticsData"
)

// Backend is the vendor-owned side of every operation. Nil pointers clear a value.
type Backend interface {
	LogEvent(ctx context.Context, name string, params bridge.Bag) error
	SetCollectionEnabled(ctx context.Context, enabled bool) error
	SetCurrentScreen(ctx context.Context, screenName string, screenClassOverride *string) error
	SetMinimumSessionDuration(ctx context.Context, d time.Duration) error
	SetSessionTimeoutDuration(ctx context.Context, d time.Duration) error
	SetUserID(ctx context.Context, id *string) error
	SetUserProperty(ctx context.Context, name string, value *string) error
	SetUserProperties(ctx context.Context, properties map[string]*string) error
	ResetAnalyticsData(ctx context.Context) error
}

// Service binds a Backend and an EventPublisher to the operations table.
type Service struct {
	backend   Backend
	publisher events.EventPublisher
	now       func() time.Time
}

// NewService creates a Service. A nil publisher disables activity events.
func NewService(backend Backend, publisher events.EventPublisher) *Service {
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	return &Service{backend: backend, publisher: publisher, now: time.Now}
}

// Registry builds the fixed operations table for this service.
func (s *Service) Registry() *bridge.Registry {
	return bridge.MustRegistry(APIVersion,
		bridge.Entry{Name: MethodLogEvent, Handler: bridge.Bind(parseLogEvent, s.logEvent)},
		bridge.Entry{Name: MethodSetAnalyticsCollectionEnabled, Handler: bridge.Bind(parseCollectionEnabled, s.setCollectionEnabled)},
		bridge.Entry{Name: MethodSetCurrentScreen, Handler: bridge.Bind(parseCurrentScreen, s.setCurrentScreen)},
		bridge.Entry{Name: MethodSetMinimumSessionDuration, Handler: bridge.Bind(parseMinimumSessionDuration, s.setMinimumSessionDuration)},
		bridge.Entry{Name: MethodSetSessionTimeoutDuration, Handler: bridge.Bind(parseSessionTimeoutDuration, s.setSessionTimeoutDuration)},
		bridge.Entry{Name: MethodSetUserID, Handler: bridge.Bind(parseUserID, s.setUserID)},
		bridge.Entry{Name: MethodSetUserProperty, Handler: bridge.Bind(parseUserProperty, s.setUserProperty)},
		bridge.Entry{Name: MethodSetUserProperties, Handler: bridge.Bind(parseUserProperties, s.setUserProperties)},
		bridge.Entry{Name: MethodResetAnalyticsData, Handler: bridge.Bind(bridge.NoParams, s.resetAnalyticsData)},
	)
}

func (s *Service) logEvent(ctx context.Context, p LogEventParams) (any, error) {
	if err := s.backend.LogEvent(ctx, p.Name, p.Parameters); err != nil {
		return nil, err
	}
	s.publish(ctx, MethodLogEvent, p.Name, p.Parameters.Native())
	return nil, nil
}

func (s *Service) setCollectionEnabled(ctx context.Context, enabled bool) (any, error) {
	if err := s.backend.SetCollectionEnabled(ctx, enabled); err != nil {
		return nil, err
	}
	s.publish(ctx, MethodSetAnalyticsCollectionEnabled, "", map[string]any{"enabled": enabled})
	return nil, nil
}

func (s *Service) setCurrentScreen(ctx context.Context, p CurrentScreenParams) (any, error) {
	if err := s.backend.SetCurrentScreen(ctx, p.ScreenName, p.ScreenClassOverride); err != nil {
		return nil, err
	}
	params := map[string]any{}
	if p.ScreenClassOverride != nil {
		params["screenClassOverride"] = *p.ScreenClassOverride
	}
	s.publish(ctx, MethodSetCurrentScreen, p.ScreenName, params)
	return nil, nil
}

func (s *Service) setMinimumSessionDuration(ctx context.Context, d time.Duration) (any, error) {
	if err := s.backend.SetMinimumSessionDuration(ctx, d); err != nil {
		return nil, err
	}
	s.publish(ctx, MethodSetMinimumSessionDuration, "", map[string]any{"milliseconds": d.Milliseconds()})
	return nil, nil
}

func (s *Service) setSessionTimeoutDuration(ctx context.Context, d time.Duration) (any, error) {
	if err := s.backend.SetSessionTimeoutDuration(ctx, d); err != nil {
		return nil, err
	}
	s.publish(ctx, MethodSetSessionTimeoutDuration, "", map[string]any{"milliseconds": d.Milliseconds()})
	return nil, nil
}

func (s *Service) setUserID(ctx context.Context, id *string) (any, error) {
	if err := s.backend.SetUserID(ctx, id); err != nil {
		return nil, err
	}
	s.publish(ctx, MethodSetUserID, "", map[string]any{"cleared": id == nil})
	return nil, nil
}

func (s *Service) setUserProperty(ctx context.Context, p UserPropertyParams) (any, error) {
	if err := s.backend.SetUserProperty(ctx, p.Name, p.Value); err != nil {
		return nil, err
	}
	s.publish(ctx, MethodSetUserProperty, p.Name, map[string]any{"cleared": p.Value == nil})
	return nil, nil
}

func (s *Service) setUserProperties(ctx context.Context, props map[string]*string) (any, error) {
	if err := s.backend.SetUserProperties(ctx, props); err != nil {
		return nil, err
	}
	s.publish(ctx, MethodSetUserProperties, "", map[string]any{"count": len(props)})
	return nil, nil
}

func (s *Service) resetAnalyticsData(ctx context.Context, _ struct{}) (any, error) {
	if err := s.backend.ResetAnalyticsData(ctx); err != nil {
		return nil, err
	}
	s.publish(ctx, MethodResetAnalyticsData, "", nil)
	return nil, nil
}

// publish fans out an activity event. Publish failures never fail the call.
func (s *Service) publish(ctx context.Context, method, name string, params map[string]any) {
	event := &events.ActivityEvent{
		Channel:   Channel,
		Method:    method,
		CallID:    bridge.CallID(ctx),
		Name:      name,
		Params:    params,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.publisher.PublishActivity(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s activity: %v", logPrefix, method, err))
	}
}
