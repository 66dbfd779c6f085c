package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/analytics-bridge/pkg/bridge"
	"github.com/morezero/analytics-bridge/pkg/events"
)

// fakeBackend records every call it receives.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string
	err   error

	eventName  string
	eventBag   bridge.Bag
	enabled    *bool
	screen     string
	override   *string
	minSession time.Duration
	timeout    time.Duration
	userID     *string
	propName   string
	propValue  *string
	props      map[string]*string
}

func (f *fakeBackend) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	return f.err
}

func (f *fakeBackend) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) LogEvent(_ context.Context, name string, params bridge.Bag) error {
	f.eventName, f.eventBag = name, params
	return f.record("LogEvent")
}

func (f *fakeBackend) SetCollectionEnabled(_ context.Context, enabled bool) error {
	f.enabled = &enabled
	return f.record("SetCollectionEnabled")
}

func (f *fakeBackend) SetCurrentScreen(_ context.Context, screen string, override *string) error {
	f.screen, f.override = screen, override
	return f.record("SetCurrentScreen")
}

func (f *fakeBackend) SetMinimumSessionDuration(_ context.Context, d time.Duration) error {
	f.minSession = d
	return f.record("SetMinimumSessionDuration")
}

func (f *fakeBackend) SetSessionTimeoutDuration(_ context.Context, d time.Duration) error {
	f.timeout = d
	return f.record("SetSessionTimeoutDuration")
}

func (f *fakeBackend) SetUserID(_ context.Context, id *string) error {
	f.userID = id
	return f.record("SetUserID")
}

func (f *fakeBackend) SetUserProperty(_ context.Context, name string, value *string) error {
	f.propName, f.propValue = name, value
	return f.record("SetUserProperty")
}

func (f *fakeBackend) SetUserProperties(_ context.Context, props map[string]*string) error {
	f.props = props
	return f.record("SetUserProperties")
}

func (f *fakeBackend) ResetAnalyticsData(context.Context) error {
	return f.record("ResetAnalyticsData")
}

func newTestService(t *testing.T) (*fakeBackend, *bridge.Dispatcher, chan *events.ActivityEvent) {
	t.Helper()
	backend := &fakeBackend{}
	published := make(chan *events.ActivityEvent, 16)
	svc := NewService(backend, events.PublisherFunc(func(_ context.Context, e *events.ActivityEvent) error {
		published <- e
		return nil
	}))
	return backend, bridge.NewDispatcher(svc.Registry(), nil), published
}

func call(t *testing.T, d *bridge.Dispatcher, method string, args map[string]any) *bridge.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := d.Call(ctx, &bridge.Call{ID: "t-" + method, Method: method, Arguments: args})
	require.NoError(t, err, "analytics:analytics_test - call %s", method)
	return resp
}

func TestRegistry_Methods(t *testing.T) {
	reg := NewService(&fakeBackend{}, nil).Registry()
	assert.Equal(t, APIVersion, reg.Version())
	assert.Equal(t, []string{
		MethodLogEvent,
		MethodResetAnalyticsData,
		MethodSetAnalyticsCollectionEnabled,
		MethodSetCurrentScreen,
		MethodSetMinimumSessionDuration,
		MethodSetSessionTimeoutDuration,
		MethodSetUserID,
		MethodSetUserProperties,
		MethodSetUserProperty,
	}, reg.Methods())
}

func TestLogEvent(t *testing.T) {
	backend, d, published := newTestService(t)

	resp := call(t, d, MethodLogEvent, map[string]any{
		"name":       "purchase",
		"parameters": map[string]any{"value": 9, "currency": "USD"},
	})
	assert.True(t, resp.Ok)
	assert.Nil(t, resp.Value)
	assert.Equal(t, "purchase", backend.eventName)
	assert.Equal(t, map[string]any{"value": int32(9), "currency": "USD"}, backend.eventBag.Native())

	e := <-published
	assert.Equal(t, Channel, e.Channel)
	assert.Equal(t, MethodLogEvent, e.Method)
	assert.Equal(t, "t-logEvent", e.CallID)
	assert.Equal(t, "purchase", e.Name)
}

func TestLogEvent_WithoutParameters(t *testing.T) {
	backend, d, _ := newTestService(t)

	resp := call(t, d, MethodLogEvent, map[string]any{"name": "invertase_event"})
	assert.True(t, resp.Ok)
	assert.Nil(t, backend.eventBag)
}

func TestLogEvent_Validation(t *testing.T) {
	tooMany := map[string]any{}
	for i := 0; i < MaxEventParameters+1; i++ {
		tooMany[fmt.Sprintf("p%d", i)] = 1
	}
	require.Len(t, tooMany, MaxEventParameters+1)

	tests := []struct {
		name        string
		args        map[string]any
		wantMessage string
	}{
		{"reserved name", map[string]any{"name": "session_start"}, "reserved event"},
		{"not alphanumeric", map[string]any{"name": "!@£$%^&*"}, "is invalid"},
		{"reserved prefix", map[string]any{"name": "firebase_thing"}, "reserved prefix"},
		{"too long", map[string]any{"name": strings.Repeat("a", MaxEventNameLength+1)}, "1 to 40"},
		{"name not a string", map[string]any{"name": 13377331}, "must be string"},
		{"missing name", map[string]any{}, "missing required argument"},
		{"parameters not a map", map[string]any{"name": "ok", "parameters": "nope"}, "must be map"},
		{"too many parameters", map[string]any{"name": "ok", "parameters": tooMany}, "Maximum number of parameters exceeded"},
		{"bad parameter name", map[string]any{"name": "ok", "parameters": map[string]any{"1st": "x"}}, "parameter name"},
		{"parameter value too long", map[string]any{"name": "ok", "parameters": map[string]any{"v": strings.Repeat("x", MaxParameterValueLength+1)}}, "exceeds"},
		{"multibyte value too long", map[string]any{"name": "ok", "parameters": map[string]any{"v": strings.Repeat("ü", MaxParameterValueLength+1)}}, "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, d, _ := newTestService(t)
			resp := call(t, d, MethodLogEvent, tt.args)
			assert.False(t, resp.Ok)
			assert.Equal(t, bridge.CodeInvalidArgument, resp.Code)
			assert.Contains(t, resp.Message, tt.wantMessage)
			assert.Empty(t, backend.called(), "backend must not be invoked")
		})
	}
}

func TestSetAnalyticsCollectionEnabled(t *testing.T) {
	backend, d, _ := newTestService(t)

	resp := call(t, d, MethodSetAnalyticsCollectionEnabled, map[string]any{"enabled": false})
	assert.True(t, resp.Ok)
	require.NotNil(t, backend.enabled)
	assert.False(t, *backend.enabled)

	resp = call(t, d, MethodSetAnalyticsCollectionEnabled, map[string]any{"enabled": "true"})
	assert.Equal(t, bridge.CodeInvalidArgument, resp.Code)
	assert.Contains(t, resp.Message, "must be bool")
}

func TestSetCurrentScreen(t *testing.T) {
	backend, d, _ := newTestService(t)

	resp := call(t, d, MethodSetCurrentScreen, map[string]any{"screenName": "home"})
	assert.True(t, resp.Ok)
	assert.Equal(t, "home", backend.screen)
	assert.Nil(t, backend.override)

	resp = call(t, d, MethodSetCurrentScreen, map[string]any{"screenName": "home", "screenClassOverride": "HomeView"})
	assert.True(t, resp.Ok)
	require.NotNil(t, backend.override)
	assert.Equal(t, "HomeView", *backend.override)

	resp = call(t, d, MethodSetCurrentScreen, map[string]any{"screenName": 666.1337})
	assert.Equal(t, bridge.CodeInvalidArgument, resp.Code)

	resp = call(t, d, MethodSetCurrentScreen, map[string]any{"screenName": "home", "screenClassOverride": 666.1337})
	assert.Equal(t, bridge.CodeInvalidArgument, resp.Code)
}

func TestSessionDurations(t *testing.T) {
	backend, d, _ := newTestService(t)

	assert.True(t, call(t, d, MethodSetMinimumSessionDuration, nil).Ok)
	assert.Equal(t, DefaultMinimumSessionDuration, backend.minSession)

	assert.True(t, call(t, d, MethodSetSessionTimeoutDuration, nil).Ok)
	assert.Equal(t, DefaultSessionTimeoutDuration, backend.timeout)

	tests := []struct {
		name    string
		method  string
		ms      any
		want    time.Duration
		wantErr bool
	}{
		{name: "int32 minimum", method: MethodSetMinimumSessionDuration, ms: int32(1337), want: 1337 * time.Millisecond},
		{name: "int64 timeout", method: MethodSetSessionTimeoutDuration, ms: int64(5_000_000_000), want: 5_000_000_000 * time.Millisecond},
		{name: "zero", method: MethodSetSessionTimeoutDuration, ms: 0, want: 0},
		{name: "largest representable", method: MethodSetMinimumSessionDuration, ms: maxDurationMillis, want: time.Duration(maxDurationMillis) * time.Millisecond},
		{name: "negative", method: MethodSetSessionTimeoutDuration, ms: -1, wantErr: true},
		{name: "overflows duration", method: MethodSetMinimumSessionDuration, ms: int64(math.MaxInt64), wantErr: true},
		{name: "just past largest", method: MethodSetSessionTimeoutDuration, ms: maxDurationMillis + 1, wantErr: true},
		{name: "fractional", method: MethodSetMinimumSessionDuration, ms: 1.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, d, _ := newTestService(t)
			resp := call(t, d, tt.method, map[string]any{"milliseconds": tt.ms})
			if tt.wantErr {
				assert.Equal(t, bridge.CodeInvalidArgument, resp.Code)
				assert.Empty(t, backend.called(), "backend must not be invoked")
				return
			}
			require.True(t, resp.Ok, resp.Message)
			got := backend.minSession
			if tt.method == MethodSetSessionTimeoutDuration {
				got = backend.timeout
			}
			assert.Equal(t, tt.want, got)
			assert.False(t, got < 0, "duration must not be negative")
		})
	}
}

func TestSetUserID(t *testing.T) {
	backend, d, published := newTestService(t)

	assert.True(t, call(t, d, MethodSetUserID, map[string]any{"id": "u-1"}).Ok)
	require.NotNil(t, backend.userID)
	assert.Equal(t, "u-1", *backend.userID)
	assert.Equal(t, []string{"SetUserID"}, backend.called(), "setUserId never falls through to other operations")
	<-published

	assert.True(t, call(t, d, MethodSetUserID, map[string]any{}).Ok)
	assert.Nil(t, backend.userID)

	resp := call(t, d, MethodSetUserID, map[string]any{"id": 666.1337})
	assert.Equal(t, bridge.CodeInvalidArgument, resp.Code)
	assert.Contains(t, resp.Message, "must be string")
}

func TestSetUserProperty(t *testing.T) {
	backend, d, _ := newTestService(t)

	assert.True(t, call(t, d, MethodSetUserProperty, map[string]any{"name": "invertase2", "value": "rn-firebase"}).Ok)
	assert.Equal(t, "invertase2", backend.propName)
	require.NotNil(t, backend.propValue)
	assert.Equal(t, "rn-firebase", *backend.propValue)

	assert.True(t, call(t, d, MethodSetUserProperty, map[string]any{"name": "invertase"}).Ok)
	assert.Nil(t, backend.propValue)

	resp := call(t, d, MethodSetUserProperty, map[string]any{"name": "invertase3", "value": 33.3333})
	assert.Contains(t, resp.Message, "must be string")

	resp = call(t, d, MethodSetUserProperty, map[string]any{"name": 1337, "value": "invertase"})
	assert.Contains(t, resp.Message, "must be string")

	resp = call(t, d, MethodSetUserProperty, map[string]any{"name": "p", "value": strings.Repeat("v", MaxUserPropertyValueLength+1)})
	assert.Equal(t, bridge.CodeInvalidArgument, resp.Code)

	accented := strings.Repeat("é", MaxUserPropertyValueLength)
	assert.True(t, call(t, d, MethodSetUserProperty, map[string]any{"name": "p", "value": accented}).Ok,
		"limit counts characters, not bytes")
	require.NotNil(t, backend.propValue)
	assert.Equal(t, accented, *backend.propValue)

	resp = call(t, d, MethodSetUserProperty, map[string]any{"name": "p", "value": accented + "é"})
	assert.Equal(t, bridge.CodeInvalidArgument, resp.Code)
}

func TestSetUserProperties(t *testing.T) {
	backend, d, _ := newTestService(t)

	resp := call(t, d, MethodSetUserProperties, map[string]any{
		"properties": map[string]any{"invertase2": "rn-firebase", "score": 3},
	})
	assert.True(t, resp.Ok)
	require.Len(t, backend.props, 2)
	assert.Equal(t, "rn-firebase", *backend.props["invertase2"])
	assert.Nil(t, backend.props["score"], "non-string values are cleared")

	resp = call(t, d, MethodSetUserProperties, map[string]any{"properties": 1337})
	assert.Equal(t, bridge.CodeInvalidArgument, resp.Code)
	assert.Contains(t, resp.Message, "must be map")
}

func TestSetUserProperties_MissingIsEmpty(t *testing.T) {
	backend, d, _ := newTestService(t)

	resp := call(t, d, MethodSetUserProperties, map[string]any{})
	require.True(t, resp.Ok, resp.Message)
	assert.Equal(t, []string{"SetUserProperties"}, backend.called())
	assert.NotNil(t, backend.props)
	assert.Empty(t, backend.props)
}

func TestResetAnalyticsData(t *testing.T) {
	backend, d, published := newTestService(t)

	assert.True(t, call(t, d, MethodResetAnalyticsData, nil).Ok)
	assert.Equal(t, []string{"ResetAnalyticsData"}, backend.called())
	assert.Equal(t, MethodResetAnalyticsData, (<-published).Method)
}

func TestBackendFailure(t *testing.T) {
	backend, d, published := newTestService(t)
	backend.err = errors.New("network unreachable")

	resp := call(t, d, MethodLogEvent, map[string]any{"name": "x"})
	assert.False(t, resp.Ok)
	assert.Equal(t, bridge.CodeUnknown, resp.Code)
	assert.Equal(t, "network unreachable", resp.Message)
	assert.Empty(t, published, "failed operations publish nothing")

	backend.err = bridge.NewOperationError("storage", errors.New("disk full"))
	resp = call(t, d, MethodResetAnalyticsData, nil)
	assert.Equal(t, "storage", resp.Code)
	assert.Equal(t, "disk full", resp.Message)
}

func TestPublishFailureDoesNotFailCall(t *testing.T) {
	svc := NewService(&fakeBackend{}, events.PublisherFunc(func(context.Context, *events.ActivityEvent) error {
		return errors.New("broker down")
	}))
	d := bridge.NewDispatcher(svc.Registry(), nil)

	assert.True(t, call(t, d, MethodSetAnalyticsCollectionEnabled, map[string]any{"enabled": true}).Ok)
}
