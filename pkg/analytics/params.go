package analytics

import (
	"fmt"
	"regexp"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/morezero/analytics-bridge/pkg/bridge"
)

// Limits enforced before a call reaches the backend.
const (
	MaxEventNameLength         = 40
	MaxEventParameters         = 25
	MaxParameterNameLength     = 40
	MaxParameterValueLength    = 100
	MaxUserPropertyNameLength  = 24
	MaxUserPropertyValueLength = 36
	MaxUserIDLength            = 256
)

// maxDurationMillis is the largest millisecond count a time.Duration holds.
const maxDurationMillis = math.MaxInt64 / int64(time.Millisecond)

// Defaults applied when a duration call omits its argument.
const (
	DefaultMinimumSessionDuration = 10 * time.Second
	DefaultSessionTimeoutDuration = 30 * time.Minute
)

var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

var reservedPrefixes = []string{"firebase_", "google_", "ga_"}

var reservedEvents = map[string]struct{}{
	"ad_activeview":           {},
	"ad_click":                {},
	"ad_exposure":             {},
	"ad_impression":           {},
	"ad_query":                {},
	"adunit_exposure":         {},
	"app_clear_data":          {},
	"app_remove":              {},
	"app_uninstall":           {},
	"app_update":              {},
	"error":                   {},
	"first_open":              {},
	"first_visit":             {},
	"in_app_purchase":         {},
	"notification_dismiss":    {},
	"notification_foreground": {},
	"notification_open":       {},
	"notification_receive":    {},
	"os_update":               {},
	"screen_view":             {},
	"session_start":           {},
	"user_engagement":         {},
}

// LogEventParams are the typed arguments of logEvent.
type LogEventParams struct {
	Name       string
	Parameters bridge.Bag
}

// CurrentScreenParams are the typed arguments of setCurrentScreen.
type CurrentScreenParams struct {
	ScreenName          string
	ScreenClassOverride *string
}

// UserPropertyParams are the typed arguments of setUserProperty.
type UserPropertyParams struct {
	Name  string
	Value *string
}

func parseLogEvent(b bridge.Bag) (LogEventParams, error) {
	name, err := b.String("name")
	if err != nil {
		return LogEventParams{}, err
	}
	if err := validateEventName(name); err != nil {
		return LogEventParams{}, err
	}
	params, err := b.OptionalMap("parameters")
	if err != nil {
		return LogEventParams{}, err
	}
	if len(params) > MaxEventParameters {
		return LogEventParams{}, bridge.InvalidArgument("parameters",
			fmt.Sprintf("Maximum number of parameters exceeded (%d)", MaxEventParameters))
	}
	for _, key := range params.Keys() {
		if err := validateName("parameters."+key, key, MaxParameterNameLength, "parameter name"); err != nil {
			return LogEventParams{}, err
		}
		if s, ok := params[key].AsString(); ok && exceedsLength(s, MaxParameterValueLength) {
			return LogEventParams{}, bridge.InvalidArgument("parameters."+key,
				fmt.Sprintf("value exceeds %d characters", MaxParameterValueLength))
		}
	}
	return LogEventParams{Name: name, Parameters: params}, nil
}

func parseCollectionEnabled(b bridge.Bag) (bool, error) {
	return b.Bool("enabled")
}

func parseCurrentScreen(b bridge.Bag) (CurrentScreenParams, error) {
	screen, err := b.String("screenName")
	if err != nil {
		return CurrentScreenParams{}, err
	}
	override, err := b.OptionalString("screenClassOverride")
	if err != nil {
		return CurrentScreenParams{}, err
	}
	return CurrentScreenParams{ScreenName: screen, ScreenClassOverride: override}, nil
}

func parseMinimumSessionDuration(b bridge.Bag) (time.Duration, error) {
	return parseDuration(b, DefaultMinimumSessionDuration)
}

func parseSessionTimeoutDuration(b bridge.Bag) (time.Duration, error) {
	return parseDuration(b, DefaultSessionTimeoutDuration)
}

func parseDuration(b bridge.Bag, def time.Duration) (time.Duration, error) {
	if !b.Has("milliseconds") {
		return def, nil
	}
	ms, err := b.Int64("milliseconds")
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, bridge.InvalidArgument("milliseconds", "must be zero or greater")
	}
	if ms > maxDurationMillis {
		return 0, bridge.InvalidArgument("milliseconds", fmt.Sprintf("must not exceed %d", maxDurationMillis))
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseUserID(b bridge.Bag) (*string, error) {
	id, err := b.OptionalString("id")
	if err != nil {
		return nil, err
	}
	if id != nil && exceedsLength(*id, MaxUserIDLength) {
		return nil, bridge.InvalidArgument("id", fmt.Sprintf("exceeds %d characters", MaxUserIDLength))
	}
	return id, nil
}

func parseUserProperty(b bridge.Bag) (UserPropertyParams, error) {
	name, err := b.String("name")
	if err != nil {
		return UserPropertyParams{}, err
	}
	if err := validateName("name", name, MaxUserPropertyNameLength, "user property name"); err != nil {
		return UserPropertyParams{}, err
	}
	value, err := b.OptionalString("value")
	if err != nil {
		return UserPropertyParams{}, err
	}
	if value != nil && exceedsLength(*value, MaxUserPropertyValueLength) {
		return UserPropertyParams{}, bridge.InvalidArgument("value",
			fmt.Sprintf("exceeds %d characters", MaxUserPropertyValueLength))
	}
	return UserPropertyParams{Name: name, Value: value}, nil
}

// parseUserProperties keeps string values and clears every other kind.
// Missing properties yield an empty set.
func parseUserProperties(b bridge.Bag) (map[string]*string, error) {
	props, err := b.OptionalMap("properties")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*string, len(props))
	for _, name := range props.Keys() {
		key := "properties." + name
		if err := validateName(key, name, MaxUserPropertyNameLength, "user property name"); err != nil {
			return nil, err
		}
		s, ok := props[name].AsString()
		if !ok {
			out[name] = nil
			continue
		}
		if exceedsLength(s, MaxUserPropertyValueLength) {
			return nil, bridge.InvalidArgument(key, fmt.Sprintf("exceeds %d characters", MaxUserPropertyValueLength))
		}
		out[name] = &s
	}
	return out, nil
}

// exceedsLength counts characters, not bytes.
func exceedsLength(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

func validateEventName(name string) error {
	if _, ok := reservedEvents[name]; ok {
		return bridge.InvalidArgument("name", fmt.Sprintf("'%s' is a reserved event name", name))
	}
	return validateName("name", name, MaxEventNameLength, "event name")
}

func validateName(key, name string, max int, what string) error {
	if len(name) == 0 || len(name) > max {
		return bridge.InvalidArgument(key, fmt.Sprintf("%s must be 1 to %d characters", what, max))
	}
	if !namePattern.MatchString(name) {
		return bridge.InvalidArgument(key, fmt.Sprintf("%s '%s' is invalid", what, name))
	}
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return bridge.InvalidArgument(key, fmt.Sprintf("%s '%s' uses the reserved prefix %q", what, name, prefix))
		}
	}
	return nil
}
