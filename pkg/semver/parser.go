// Package semver provides channel reference parsing and SemVer checks for the bridge API version.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// ChannelRef holds the parsed components of a channel reference string.
type ChannelRef struct {
	// Full channel string (e.g., "firebase.analytics")
	Full string
	// Vendor namespace (e.g., "firebase")
	App string
	// Plugin name within the namespace (e.g., "analytics")
	Name string
	// Version range if specified (e.g., "^1.0.0", "1", ""); empty string means any version
	Range string
	// Raw input string
	Raw string
}

var (
	channelNameRegex  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*$`)
	appNameRegex      = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseChannelRef parses a channel reference string.
//
// Supported formats:
//   - firebase.analytics           (no version)
//   - firebase.analytics@1         (major only)
//   - firebase.analytics@1.0.0     (exact version)
//   - firebase.analytics@^1.0.0    (caret range)
func ParseChannelRef(input string) (*ChannelRef, error) {
	raw := strings.TrimSpace(input)

	capPart, rangeStr, _ := strings.Cut(raw, "@")

	app, name, ok := strings.Cut(capPart, ".")
	if !ok {
		return nil, fmt.Errorf("%s - invalid channel format, missing namespace: %s", logPrefix, raw)
	}
	if !ValidateAppName(app) || !ValidateChannelName(name) {
		return nil, fmt.Errorf("%s - invalid channel format: %s", logPrefix, raw)
	}

	return &ChannelRef{
		Full:  capPart,
		App:   app,
		Name:  name,
		Range: rangeStr,
		Raw:   raw,
	}, nil
}

// String renders the reference back to its textual form.
func (r *ChannelRef) String() string {
	if r.Range != "" {
		return r.Full + "@" + r.Range
	}
	return r.Full
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// ValidateChannelName validates a plugin name (letters, digits, dots, hyphens, underscores).
func ValidateChannelName(name string) bool {
	return channelNameRegex.MatchString(name)
}

// ValidateAppName validates a namespace (lowercase, alphanumeric, hyphens).
func ValidateAppName(app string) bool {
	return appNameRegex.MatchString(app)
}
