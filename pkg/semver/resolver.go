package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// ValidateVersion checks that v is a strict semantic version.
func ValidateVersion(v string) error {
	if !IsExactVersion(v) {
		return fmt.Errorf("%s - not a semantic version: %q", resolverLogPrefix, v)
	}
	if _, err := masterminds.StrictNewVersion(v); err != nil {
		return fmt.Errorf("%s - not a semantic version: %q: %w", resolverLogPrefix, v, err)
	}
	return nil
}

// Major returns the major component of a version string.
func Major(v string) (int, error) {
	sv, err := masterminds.NewVersion(v)
	if err != nil {
		return 0, fmt.Errorf("%s - invalid version %q: %w", resolverLogPrefix, v, err)
	}
	return int(sv.Major()), nil
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	if IsMajorOnly(rangeStr) {
		sv, err := masterminds.NewVersion(version)
		if err != nil {
			return false
		}
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}

	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}

	return constraint.Check(sv)
}
