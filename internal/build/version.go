package build

import (
	"github.com/Masterminds/semver/v3"
)

// ValidVersion reports whether v parses as a semantic version, with or
// without the leading "v".
func ValidVersion(v string) bool {
	_, err := semver.NewVersion(v)
	return err == nil
}

// IsNewerVersion reports whether latest is strictly newer than current.
// Malformed versions compare as not newer.
func IsNewerVersion(current, latest string) bool {
	vCurrent, err := semver.NewVersion(current)
	if err != nil {
		return false
	}

	vLatest, err := semver.NewVersion(latest)
	if err != nil {
		return false
	}

	return vLatest.GreaterThan(vCurrent)
}
