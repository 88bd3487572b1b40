// Package version holds the harness version and parses broker versions.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the harness version.
const Current = "1.0.0"

// Version is a parsed "major.minor.patch" version.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// Parse parses a "major.minor" or "major.minor.patch" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor[.patch]", s)
	}

	var nums [3]uint16
	names := [3]string{"major", "minor", "patch"}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || p == "" {
			return Version{}, fmt.Errorf("invalid version %q: bad %s component", s, names[i])
		}
		nums[i] = uint16(n)
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String returns the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v is the same as or newer than other.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}
	return v.Patch >= other.Patch
}

const bannerMarker = "mosquitto version "

// FromBrokerBanner finds the version in the startup line a mosquitto broker
// writes to stderr, e.g. "1700000000: mosquitto version 2.0.18 starting".
func FromBrokerBanner(text string) (Version, bool) {
	for line := range strings.Lines(text) {
		i := strings.Index(line, bannerMarker)
		if i < 0 {
			continue
		}
		fields := strings.Fields(line[i+len(bannerMarker):])
		if len(fields) == 0 {
			continue
		}
		if v, err := Parse(fields[0]); err == nil {
			return v, true
		}
	}
	return Version{}, false
}
