// Package semver validates, orders and classifies semantic versions.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	modsemver "golang.org/x/mod/semver"
)

var pattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
	`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

// Bump is a release bump type.
type Bump string

const (
	BumpMajor Bump = "major"
	BumpMinor Bump = "minor"
	BumpPatch Bump = "patch"
	BumpNone  Bump = "none"
)

// ParseBump normalises a bump name. Unknown names are an error.
func ParseBump(s string) (Bump, error) {
	switch b := Bump(strings.ToLower(strings.TrimSpace(s))); b {
	case BumpMajor, BumpMinor, BumpPatch, BumpNone:
		return b, nil
	default:
		return "", fmt.Errorf("unknown bump type %q", s)
	}
}

// Version is a parsed semantic version.
type Version struct {
	Major, Minor, Patch uint64
	Prerelease          string
	Build               string
}

// String renders the version without a "v" prefix.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Valid reports whether s is a semantic version without a "v" prefix.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Parse parses s. A single leading "v" is tolerated.
func Parse(s string) (Version, error) {
	m := pattern.FindStringSubmatch(strings.TrimPrefix(s, "v"))
	if m == nil {
		return Version{}, fmt.Errorf("invalid semantic version %q", s)
	}
	var v Version
	var err error
	if v.Major, err = strconv.ParseUint(m[1], 10, 64); err != nil {
		return Version{}, fmt.Errorf("invalid major in %q: %w", s, err)
	}
	if v.Minor, err = strconv.ParseUint(m[2], 10, 64); err != nil {
		return Version{}, fmt.Errorf("invalid minor in %q: %w", s, err)
	}
	if v.Patch, err = strconv.ParseUint(m[3], 10, 64); err != nil {
		return Version{}, fmt.Errorf("invalid patch in %q: %w", s, err)
	}
	v.Prerelease = m[4]
	v.Build = m[5]
	return v, nil
}

// Canonical strips one leading "v".
func Canonical(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}

// TagName returns the tag for a version: exactly one "v" prefix.
func TagName(version string) string {
	return "v" + Canonical(version)
}

// Compare returns -1, 0 or +1 by semver precedence. Build metadata is
// ignored. Invalid versions sort before valid ones.
func Compare(a, b string) int {
	return modsemver.Compare(TagName(a), TagName(b))
}

// Greater reports whether to is strictly greater than from.
func Greater(to, from string) bool {
	return Valid(Canonical(to)) && Valid(Canonical(from)) && Compare(to, from) > 0
}

// DeriveBump classifies the change from one version to another by the
// first differing segment. Equal cores yield BumpNone, as do
// unparseable inputs.
func DeriveBump(from, to string) Bump {
	f, err := Parse(from)
	if err != nil {
		return BumpNone
	}
	t, err := Parse(to)
	if err != nil {
		return BumpNone
	}
	switch {
	case f.Major != t.Major:
		return BumpMajor
	case f.Minor != t.Minor:
		return BumpMinor
	case f.Patch != t.Patch:
		return BumpPatch
	default:
		return BumpNone
	}
}

// Increment applies bump to version. BumpNone is treated as a patch.
func Increment(version string, bump Bump) (string, error) {
	v, err := Parse(version)
	if err != nil {
		return "", err
	}
	switch bump {
	case BumpMajor:
		v = Version{Major: v.Major + 1}
	case BumpMinor:
		v = Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		if v.Prerelease != "" {
			// 1.2.3-rc.1 releases as 1.2.3
			v = Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
		} else {
			v = Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
		}
	}
	return v.String(), nil
}
