package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"1.0.0", true},
		{"0.0.1", true},
		{"1.2.3-alpha.1", true},
		{"1.2.3-0.3.7", true},
		{"1.2.3+build.5", true},
		{"1.2.3-rc.1+sha.abc", true},
		{"v1.2.3", false},
		{"1.2", false},
		{"01.2.3", false},
		{"1.2.3-01", false},
		{"1.2.3-", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Valid(tt.input); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	v, err := Parse("v2.10.3-beta.2+exp")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 2, Minor: 10, Patch: 3, Prerelease: "beta.2", Build: "exp"}, v)
	assert.Equal(t, "2.10.3-beta.2+exp", v.String())

	_, err = Parse("vv1.0.0")
	assert.Error(t, err)
}

func TestTagName(t *testing.T) {
	assert.Equal(t, "v1.2.3", TagName("1.2.3"))
	assert.Equal(t, "v1.2.3", TagName("v1.2.3"))
}

func TestGreaterBoundaries(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{"1.0.0", "1.0.0", false},
		{"1.0.0", "0.9.9", false},
		{"1.0.0", "1.0.1", true},
		{"1.0.0-rc.1", "1.0.0", true},
		{"1.0.0", "1.0.0-rc.1", false},
		{"1.0.0-alpha", "1.0.0-alpha.1", true},
		{"1.0.0+a", "1.0.0+b", false},
		{"1.9.0", "1.10.0", true},
		{"bogus", "1.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			if got := Greater(tt.to, tt.from); got != tt.want {
				t.Errorf("Greater(%q, %q) = %v, want %v", tt.to, tt.from, got, tt.want)
			}
		})
	}
}

func TestDeriveBump(t *testing.T) {
	assert.Equal(t, BumpMajor, DeriveBump("1.4.2", "2.0.0"))
	assert.Equal(t, BumpMinor, DeriveBump("1.0.0", "1.1.0"))
	assert.Equal(t, BumpPatch, DeriveBump("1.0.0", "1.0.1"))
	assert.Equal(t, BumpNone, DeriveBump("1.0.0-rc.1", "1.0.0"))
	assert.Equal(t, BumpNone, DeriveBump("x", "1.0.0"))
}

func TestIncrement(t *testing.T) {
	tests := []struct {
		version string
		bump    Bump
		want    string
	}{
		{"1.2.3", BumpMajor, "2.0.0"},
		{"1.2.3", BumpMinor, "1.3.0"},
		{"1.2.3", BumpPatch, "1.2.4"},
		{"1.2.3", BumpNone, "1.2.4"},
		{"1.2.3-rc.1", BumpPatch, "1.2.3"},
	}
	for _, tt := range tests {
		got, err := Increment(tt.version, tt.bump)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s + %s", tt.version, tt.bump)
	}
}

func TestParseBump(t *testing.T) {
	b, err := ParseBump(" Minor ")
	require.NoError(t, err)
	assert.Equal(t, BumpMinor, b)

	_, err = ParseBump("huge")
	assert.Error(t, err)
}
