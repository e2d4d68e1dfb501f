package tui

import (
	"testing"
)

func TestIsInteractive(t *testing.T) {
	// Depends on how tests are run; it must only not panic.
	_ = IsInteractive()
}

func TestShouldPromptInCI(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"GitHub Actions", "GITHUB_ACTIONS", "true"},
		{"GitLab CI", "GITLAB_CI", "true"},
		{"Jenkins", "JENKINS_URL", "http://jenkins.local"},
		{"Generic CI", "CI", "true"},
		{"Buildkite", "BUILDKITE", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range ciEnvVars {
				t.Setenv(key, "")
			}
			t.Setenv(tt.key, tt.value)

			if !InCI() {
				t.Errorf("InCI() = false with %s set", tt.key)
			}
			if ShouldPrompt() {
				t.Errorf("ShouldPrompt() = true with %s set", tt.key)
			}
		})
	}
}

func TestInCIWithoutMarkers(t *testing.T) {
	for _, key := range ciEnvVars {
		t.Setenv(key, "")
	}
	if InCI() {
		t.Error("InCI() = true with every marker empty")
	}
}

func TestNewConfirmer(t *testing.T) {
	c := NewConfirmer()
	if c.Accessible {
		t.Error("accessible mode should be opt-in")
	}
}
