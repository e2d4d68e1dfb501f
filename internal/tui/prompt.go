package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/releasekit/internal/plan"
)

// Confirmer asks on the terminal whether to go ahead with a release plan.
type Confirmer struct {
	Styles Styles
	// Accessible switches huh to its screen-reader friendly mode.
	Accessible bool
}

// NewConfirmer creates a terminal confirmer with the default styles.
func NewConfirmer() *Confirmer {
	return &Confirmer{Styles: DefaultStyles()}
}

// Confirm shows the plan and asks for a yes/no answer. Aborting the form
// (ctrl+c) is a "no", not an error.
func (c *Confirmer) Confirm(ctx context.Context, p *plan.ReleasePlan) (bool, error) {
	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Release %s?", p.TagName())).
			Description(RenderPlan(p, c.Styles)).
			Affirmative("Release").
			Negative("Cancel").
			Value(&confirmed),
	)).WithAccessible(c.Accessible)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(ctx context.Context, message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(message).
			Value(&confirmed),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

var ciEnvVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"TRAVIS",
	"CIRCLECI",
	"BUILDKITE",
}

// InCI reports whether a known CI environment variable is set.
func InCI() bool {
	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

// ShouldPrompt returns true if prompts should be shown based on environment.
// Prompts are disabled in CI environments or when stdin is not a terminal.
func ShouldPrompt() bool {
	return !InCI() && IsInteractive()
}
