package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/releasekit/internal/plan"
)

type reviewKeys struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Back    key.Binding
	Approve key.Binding
	Reject  key.Binding
}

func (k reviewKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Back, k.Approve, k.Reject}
}

func (k reviewKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultReviewKeys = reviewKeys{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Open:    key.NewBinding(key.WithKeys("enter", "right", "l"), key.WithHelp("enter", "details")),
	Back:    key.NewBinding(key.WithKeys("left", "h", "esc"), key.WithHelp("esc", "back")),
	Approve: key.NewBinding(key.WithKeys("a", "A"), key.WithHelp("a", "release")),
	Reject:  key.NewBinding(key.WithKeys("r", "R", "q", "ctrl+c"), key.WithHelp("r/q", "cancel")),
}

// reviewModel walks the packages of a plan before the release goes ahead.
type reviewModel struct {
	plan     *plan.ReleasePlan
	styles   Styles
	keys     reviewKeys
	help     help.Model
	cursor   int
	detail   bool
	decided  bool
	approved bool
}

func newReviewModel(p *plan.ReleasePlan, s Styles) reviewModel {
	return reviewModel{plan: p, styles: s, keys: defaultReviewKeys, help: help.New()}
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Approve):
			m.decided, m.approved = true, true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Reject):
			m.decided, m.approved = true, false
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if !m.detail && m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if !m.detail && m.cursor < len(m.plan.Packages)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Open):
			if len(m.plan.Packages) > 0 {
				m.detail = true
			}
		case key.Matches(msg, m.keys.Back):
			m.detail = false
		}
	}
	return m, nil
}

func (m reviewModel) View() string {
	s := m.styles
	if m.decided {
		if m.approved {
			return s.Success.Render(fmt.Sprintf("✓ Releasing %s", m.plan.TagName())) + "\n"
		}
		return s.Error.Render("✗ Release cancelled") + "\n"
	}

	var b strings.Builder
	b.WriteString(s.Title.Render(fmt.Sprintf("Release %s", m.plan.TagName())))
	b.WriteString("\n")
	b.WriteString(s.Label.Render("Version:  "))
	b.WriteString(s.Value.Render(fmt.Sprintf("%s → %s", m.plan.Version.From, m.plan.Version.To)))
	b.WriteString(s.Muted.Render(fmt.Sprintf(" (%s)", m.plan.Version.Type)))
	b.WriteString("\n\n")

	if m.detail {
		pkg := m.plan.Packages[m.cursor]
		fmt.Fprintf(&b, "%s %d of %d\n\n", s.Label.Render("Package"), m.cursor+1, len(m.plan.Packages))
		for _, row := range [][2]string{
			{"Name", pkg.Name},
			{"Manifest", pkg.Path},
			{"From", pkg.FromVersion},
			{"To", pkg.ToVersion},
			{"Bump", string(pkg.Type)},
			{"Publish", fmt.Sprint(pkg.NeedsPublishing)},
			{"Priority", fmt.Sprint(pkg.Priority)},
		} {
			fmt.Fprintf(&b, "  %s %s\n", s.Label.Render(fmt.Sprintf("%-9s", row[0]+":")), row[1])
		}
	} else {
		for i, pkg := range m.plan.Packages {
			cursor := "  "
			if i == m.cursor {
				cursor = "→ "
			}
			line := fmt.Sprintf("%s%s %s → %s", cursor, pkg.Name, pkg.FromVersion, pkg.ToVersion)
			if !pkg.NeedsPublishing {
				line += s.Muted.Render(" (private)")
			}
			if i == m.cursor {
				line = s.Value.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

// Reviewer is a Confirmer that lets the user browse each package of the
// plan before releasing. Quitting without a decision cancels.
type Reviewer struct {
	Styles Styles
	// Options are passed to the bubbletea program; tests use them to feed
	// input and discard output.
	Options []tea.ProgramOption
}

// NewReviewer creates a plan reviewer with the default styles.
func NewReviewer() *Reviewer {
	return &Reviewer{Styles: DefaultStyles()}
}

// Confirm runs the review screen and reports whether the plan was approved.
func (r *Reviewer) Confirm(ctx context.Context, p *plan.ReleasePlan) (bool, error) {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, r.Options...)
	final, err := tea.NewProgram(newReviewModel(p, r.Styles), opts...).Run()
	if err != nil {
		return false, fmt.Errorf("plan review failed: %w", err)
	}
	m, ok := final.(reviewModel)
	if !ok {
		return false, fmt.Errorf("unexpected model type: %T", final)
	}
	return m.decided && m.approved, nil
}
