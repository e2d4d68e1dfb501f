package tui

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/pipeline"
	"github.com/felixgeelhaar/releasekit/internal/plan"
	"github.com/felixgeelhaar/releasekit/internal/validate"
)

// RenderPlan renders a release plan for review
func RenderPlan(p *plan.ReleasePlan, s Styles) string {
	var b strings.Builder

	b.WriteString(s.Label.Render("Version:  "))
	b.WriteString(s.Value.Render(fmt.Sprintf("%s → %s", p.Version.From, p.Version.To)))
	b.WriteString(s.Muted.Render(fmt.Sprintf(" (%s)", p.Version.Type)))
	b.WriteString("\n")
	b.WriteString(s.Label.Render("Tag:      "))
	b.WriteString(s.Value.Render(p.TagName()))
	b.WriteString("\n")
	if p.Version.Rationale != "" {
		b.WriteString(s.Label.Render("Reason:   "))
		b.WriteString(p.Version.Rationale)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(s.Label.Render("Packages:"))
	b.WriteString("\n")
	for _, pkg := range p.Packages {
		publish := ""
		if !pkg.NeedsPublishing {
			publish = s.Muted.Render(" (private)")
		}
		fmt.Fprintf(&b, "  • %s %s → %s%s\n", pkg.Name, pkg.FromVersion, pkg.ToVersion, publish)
	}

	if notes := strings.TrimSpace(p.ReleaseNotes.Content); notes != "" {
		b.WriteString("\n")
		b.WriteString(s.Label.Render("Release notes:"))
		b.WriteString("\n")
		b.WriteString(s.Muted.Render(notes))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderValidation renders validation findings, errors first
func RenderValidation(res validate.Result, s Styles) string {
	var b strings.Builder
	if res.Valid {
		b.WriteString(s.Success.Render("✓ Plan is valid"))
	} else {
		b.WriteString(s.Error.Render("✗ Plan is invalid"))
	}
	b.WriteString("\n")
	for _, f := range res.Errors {
		fmt.Fprintf(&b, "  %s %s: %s\n", s.Error.Render("error"), f.Code, f.Message)
	}
	for _, f := range res.Warnings {
		fmt.Fprintf(&b, "  %s %s: %s\n", s.Warning.Render("warn "), f.Code, f.Message)
	}
	return b.String()
}

func stageIcon(sr pipeline.StageResult, s Styles) string {
	switch sr.Outcome {
	case pipeline.OutcomeSuccess:
		return s.Success.Render("✓")
	case pipeline.OutcomeWarning:
		return s.Warning.Render("!")
	case pipeline.OutcomeSkipped:
		return s.Muted.Render("-")
	default:
		return s.Error.Render("✗")
	}
}

// RenderResult renders a finished run: stages, errors and rollback
func RenderResult(res *pipeline.ReleaseResult, s Styles) string {
	var b strings.Builder

	switch {
	case res.Success && res.DryRun:
		b.WriteString(s.Success.Render(fmt.Sprintf("Dry run of %s completed", res.Version)))
	case res.Success:
		b.WriteString(s.Success.Render(fmt.Sprintf("Released %s", res.Version)))
	case res.FinalState == pipeline.StateCancelled:
		b.WriteString(s.Warning.Render("Release cancelled"))
	default:
		b.WriteString(s.Error.Render("Release failed"))
	}
	b.WriteString(s.Muted.Render(fmt.Sprintf("  run %s, %dms", res.RunID, res.DurationMs)))
	b.WriteString("\n\n")

	for _, sr := range res.Stages {
		line := fmt.Sprintf("%s %-20s %s", stageIcon(sr, s), sr.Stage, s.Muted.Render(string(sr.Outcome)))
		if sr.Error != "" {
			line += "  " + sr.Error
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if res.HostReleaseURL != "" {
		b.WriteString("\n")
		b.WriteString(s.Label.Render("Release: "))
		b.WriteString(res.HostReleaseURL)
		b.WriteString("\n")
	}
	for _, u := range res.RegistryURLs {
		b.WriteString(s.Label.Render("Package: "))
		b.WriteString(u)
		b.WriteString("\n")
	}

	if len(res.Errors) > 0 {
		b.WriteString("\n")
		for _, e := range res.Errors {
			style := s.Error
			if e.Severity == errors.SeverityWarning {
				style = s.Warning
			}
			fmt.Fprintf(&b, "%s [%s] %s: %s\n", style.Render(string(e.Severity)), e.Stage, e.Code, e.Message)
		}
	}

	if rb := res.Rollback; rb != nil {
		b.WriteString("\n")
		if rb.Success {
			b.WriteString(s.Warning.Render("Rolled back local changes"))
		} else {
			b.WriteString(s.Error.Render("Rollback incomplete, manual cleanup required"))
		}
		b.WriteString("\n")
		for _, o := range rb.Outcomes {
			status := "ok"
			switch {
			case o.Skipped:
				status = "nothing to undo"
			case !o.Success:
				status = errors.Join(o.Errors)
			case o.Detail != "":
				status = o.Detail
			}
			fmt.Fprintf(&b, "  %-10s %s\n", o.Component, status)
		}
	}

	return s.Border.Render(strings.TrimRight(b.String(), "\n"))
}
