// Package validate gates a release plan before anything is mutated.
package validate

import (
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/log"
	"github.com/felixgeelhaar/releasekit/internal/plan"
	"github.com/felixgeelhaar/releasekit/internal/semver"
)

// Default rule names.
const (
	RuleVersionFormat       = "version-format"
	RuleVersionProgression  = "version-progression"
	RuleBumpTypeConsistency = "bump-type-consistency"
	RuleReleaseNotes        = "release-notes-presence"
	RulePackageExistence    = "package-existence"
)

// Finding is one failed rule.
type Finding struct {
	Code     errors.Code     `json:"code"`
	Message  string          `json:"message"`
	Severity errors.Severity `json:"severity"`
	Rule     string          `json:"rule"`
}

// Result is a fresh validation outcome. Valid means no error findings.
type Result struct {
	Valid    bool      `json:"valid"`
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
}

func (r *Result) add(f Finding) {
	if f.Severity == errors.SeverityWarning {
		r.Warnings = append(r.Warnings, f)
		return
	}
	r.Errors = append(r.Errors, f)
}

// CheckFunc reports whether the plan passes and, if not, why.
type CheckFunc func(p *plan.ReleasePlan) (passed bool, message string)

// Rule is a named check with a fixed severity and code.
type Rule struct {
	Name     string
	Code     errors.Code
	Severity errors.Severity
	Check    CheckFunc
}

// Validator runs rules in registration order.
type Validator struct {
	rules  []Rule
	logger *log.Logger
}

// New creates a validator with the default rules.
func New(logger *log.Logger) *Validator {
	v := &Validator{logger: log.OrDiscard(logger)}
	for _, r := range DefaultRules() {
		v.AddRule(r)
	}
	return v
}

// AddRule appends a rule. An empty severity means error.
func (v *Validator) AddRule(r Rule) {
	if r.Severity == "" {
		r.Severity = errors.SeverityError
	}
	if r.Code == "" {
		r.Code = errors.CodeValidationFailed
	}
	v.rules = append(v.rules, r)
}

// Rules returns the registered rule names.
func (v *Validator) Rules() []string {
	names := make([]string, len(v.rules))
	for i, r := range v.rules {
		names[i] = r.Name
	}
	return names
}

// Validate runs every rule. A panicking rule becomes an error finding for
// that rule and the remaining rules still run.
func (v *Validator) Validate(p *plan.ReleasePlan) Result {
	var res Result
	for _, rule := range v.rules {
		if f, failed := v.run(rule, p); failed {
			res.add(f)
		}
	}
	res.Valid = len(res.Errors) == 0
	v.logger.Debug("plan validated", "valid", res.Valid, "errors", len(res.Errors), "warnings", len(res.Warnings))
	return res
}

func (v *Validator) run(rule Rule, p *plan.ReleasePlan) (f Finding, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation rule panicked", "rule", rule.Name, "panic", r)
			f = Finding{
				Code:     errors.CodeRulePanic,
				Message:  fmt.Sprintf("Validation rule %s failed: %v", rule.Name, r),
				Severity: errors.SeverityError,
				Rule:     rule.Name,
			}
			failed = true
		}
	}()

	passed, msg := rule.Check(p)
	if passed {
		return Finding{}, false
	}
	return Finding{Code: rule.Code, Message: msg, Severity: rule.Severity, Rule: rule.Name}, true
}

// DefaultRules returns the built-in rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     RuleVersionFormat,
			Code:     errors.CodeInvalidVersion,
			Severity: errors.SeverityError,
			Check: func(p *plan.ReleasePlan) (bool, string) {
				if semver.Valid(p.Version.From) && semver.Valid(p.Version.To) {
					return true, ""
				}
				return false, fmt.Sprintf("Invalid version format: from=%q, to=%q", p.Version.From, p.Version.To)
			},
		},
		{
			Name:     RuleVersionProgression,
			Code:     errors.CodeVersionNotGreater,
			Severity: errors.SeverityError,
			Check: func(p *plan.ReleasePlan) (bool, string) {
				if semver.Greater(p.Version.To, p.Version.From) {
					return true, ""
				}
				return false, fmt.Sprintf("New version %s must be greater than current version %s", p.Version.To, p.Version.From)
			},
		},
		{
			Name:     RuleBumpTypeConsistency,
			Code:     errors.CodeBumpMismatch,
			Severity: errors.SeverityWarning,
			Check: func(p *plan.ReleasePlan) (bool, string) {
				derived := semver.DeriveBump(p.Version.From, p.Version.To)
				if derived == p.Version.Type {
					return true, ""
				}
				return false, fmt.Sprintf("Declared bump type %s does not match %s -> %s (%s)",
					p.Version.Type, p.Version.From, p.Version.To, derived)
			},
		},
		{
			Name:     RuleReleaseNotes,
			Code:     errors.CodeMissingNotes,
			Severity: errors.SeverityWarning,
			Check: func(p *plan.ReleasePlan) (bool, string) {
				if strings.TrimSpace(p.ReleaseNotes.Content) != "" {
					return true, ""
				}
				return false, "Release notes are empty"
			},
		},
		{
			Name:     RulePackageExistence,
			Code:     errors.CodePackageMissing,
			Severity: errors.SeverityError,
			Check: func(p *plan.ReleasePlan) (bool, string) {
				var missing []string
				for _, pkg := range p.Packages {
					if _, err := os.Stat(pkg.Path); err != nil {
						missing = append(missing, pkg.Path)
					}
				}
				if len(missing) == 0 {
					return true, ""
				}
				return false, "Package manifest not found: " + strings.Join(missing, ", ")
			},
		},
	}
}

// Entries converts every finding into result entries for stage.
func (r Result) Entries(stage string) []errors.ReleaseError {
	out := make([]errors.ReleaseError, 0, len(r.Errors)+len(r.Warnings))
	for _, f := range append(append([]Finding(nil), r.Errors...), r.Warnings...) {
		out = append(out, errors.ReleaseError{Code: f.Code, Message: f.Message, Severity: f.Severity, Stage: stage})
	}
	return out
}
