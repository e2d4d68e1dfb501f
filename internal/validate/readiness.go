package validate

import (
	"context"
	"path/filepath"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/exec"
	"github.com/felixgeelhaar/releasekit/internal/health"
)

// ReadinessOptions configures CheckReadiness.
type ReadinessOptions struct {
	Dir      string
	Manifest string // relative to Dir; defaults to package.json
	Runner   exec.Runner
}

// readinessCodes maps each check to the code its failure carries.
var readinessCodes = map[string]errors.Code{
	"git-binary":     errors.CodeGitUnavailable,
	"git-repository": errors.CodeNotGitRepo,
	"clean-tree":     errors.CodeDirtyWorkingTree,
	"root-manifest":  errors.CodePackageMissing,
}

// CheckReadiness reports whether dir can be released from. Unhealthy
// checks are errors and degraded ones warnings.
func CheckReadiness(ctx context.Context, opts ReadinessOptions) Result {
	runner := opts.Runner
	if runner == nil {
		runner = exec.NewLocalRunner(0)
	}
	manifest := opts.Manifest
	if manifest == "" {
		manifest = "package.json"
	}
	if !filepath.IsAbs(manifest) {
		manifest = filepath.Join(opts.Dir, manifest)
	}

	m := health.NewManager()
	m.AddChecker(health.NewGitChecker(runner))
	m.AddChecker(health.NewRepositoryChecker(runner, opts.Dir))
	m.AddChecker(health.NewCleanTreeChecker(runner, opts.Dir))
	m.AddChecker(health.NewManifestChecker(manifest))

	var res Result
	for _, report := range m.Check(ctx) {
		if report.Result.Status == health.StatusHealthy {
			continue
		}
		code, ok := readinessCodes[report.Name]
		if !ok {
			code = errors.CodeNotReady
		}
		severity := errors.SeverityError
		if report.Result.Status == health.StatusDegraded {
			severity = errors.SeverityWarning
		}
		msg := report.Result.Message
		if report.Result.Suggestion != "" {
			msg += " (" + report.Result.Suggestion + ")"
		}
		res.add(Finding{Code: code, Message: msg, Severity: severity, Rule: report.Name})
	}
	res.Valid = len(res.Errors) == 0
	return res
}
