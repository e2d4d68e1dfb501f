package pipeline

import (
	"time"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/rollback"
)

// StageResult records one stage execution. Results are appended, never
// rewritten.
type StageResult struct {
	Stage     State         `json:"stage"`
	Outcome   Outcome       `json:"outcome"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ReleaseResult is the outcome of a run. A failed run always carries at
// least one error entry.
type ReleaseResult struct {
	RunID            string                `json:"run_id"`
	Success          bool                  `json:"success"`
	Version          string                `json:"version,omitempty"`
	ReleasedPackages []string              `json:"released_packages,omitempty"`
	HostReleaseURL   string                `json:"host_release_url,omitempty"`
	RegistryURLs     []string              `json:"registry_urls,omitempty"`
	DurationMs       int64                 `json:"duration_ms"`
	Errors           []errors.ReleaseError `json:"errors"`
	Rollback         *rollback.Result      `json:"rollback,omitempty"`
	ReleasedAt       *time.Time            `json:"released_at,omitempty"`
	FinalState       State                 `json:"final_state"`
	DryRun           bool                  `json:"dry_run,omitempty"`
	Stages           []StageResult         `json:"stages"`
}

// Failures returns the error-severity entries.
func (r *ReleaseResult) Failures() []errors.ReleaseError {
	var out []errors.ReleaseError
	for _, e := range r.Errors {
		if !e.IsWarning() {
			out = append(out, e)
		}
	}
	return out
}

// Warnings returns the warning-severity entries.
func (r *ReleaseResult) Warnings() []errors.ReleaseError {
	var out []errors.ReleaseError
	for _, e := range r.Errors {
		if e.IsWarning() {
			out = append(out, e)
		}
	}
	return out
}

// Stage returns the last result recorded for stage.
func (r *ReleaseResult) Stage(stage State) (StageResult, bool) {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Stage == stage {
			return r.Stages[i], true
		}
	}
	return StageResult{}, false
}

// Err summarises a failed run as a coded error for the CLI. It returns nil
// for a successful run.
func (r *ReleaseResult) Err() error {
	if r.Success {
		return nil
	}
	if r.Rollback != nil && !r.Rollback.Success {
		return errors.New(errors.CodeRollbackFailed, "release failed and rollback was incomplete").
			WithSuggestion("Inspect the working tree and run releasekit runs show " + r.RunID)
	}
	if r.FinalState == StateCancelled {
		return errors.New(errors.CodeUserCancelled, "release cancelled")
	}
	failures := r.Failures()
	if len(failures) == 0 {
		return errors.New(errors.CodeUnexpectedError, "release failed")
	}
	first := failures[0]
	code := first.Code
	// validation findings keep their own codes on the result
	if first.Stage == string(StageValidation) {
		code = errors.CodeValidationFailed
	}
	return errors.Newf(code, "release failed at %s: %s", first.Stage, first.Message)
}
