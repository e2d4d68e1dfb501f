// Package health runs the readiness checks a release needs before it
// touches anything: tooling on PATH, a git working tree, a clean tree and
// a root manifest.
//
// Example usage:
//
//	manager := health.NewManager()
//	manager.AddChecker(health.NewGitChecker(runner))
//	manager.AddChecker(health.NewRepositoryChecker(runner, dir))
//
//	for _, report := range manager.Check(ctx) {
//	    logger.Info("readiness", "check", report.Name, "status", report.Result.Status)
//	}
package health

import (
	"context"
	"time"
)

// Checker defines the interface for readiness checks.
type Checker interface {
	// Name returns the unique name of this check, lowercase with hyphens
	// (e.g. "git-binary", "clean-tree").
	Name() string

	// Check performs the check. It should respect the context deadline.
	Check(ctx context.Context) *Result
}

// Status represents the check status.
type Status string

const (
	// StatusHealthy means the release can proceed.
	StatusHealthy Status = "healthy"

	// StatusDegraded means the release can proceed but the user should
	// know something is off.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means the release must not start.
	StatusUnhealthy Status = "unhealthy"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Result represents the result of a check.
type Result struct {
	Status     Status
	Message    string
	Suggestion string
	Details    map[string]any
	Latency    time.Duration
}

// NewResult creates a result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail to the result and returns the result for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// WithSuggestion sets the remediation hint.
func (r *Result) WithSuggestion(s string) *Result {
	r.Suggestion = s
	return r
}

// WithLatency sets the latency and returns the result for chaining.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

// Healthy creates a healthy result with the given message.
func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

// Degraded creates a degraded result with the given message.
func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

// Unhealthy creates an unhealthy result with the given message.
func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}
