// Package exitcode maps command failures onto process exit codes.
package exitcode

import (
	"context"
	stderrors "errors"
	"os"

	"github.com/felixgeelhaar/releasekit/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage or configuration
	UsageError = 2

	// ReleaseFailed indicates the release failed and was rolled back
	ReleaseFailed = 3

	// RollbackFailed indicates the release failed and rollback left
	// local state behind
	RollbackFailed = 4

	// Cancelled indicates the user declined the release
	Cancelled = 5

	// AuthError indicates an authentication failure against a host or registry
	AuthError = 6

	// Interrupted indicates SIGINT/SIGTERM
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode returns the exit code for err. Coded errors map by
// code; anything else is a general error.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	var coded *errors.Error
	if !stderrors.As(err, &coded) {
		return GeneralError
	}
	switch coded.Code {
	case errors.CodeConfigInvalid, errors.CodeConfigUnreadable:
		return UsageError
	case errors.CodeRollbackFailed:
		return RollbackFailed
	case errors.CodeUserCancelled:
		return Cancelled
	case errors.CodeAuthFailed:
		return AuthError
	case errors.CodeValidationFailed,
		errors.CodeAnalysisFailed,
		errors.CodePlanningFailed,
		errors.CodePackageUpdateFailed,
		errors.CodeGitOperationsFailed,
		errors.CodePushFailed,
		errors.CodeUnexpectedError:
		return ReleaseFailed
	default:
		return GeneralError
	}
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or configuration)"
	case ReleaseFailed:
		return "Release failed"
	case RollbackFailed:
		return "Release failed and rollback was incomplete"
	case Cancelled:
		return "Release cancelled"
	case AuthError:
		return "Authentication error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
