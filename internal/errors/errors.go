package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique release error identifier
type Code string

// Component error codes
const (
	// Version and validation errors
	CodeInvalidVersion    Code = "INVALID_VERSION"
	CodeVersionNotGreater Code = "VERSION_NOT_GREATER"
	CodeBumpMismatch      Code = "BUMP_TYPE_MISMATCH"
	CodeMissingNotes      Code = "RELEASE_NOTES_MISSING"
	CodePackageMissing    Code = "PACKAGE_NOT_FOUND"
	CodeRulePanic         Code = "RULE_PANIC"
	CodeNotReady          Code = "NOT_READY"
	CodeDirtyWorkingTree  Code = "DIRTY_WORKING_TREE"
	CodeGitUnavailable    Code = "GIT_UNAVAILABLE"

	// File errors
	CodeFileNotFound    Code = "FILE_NOT_FOUND"
	CodeParseError      Code = "PARSE_ERROR"
	CodeWriteError      Code = "WRITE_ERROR"
	CodeVersionExists   Code = "VERSION_EXISTS"
	CodeUnexpectedError Code = "UNEXPECTED_ERROR"

	// Source-control errors
	CodeNotGitRepo      Code = "NOT_GIT_REPO"
	CodeCommitError     Code = "COMMIT_ERROR"
	CodeStageError      Code = "STAGE_ERROR"
	CodeTagExists       Code = "TAG_EXISTS"
	CodeTagError        Code = "TAG_ERROR"
	CodePushError       Code = "PUSH_ERROR"
	CodePushTagsError   Code = "PUSH_TAGS_ERROR"
	CodeNoRollbackState Code = "NO_ROLLBACK_STATE"
	CodeResetError      Code = "RESET_ERROR"
	CodeDeleteTagError  Code = "DELETE_TAG_ERROR"
	CodeSnapshotError   Code = "SNAPSHOT_ERROR"

	// Publishing errors
	CodeAuthFailed            Code = "AUTHENTICATION_FAILED"
	CodeReleaseExists         Code = "RELEASE_EXISTS"
	CodeReleaseCreationFailed Code = "RELEASE_CREATION_FAILED"
	CodeArtifactUploadFailed  Code = "ARTIFACT_UPLOAD_FAILED"
	CodePackageInvalid        Code = "PACKAGE_INVALID"
	CodePackageVersionExists  Code = "PACKAGE_VERSION_EXISTS"
	CodePublishFailed         Code = "PUBLISH_FAILED"
	CodePublishSkipped        Code = "PUBLISH_SKIPPED"
	CodeRegistryError         Code = "REGISTRY_ERROR"
	CodeReleaseNotFound       Code = "RELEASE_NOT_FOUND"
	CodeReleaseLookupFailed   Code = "RELEASE_LOOKUP_FAILED"
	CodeReleaseDeleteFailed   Code = "RELEASE_DELETE_FAILED"
	CodeRemoteTagNotFound     Code = "REMOTE_TAG_NOT_FOUND"

	// Pipeline errors
	CodeAnalysisFailed        Code = "ANALYSIS_FAILED"
	CodePlanningFailed        Code = "PLANNING_FAILED"
	CodeValidationFailed      Code = "VALIDATION_FAILED"
	CodeUserCancelled         Code = "USER_CANCELLED"
	CodePackageUpdateFailed   Code = "PACKAGE_UPDATE_FAILED"
	CodeChangelogUpdateFailed Code = "CHANGELOG_UPDATE_FAILED"
	CodeGitOperationsFailed   Code = "GIT_OPERATIONS_FAILED"
	CodePushFailed            Code = "PUSH_FAILED"
	CodeHostPublishFailed     Code = "HOST_PUBLISH_FAILED"
	CodeRegistryPublishFailed Code = "REGISTRY_PUBLISH_FAILED"
	CodeRollbackFailed        Code = "ROLLBACK_FAILED"

	// Run state errors
	CodeRunNotFound      Code = "RUN_NOT_FOUND"
	CodeRunNotResumable  Code = "RUN_NOT_RESUMABLE"
	CodeConfigInvalid    Code = "CONFIG_INVALID"
	CodeConfigUnreadable Code = "CONFIG_UNREADABLE"
)

// Severity grades an error on a release result
type Severity string

const (
	// SeverityError marks a failure that blocks or fails the run
	SeverityError Severity = "error"
	// SeverityWarning marks a failure the run continued past
	SeverityWarning Severity = "warning"
)

// Error is a coded error with optional recovery suggestions
type Error struct {
	Code        Code
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new Error wrapping an existing error
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// CodeOf returns the code of the first coded error in err's chain,
// or CodeUnexpectedError when there is none.
func CodeOf(err error) Code {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnexpectedError
}

// HasCode reports whether any coded error in errs carries code.
func HasCode(errs []*Error, code Code) bool {
	for _, err := range errs {
		if err != nil && err.Code == code {
			return true
		}
	}
	return false
}

// ReleaseError is a single entry on a release result.
// It never crosses a stage boundary as a Go error; it is data.
type ReleaseError struct {
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Stage    string   `json:"stage"`
}

// String renders the entry for logs and CLI output
func (r ReleaseError) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", r.Severity, r.Stage, r.Code, r.Message)
}

// IsWarning reports whether the entry was downgraded to a warning
func (r ReleaseError) IsWarning() bool {
	return r.Severity == SeverityWarning
}

// Entry converts a coded error into a result entry for a stage.
func Entry(err *Error, severity Severity, stage string) ReleaseError {
	msg := err.Message
	if err.Cause != nil {
		msg = fmt.Sprintf("%s: %v", err.Message, err.Cause)
	}
	return ReleaseError{
		Code:     err.Code,
		Message:  msg,
		Severity: severity,
		Stage:    stage,
	}
}

// Join flattens coded errors into a single message, for logging.
func Join(errs []*Error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		part := fmt.Sprintf("%s: %s", err.Code, err.Message)
		if err.Cause != nil {
			part = fmt.Sprintf("%s (%v)", part, err.Cause)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

// NewNotGitRepoError creates a not-a-repository error
func NewNotGitRepoError(dir string) *Error {
	return Newf(CodeNotGitRepo, "not a git repository: %s", dir).
		WithSuggestion("Run the release from inside the project's git working tree").
		WithSuggestion("Use --dir to point at the repository root")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *Error {
	return Newf(CodeFileNotFound, "file not found: %s", path).
		WithSuggestion("Check if the file path is correct")
}

// NewInvalidVersionError creates an invalid semantic version error
func NewInvalidVersionError(version string) *Error {
	return Newf(CodeInvalidVersion, "invalid semantic version: %q", version).
		WithSuggestion("Use MAJOR.MINOR.PATCH, optionally with -prerelease and +build suffixes")
}
