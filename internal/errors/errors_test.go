package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeTagExists, "tag v1.0.0 already exists")

	if err.Code != CodeTagExists {
		t.Errorf("expected code %s, got %s", CodeTagExists, err.Code)
	}

	if err.Message != "tag v1.0.0 already exists" {
		t.Errorf("expected message 'tag v1.0.0 already exists', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := Wrap(CodeWriteError, "failed to write manifest", cause)

	if err.Code != CodeWriteError {
		t.Errorf("expected code %s, got %s", CodeWriteError, err.Code)
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	err := Wrap(CodeParseError, "invalid manifest", fmt.Errorf("unexpected EOF")).
		WithSuggestion("Fix the JSON syntax")

	msg := err.Error()
	for _, want := range []string{"[PARSE_ERROR]", "invalid manifest", "unexpected EOF", "Fix the JSON syntax"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want it to contain %q", msg, want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("stage failed: %w", New(CodeNotGitRepo, "not a repo"))

	if got := CodeOf(wrapped); got != CodeNotGitRepo {
		t.Errorf("CodeOf() = %s, want %s", got, CodeNotGitRepo)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnexpectedError {
		t.Errorf("CodeOf(plain) = %s, want %s", got, CodeUnexpectedError)
	}
}

func TestEntry(t *testing.T) {
	entry := Entry(Wrap(CodePushError, "push failed", fmt.Errorf("rejected")), SeverityError, "push")

	if entry.Code != CodePushError {
		t.Errorf("Code = %s, want %s", entry.Code, CodePushError)
	}
	if entry.Message != "push failed: rejected" {
		t.Errorf("Message = %q", entry.Message)
	}
	if entry.IsWarning() {
		t.Error("error-severity entry reported as warning")
	}
	if !strings.Contains(entry.String(), "[push]") {
		t.Errorf("String() = %q, want stage in brackets", entry.String())
	}
}

func TestHasCode(t *testing.T) {
	errs := []*Error{New(CodeTagError, "a"), nil, New(CodeTagExists, "b")}

	if !HasCode(errs, CodeTagExists) {
		t.Error("HasCode should find TAG_EXISTS")
	}
	if HasCode(errs, CodePushError) {
		t.Error("HasCode should not find PUSH_ERROR")
	}
}

func TestJoin(t *testing.T) {
	got := Join([]*Error{New(CodeFileNotFound, "missing a"), Wrap(CodeParseError, "bad b", fmt.Errorf("eof"))})
	want := "FILE_NOT_FOUND: missing a; PARSE_ERROR: bad b (eof)"
	if got != want {
		t.Errorf("Join() = %q, want %q", got, want)
	}
}
