// Package changelog inserts dated release entries into a Markdown
// changelog.
package changelog

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/fsutil"
	"github.com/felixgeelhaar/releasekit/internal/log"
	"github.com/felixgeelhaar/releasekit/internal/undo"
)

// Header is written at the top of a newly created changelog.
const Header = `# Changelog

All notable changes to this project will be documented in this file.

The format is based on [Keep a Changelog](https://keepachangelog.com/en/1.1.0/),
and this project adheres to [Semantic Versioning](https://semver.org/spec/v2.0.0.html).

`

// DateLayout is the heading date format.
const DateLayout = "2006-01-02"

// releaseHeading matches a versioned release heading. "## [Unreleased]"
// is not a release heading, so new entries land below it.
var releaseHeading = regexp.MustCompile(`^## \[?v?\d`)

// Entry is one release section.
type Entry struct {
	Version string
	Date    string
	Content string
}

// Result reports an Update call.
type Result struct {
	Success bool
	Path    string
	Created bool
	Errors  []*errors.Error
}

// Writer updates changelogs and records their prior state in the run's
// undo log.
type Writer struct {
	undo   *undo.Log
	logger *log.Logger
	now    func() time.Time
}

// NewWriter creates a writer bound to a run's undo log.
func NewWriter(u *undo.Log, logger *log.Logger) *Writer {
	if u == nil {
		u = undo.New()
	}
	return &Writer{undo: u, logger: log.OrDiscard(logger), now: time.Now}
}

// Format renders an entry exactly as it is inserted.
func Format(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## [%s] - %s\n\n", e.Version, e.Date)
	if content := strings.TrimSpace(e.Content); content != "" {
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// HasVersion reports whether data already has a heading for version,
// spelled "## [version]" or "## version".
func HasVersion(data []byte, version string) bool {
	bracketed := "## [" + version + "]"
	plain := "## " + version
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, bracketed) {
			return true
		}
		if line == plain || strings.HasPrefix(line, plain+" ") {
			return true
		}
	}
	return false
}

// Update inserts entry into the changelog at path, creating it when absent.
// An existing heading for the version fails with VERSION_EXISTS and leaves
// the file untouched.
func (w *Writer) Update(path string, entry Entry) Result {
	if strings.TrimSpace(entry.Version) == "" {
		return fail(path, errors.New(errors.CodeInvalidVersion, "changelog entry has no version"))
	}
	if entry.Date == "" {
		entry.Date = w.now().UTC().Format(DateLayout)
	}

	original, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fail(path, errors.Wrap(errors.CodeUnexpectedError, fmt.Sprintf("failed to read %s", path), err))
	}
	existed := err == nil

	var updated []byte
	if !existed {
		updated = []byte(Header + Format(entry))
	} else {
		if HasVersion(original, entry.Version) {
			return fail(path, errors.Newf(errors.CodeVersionExists,
				"changelog already has an entry for %s", entry.Version).
				WithSuggestion("Bump to a version that has not been released yet"))
		}
		updated = insert(original, Format(entry))
	}

	mark := w.undo.Mark()
	w.undo.RecordFile(undo.OwnerChangelog, path, original, existed)
	if err := fsutil.WriteFileAtomic(path, updated, 0o644); err != nil {
		w.undo.TakeSince(mark, undo.OwnerChangelog)
		return fail(path, errors.Wrap(errors.CodeWriteError, fmt.Sprintf("failed to write %s", path), err))
	}

	w.logger.Info("changelog updated", "path", path, "version", entry.Version, "created", !existed)
	return Result{Success: true, Path: path, Created: !existed}
}

// insert places section above the first release heading, or at the end.
func insert(data []byte, section string) []byte {
	offset := 0
	for offset < len(data) {
		end := bytes.IndexByte(data[offset:], '\n')
		line := data[offset:]
		if end >= 0 {
			line = data[offset : offset+end]
		}
		if releaseHeading.Match(bytes.TrimRight(line, "\r")) {
			out := make([]byte, 0, len(data)+len(section))
			out = append(out, data[:offset]...)
			out = append(out, section...)
			return append(out, data[offset:]...)
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}

	out := make([]byte, 0, len(data)+len(section)+2)
	out = append(out, data...)
	if len(out) > 0 && !bytes.HasSuffix(out, []byte("\n")) {
		out = append(out, '\n')
	}
	if len(out) > 0 && !bytes.HasSuffix(out, []byte("\n\n")) {
		out = append(out, '\n')
	}
	return append(out, section...)
}

// Rollback restores every changelog this writer touched. With nothing
// recorded it returns NO_ROLLBACK_STATE.
func (w *Writer) Rollback() Result {
	entries := w.undo.Take(undo.OwnerChangelog)
	if len(entries) == 0 {
		return fail("", errors.New(errors.CodeNoRollbackState, "no changelog changes to restore"))
	}
	var errs []*errors.Error
	for _, e := range entries {
		if err := undo.RestoreFile(e); err != nil {
			errs = append(errs, errors.Wrap(errors.CodeUnexpectedError, "failed to restore changelog", err))
		}
	}
	return Result{Success: len(errs) == 0, Path: entries[0].Path, Errors: errs}
}

// ClearBackups discards recorded changelog state.
func (w *Writer) ClearBackups() {
	w.undo.Discard(undo.OwnerChangelog)
}

func fail(path string, err *errors.Error) Result {
	return Result{Path: path, Errors: []*errors.Error{err}}
}
