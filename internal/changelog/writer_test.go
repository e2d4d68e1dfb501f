package changelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/undo"
)

func newWriter() *Writer {
	w := NewWriter(undo.New(), nil)
	w.now = func() time.Time { return time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC) }
	return w
}

func TestFormat(t *testing.T) {
	got := Format(Entry{Version: "1.1.0", Date: "2026-01-02", Content: "\n\n### Added\n- thing\n\n"})
	assert.Equal(t, "## [1.1.0] - 2026-01-02\n\n### Added\n- thing\n\n", got)
}

func TestUpdateCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	w := newWriter()

	res := w.Update(path, Entry{Version: "1.0.0", Content: "- first"})
	require.True(t, res.Success)
	assert.True(t, res.Created)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Header+"## [1.0.0] - 2026-03-04\n\n- first\n\n", string(data))
}

func TestUpdateInsertsAboveFirstRelease(t *testing.T) {
	existing := "# Changelog\n\n## [Unreleased]\n\n- wip\n\n## [1.0.0] - 2025-01-01\n\n- old\n"
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	res := newWriter().Update(path, Entry{Version: "1.1.0", Date: "2026-02-01", Content: "- new"})
	require.True(t, res.Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "# Changelog\n\n## [Unreleased]\n\n- wip\n\n## [1.1.0] - 2026-02-01\n\n- new\n\n## [1.0.0] - 2025-01-01\n\n- old\n"
	assert.Equal(t, want, string(data))
}

func TestUpdateAppendsWithoutReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	require.NoError(t, os.WriteFile(path, []byte("# Changelog"), 0o644))

	require.True(t, newWriter().Update(path, Entry{Version: "0.1.0", Date: "2026-01-01"}).Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Changelog\n\n## [0.1.0] - 2026-01-01\n\n", string(data))
}

func TestUpdateDuplicateIsRejectedByteIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	w := newWriter()

	require.True(t, w.Update(path, Entry{Version: "2.0.0", Content: "- a"}).Success)
	after, err := os.ReadFile(path)
	require.NoError(t, err)

	res := w.Update(path, Entry{Version: "2.0.0", Content: "- b"})
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, errors.CodeVersionExists, res.Errors[0].Code)

	now, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, after, now)
}

func TestHasVersionSpellings(t *testing.T) {
	tests := []struct {
		doc     string
		version string
		want    bool
	}{
		{"## [1.2.0] - 2026-01-01\n", "1.2.0", true},
		{"## 1.2.0\n", "1.2.0", true},
		{"## 1.2.0 (2026-01-01)\n", "1.2.0", true},
		{"## [1.2.0-rc.1] - 2026-01-01\n", "1.2.0", false},
		{"## 1.2.00\n", "1.2.0", false},
		{"## [v1.2.0]\n", "1.2.0", false},
		{"text mentioning ## [1.2.0]\n", "1.2.0", false},
	}
	for _, tt := range tests {
		if got := HasVersion([]byte(tt.doc), tt.version); got != tt.want {
			t.Errorf("HasVersion(%q, %q) = %v, want %v", tt.doc, tt.version, got, tt.want)
		}
	}
}

func TestRollback(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "CHANGELOG.md")
	created := filepath.Join(dir, "pkg", "CHANGELOG.md")
	original := "# Changelog\n\n## [1.0.0] - 2025-01-01\n"
	require.NoError(t, os.WriteFile(existing, []byte(original), 0o644))

	w := newWriter()
	require.True(t, w.Update(existing, Entry{Version: "1.0.1"}).Success)
	require.True(t, w.Update(created, Entry{Version: "1.0.1"}).Success)

	res := w.Rollback()
	require.True(t, res.Success)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
	_, err = os.Stat(created)
	assert.True(t, os.IsNotExist(err))

	again := w.Rollback()
	assert.Equal(t, errors.CodeNoRollbackState, again.Errors[0].Code)
}
