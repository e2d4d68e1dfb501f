// Package manifest updates the version field of JSON package manifests
// with all-or-nothing batch semantics.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/fsutil"
	"github.com/felixgeelhaar/releasekit/internal/log"
	"github.com/felixgeelhaar/releasekit/internal/semver"
	"github.com/felixgeelhaar/releasekit/internal/undo"
)

// UpdateResult reports a single or batch version update.
type UpdateResult struct {
	Success      bool
	UpdatedFiles []string
	Errors       []*errors.Error
}

// RollbackResult reports a Rollback call.
type RollbackResult struct {
	Success  bool
	Restored []string
	Errors   []*errors.Error
}

// Coordinator rewrites manifests and records their original bytes in the
// run's undo log.
type Coordinator struct {
	undo   *undo.Log
	logger *log.Logger
}

// NewCoordinator creates a coordinator bound to a run's undo log.
func NewCoordinator(u *undo.Log, logger *log.Logger) *Coordinator {
	if u == nil {
		u = undo.New()
	}
	return &Coordinator{undo: u, logger: log.OrDiscard(logger)}
}

// UpdateVersion sets the version of one manifest.
func (c *Coordinator) UpdateVersion(path, version string) UpdateResult {
	return c.UpdateMultiple([]string{path}, version)
}

type pending struct {
	path     string
	original []byte
	updated  []byte
}

// UpdateMultiple sets the version of every manifest in paths. Either every
// file is updated or every file is left byte-identical.
func (c *Coordinator) UpdateMultiple(paths []string, version string) UpdateResult {
	if !semver.Valid(version) {
		return failed(errors.NewInvalidVersionError(version))
	}
	if len(paths) == 0 {
		return UpdateResult{Success: true}
	}

	var (
		prepared []pending
		errs     []*errors.Error
		seen     = make(map[string]bool)
	)
	for _, path := range paths {
		clean := filepath.Clean(path)
		if seen[clean] {
			continue
		}
		seen[clean] = true

		p, err := prepare(clean, version)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		prepared = append(prepared, p)
	}
	if len(errs) > 0 {
		c.logger.Warn("manifest batch rejected", "files", len(paths), "errors", errors.Join(errs))
		return UpdateResult{Errors: errs}
	}

	mark := c.undo.Mark()
	updated := make([]string, 0, len(prepared))
	for _, p := range prepared {
		c.undo.RecordFile(undo.OwnerManifest, p.path, p.original, true)
		if err := fsutil.WriteFileAtomic(p.path, p.updated, 0o644); err != nil {
			errs = append(errs, errors.Wrap(errors.CodeUnexpectedError,
				fmt.Sprintf("failed to write %s", p.path), err))
			errs = append(errs, c.restore(c.undo.TakeSince(mark, undo.OwnerManifest))...)
			return UpdateResult{Errors: errs}
		}
		updated = append(updated, p.path)
	}

	c.logger.Info("manifests updated", "version", version, "files", len(updated))
	return UpdateResult{Success: true, UpdatedFiles: updated}
}

func prepare(path, version string) (pending, *errors.Error) {
	original, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pending{}, errors.NewFileNotFoundError(path)
		}
		return pending{}, errors.Wrap(errors.CodeUnexpectedError, fmt.Sprintf("failed to read %s", path), err)
	}

	if _, err := versionOf(original); err != nil {
		return pending{}, errors.Wrap(errors.CodeParseError, fmt.Sprintf("failed to parse %s", path), err)
	}
	updated, err := withVersion(original, version)
	if err != nil {
		return pending{}, errors.Wrap(errors.CodeUnexpectedError, fmt.Sprintf("failed to update %s", path), err)
	}
	return pending{path: path, original: original, updated: updated}, nil
}

func (c *Coordinator) restore(entries []undo.Entry) []*errors.Error {
	var errs []*errors.Error
	for _, e := range entries {
		if err := undo.RestoreFile(e); err != nil {
			c.logger.WithError(err).Error("manifest restore failed", "path", e.Path)
			errs = append(errs, errors.Wrap(errors.CodeUnexpectedError,
				fmt.Sprintf("failed to restore %s", e.Path), err))
		}
	}
	return errs
}

// Rollback restores every backed-up manifest, newest first, and clears
// the backups. With nothing backed up it returns NO_ROLLBACK_STATE.
func (c *Coordinator) Rollback() RollbackResult {
	entries := c.undo.Take(undo.OwnerManifest)
	if len(entries) == 0 {
		return RollbackResult{Errors: []*errors.Error{
			errors.New(errors.CodeNoRollbackState, "no manifest backups to restore"),
		}}
	}

	errs := c.restore(entries)
	restored := make([]string, 0, len(entries))
	for _, e := range entries {
		restored = append(restored, e.Path)
	}
	c.logger.Info("manifests rolled back", "files", len(entries), "errors", len(errs))
	return RollbackResult{Success: len(errs) == 0, Restored: restored, Errors: errs}
}

// ClearBackups discards backups without restoring.
func (c *Coordinator) ClearBackups() {
	c.undo.Discard(undo.OwnerManifest)
}

// HasBackups reports whether any manifest is backed up.
func (c *Coordinator) HasBackups() bool {
	return c.undo.Has(undo.OwnerManifest)
}

func failed(err *errors.Error) UpdateResult {
	return UpdateResult{Errors: []*errors.Error{err}}
}

// Info is the subset of a manifest the release cares about.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Private bool   `json:"private"`
}

// Inspect reads name, version and private from a manifest.
func Inspect(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, errors.NewFileNotFoundError(path)
		}
		return Info{}, errors.Wrap(errors.CodeUnexpectedError, fmt.Sprintf("failed to read %s", path), err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, errors.Wrap(errors.CodeParseError, fmt.Sprintf("failed to parse %s", path), err)
	}
	return info, nil
}

// ReadVersion returns the version string of a manifest.
func ReadVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewFileNotFoundError(path)
		}
		return "", errors.Wrap(errors.CodeUnexpectedError, fmt.Sprintf("failed to read %s", path), err)
	}
	v, err := versionOf(data)
	if err != nil {
		return "", errors.Wrap(errors.CodeParseError, fmt.Sprintf("failed to parse %s", path), err)
	}
	return v, nil
}
