// Package gitops performs the release's source-control mutations and
// captures enough state before each one to undo it.
package gitops

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/exec"
	"github.com/felixgeelhaar/releasekit/internal/log"
	"github.com/felixgeelhaar/releasekit/internal/semver"
	"github.com/felixgeelhaar/releasekit/internal/undo"
)

// DefaultRemote is pushed to when PushOptions.Remote is empty.
const DefaultRemote = "origin"

// Operator runs git in one working tree.
type Operator struct {
	runner exec.Runner
	dir    string
	undo   *undo.Log
	logger *log.Logger
}

// NewOperator creates an operator for the working tree at dir.
func NewOperator(runner exec.Runner, dir string, u *undo.Log, logger *log.Logger) *Operator {
	if runner == nil {
		runner = exec.NewLocalRunner(0)
	}
	if u == nil {
		u = undo.New()
	}
	return &Operator{runner: runner, dir: dir, undo: u, logger: log.OrDiscard(logger)}
}

// CommitOptions configures Commit.
type CommitOptions struct {
	Message    string
	Files      []string
	AllowEmpty bool
}

// CommitResult reports a Commit call.
type CommitResult struct {
	Success bool
	Hash    string
	Errors  []*errors.Error
}

// TagOptions configures CreateTag. Tags are annotated unless Lightweight.
type TagOptions struct {
	Version     string
	Message     string
	Lightweight bool
}

// TagResult reports a CreateTag call.
type TagResult struct {
	Success bool
	TagName string
	Errors  []*errors.Error
}

// PushOptions configures Push.
type PushOptions struct {
	Remote string
	Branch string
	Tags   bool
	Force  bool
}

// PushResult reports a Push call. Commit and tag pushes succeed or fail
// independently.
type PushResult struct {
	Success       bool
	CommitsPushed bool
	TagsPushed    bool
	Details       string
	Errors        []*errors.Error
}

// RollbackResult reports a Rollback call.
type RollbackResult struct {
	Success     bool
	ResetTo     string
	Branch      string
	DeletedTags []string
	Errors      []*errors.Error
}

func (o *Operator) git(ctx context.Context, args ...string) (string, error) {
	return o.runner.Run(ctx, exec.Command{Dir: o.dir, Name: "git", Args: args})
}

// IsRepository reports whether the working tree is inside a git repository.
func (o *Operator) IsRepository(ctx context.Context) bool {
	_, err := o.git(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (o *Operator) IsClean(ctx context.Context) (bool, error) {
	out, err := o.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(out) == "", nil
}

// CurrentBranch returns the checked-out branch, or "" when HEAD is detached.
func (o *Operator) CurrentBranch(ctx context.Context) (string, error) {
	out, err := o.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse --abbrev-ref HEAD: %w", err)
	}
	if out == "HEAD" {
		return "", nil
	}
	return out, nil
}

// HeadCommit returns the full hash of HEAD.
func (o *Operator) HeadCommit(ctx context.Context) (string, error) {
	out, err := o.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return out, nil
}

// TagExists reports whether a local tag exists. name is used verbatim.
func (o *Operator) TagExists(ctx context.Context, name string) bool {
	_, err := o.git(ctx, "rev-parse", "-q", "--verify", "refs/tags/"+name)
	return err == nil
}

// RegisteredTags returns the tags created by this run, oldest first.
func (o *Operator) RegisteredTags() []string {
	var tags []string
	for _, e := range o.undo.Entries(undo.OwnerGit) {
		if e.Kind == undo.KindDeleteTag {
			tags = append(tags, e.Tag)
		}
	}
	return tags
}

// HasRollbackState reports whether any git mutation was recorded.
func (o *Operator) HasRollbackState() bool {
	return o.undo.Has(undo.OwnerGit)
}

func (o *Operator) requireRepository(ctx context.Context) *errors.Error {
	if !o.IsRepository(ctx) {
		return errors.NewNotGitRepoError(o.dir)
	}
	return nil
}

// snapshot records HEAD and branch ahead of a mutation.
func (o *Operator) snapshot(ctx context.Context) *errors.Error {
	hash, err := o.HeadCommit(ctx)
	if err != nil {
		return errors.Wrap(errors.CodeSnapshotError, "failed to capture HEAD before mutating", err).
			WithSuggestion("Make sure the repository has at least one commit")
	}
	branch, err := o.CurrentBranch(ctx)
	if err != nil {
		return errors.Wrap(errors.CodeSnapshotError, "failed to capture branch before mutating", err)
	}
	o.undo.RecordCommit(undo.OwnerGit, hash, branch)
	return nil
}

// Commit stages each file on its own and commits them. The message is
// passed as a single argument, never through a shell.
func (o *Operator) Commit(ctx context.Context, opts CommitOptions) CommitResult {
	if err := o.requireRepository(ctx); err != nil {
		return CommitResult{Errors: []*errors.Error{err}}
	}
	if strings.TrimSpace(opts.Message) == "" {
		return CommitResult{Errors: []*errors.Error{errors.New(errors.CodeCommitError, "commit message is empty")}}
	}
	if err := o.snapshot(ctx); err != nil {
		return CommitResult{Errors: []*errors.Error{err}}
	}

	for _, file := range opts.Files {
		if _, err := o.git(ctx, "add", "--", file); err != nil {
			return CommitResult{Errors: []*errors.Error{
				errors.Wrap(errors.CodeStageError, fmt.Sprintf("failed to stage %s", file), err),
			}}
		}
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if _, err := o.git(ctx, args...); err != nil {
		return CommitResult{Errors: []*errors.Error{
			errors.Wrap(errors.CodeCommitError, "git commit failed", err).
				WithSuggestion("Check that the staged files actually changed"),
		}}
	}

	hash, err := o.HeadCommit(ctx)
	if err != nil {
		return CommitResult{Errors: []*errors.Error{
			errors.Wrap(errors.CodeCommitError, "commit created but HEAD could not be read", err),
		}}
	}
	o.logger.Info("release commit created", "hash", hash, "files", len(opts.Files))
	return CommitResult{Success: true, Hash: hash}
}

// CreateTag creates the tag "v<version>", prefixing exactly once. Every
// created tag is registered for deletion on rollback.
func (o *Operator) CreateTag(ctx context.Context, opts TagOptions) TagResult {
	if err := o.requireRepository(ctx); err != nil {
		return TagResult{Errors: []*errors.Error{err}}
	}

	version := semver.Canonical(opts.Version)
	if !semver.Valid(version) {
		return TagResult{Errors: []*errors.Error{errors.NewInvalidVersionError(opts.Version)}}
	}
	name := semver.TagName(version)

	if o.TagExists(ctx, name) {
		return TagResult{TagName: name, Errors: []*errors.Error{
			errors.Newf(errors.CodeTagExists, "tag %s already exists", name).
				WithSuggestion("Delete the tag or release a different version"),
		}}
	}

	if err := o.snapshot(ctx); err != nil {
		return TagResult{TagName: name, Errors: []*errors.Error{err}}
	}

	message := opts.Message
	if message == "" {
		message = "Release " + version
	}
	args := []string{"tag", "-a", name, "-m", message}
	if opts.Lightweight {
		args = []string{"tag", name}
	}
	if _, err := o.git(ctx, args...); err != nil {
		return TagResult{TagName: name, Errors: []*errors.Error{
			errors.Wrap(errors.CodeTagError, fmt.Sprintf("failed to create tag %s", name), err),
		}}
	}

	o.undo.RecordTag(undo.OwnerGit, name)
	o.logger.Info("release tag created", "tag", name, "annotated", !opts.Lightweight)
	return TagResult{Success: true, TagName: name}
}

// Push pushes the branch, then the tags as a separate call.
func (o *Operator) Push(ctx context.Context, opts PushOptions) PushResult {
	if err := o.requireRepository(ctx); err != nil {
		return PushResult{Errors: []*errors.Error{err}}
	}
	remote := opts.Remote
	if remote == "" {
		remote = DefaultRemote
	}
	branch := opts.Branch
	if branch == "" {
		current, err := o.CurrentBranch(ctx)
		if err != nil || current == "" {
			return PushResult{Errors: []*errors.Error{
				errors.New(errors.CodePushError, "cannot determine the branch to push").
					WithSuggestion("Check out a branch or set release.branch"),
			}}
		}
		branch = current
	}
	if err := o.snapshot(ctx); err != nil {
		return PushResult{Errors: []*errors.Error{err}}
	}

	args := []string{"push"}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, remote, branch)
	if _, err := o.git(ctx, args...); err != nil {
		return PushResult{Errors: []*errors.Error{
			errors.Wrap(errors.CodePushError, fmt.Sprintf("failed to push %s to %s", branch, remote), err).
				WithSuggestion("Pull the latest changes and check your push permissions"),
		}}
	}
	o.logger.Info("release commits pushed", "remote", remote, "branch", branch)

	result := PushResult{Success: true, CommitsPushed: true, Details: fmt.Sprintf("Pushed commits to %s/%s", remote, branch)}
	if !opts.Tags {
		return result
	}

	tagArgs := []string{"push", remote}
	if tags := o.RegisteredTags(); len(tags) > 0 {
		for _, tag := range tags {
			tagArgs = append(tagArgs, "refs/tags/"+tag)
		}
	} else {
		tagArgs = append(tagArgs, "--tags")
	}
	if _, err := o.git(ctx, tagArgs...); err != nil {
		result.Success = false
		result.Details += ", but pushing tags failed"
		result.Errors = append(result.Errors,
			errors.Wrap(errors.CodePushTagsError, fmt.Sprintf("failed to push tags to %s", remote), err))
		return result
	}

	result.TagsPushed = true
	result.Details += " and tags"
	o.logger.Info("release tags pushed", "remote", remote)
	return result
}

// Rollback deletes every tag this run created and hard-resets to the
// earliest captured commit. State is cleared whatever the outcome.
func (o *Operator) Rollback(ctx context.Context) RollbackResult {
	entries := o.undo.Take(undo.OwnerGit)
	if len(entries) == 0 {
		return RollbackResult{Errors: []*errors.Error{
			errors.New(errors.CodeNoRollbackState, "no git state captured; nothing to roll back"),
		}}
	}
	if err := o.requireRepository(ctx); err != nil {
		return RollbackResult{Errors: []*errors.Error{err}}
	}

	var (
		result   RollbackResult
		earliest *undo.Entry
	)
	for i := range entries {
		e := entries[i]
		switch e.Kind {
		case undo.KindDeleteTag:
			if !o.TagExists(ctx, e.Tag) {
				continue
			}
			if _, err := o.git(ctx, "tag", "-d", e.Tag); err != nil {
				result.Errors = append(result.Errors,
					errors.Wrap(errors.CodeDeleteTagError, fmt.Sprintf("failed to delete tag %s", e.Tag), err))
				continue
			}
			result.DeletedTags = append(result.DeletedTags, e.Tag)
		case undo.KindResetCommit:
			// entries are newest first, so the last one seen is the earliest
			earliest = &entries[i]
		}
	}

	if earliest != nil {
		if earliest.Branch != "" {
			current, err := o.CurrentBranch(ctx)
			if err == nil && current != earliest.Branch {
				if _, err := o.git(ctx, "checkout", earliest.Branch); err != nil {
					result.Errors = append(result.Errors,
						errors.Wrap(errors.CodeResetError, fmt.Sprintf("failed to check out %s", earliest.Branch), err))
				}
			}
		}
		if _, err := o.git(ctx, "reset", "--hard", earliest.Hash); err != nil {
			result.Errors = append(result.Errors,
				errors.Wrap(errors.CodeResetError, fmt.Sprintf("failed to reset to %s", earliest.Hash), err))
		} else {
			result.ResetTo = earliest.Hash
			result.Branch = earliest.Branch
		}
	}

	result.Success = len(result.Errors) == 0
	o.logger.Info("git rolled back", "reset_to", result.ResetTo, "deleted_tags", result.DeletedTags, "errors", len(result.Errors))
	return result
}

// ClearRollbackState discards captured git state without acting on it.
func (o *Operator) ClearRollbackState() {
	o.undo.Discard(undo.OwnerGit)
}
