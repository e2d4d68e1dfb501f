package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/releasekit/internal/changelog"
	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/fsutil"
	"github.com/felixgeelhaar/releasekit/internal/gitops"
	"github.com/felixgeelhaar/releasekit/internal/plan"
	"github.com/felixgeelhaar/releasekit/internal/publish/host"
	"github.com/felixgeelhaar/releasekit/internal/publish/registry"
	"github.com/felixgeelhaar/releasekit/internal/validate"
)

// report is what a stage hands back to the orchestrator. err becomes the
// stage's primary entry; its severity follows the outcome.
type report struct {
	outcome Outcome
	err     *errors.Error
	entries []errors.ReleaseError
}

func success() report { return report{outcome: OutcomeSuccess} }

func skipped() report { return report{outcome: OutcomeSkipped} }

func failure(err *errors.Error) report {
	return report{outcome: OutcomeFailure, err: err}
}

func warning(err *errors.Error) report {
	return report{outcome: OutcomeWarning, err: err}
}

type stageFunc func(ctx context.Context, r *run) report

func (o *Orchestrator) stage(s State) stageFunc {
	switch s {
	case StageAnalysis:
		return o.analyze
	case StagePlanning:
		return o.planRelease
	case StageValidation:
		return o.validatePlan
	case StageConfirmation:
		return o.confirm
	case StagePackageUpdate:
		return o.updatePackages
	case StageChangelogUpdate:
		return o.updateChangelog
	case StageGit:
		return o.commitAndTag
	case StagePush:
		return o.push
	case StageHostPublish:
		return o.publishHost
	case StageRegistryPublish:
		return o.publishRegistries
	}
	return func(context.Context, *run) report {
		return failure(errors.Newf(errors.CodeUnexpectedError, "unknown stage %s", s))
	}
}

// wrapStage reports a collaborator's errors under the stage's own code.
func wrapStage(code errors.Code, message string, errs []*errors.Error) *errors.Error {
	e := errors.New(code, message)
	if len(errs) > 0 {
		e.Message = message + ": " + errors.Join(errs)
		for _, err := range errs {
			e.Suggestions = append(e.Suggestions, err.Suggestions...)
		}
	}
	return e
}

func (o *Orchestrator) analyze(ctx context.Context, r *run) report {
	if o.deps.Analysis == nil {
		return failure(errors.New(errors.CodeAnalysisFailed, "no analysis source configured").
			WithSuggestion("Pass --analysis or --analysis-cmd"))
	}
	res, err := o.deps.Analysis.Analyze(ctx)
	if err != nil {
		return failure(errors.Wrap(errors.CodeAnalysisFailed, "failed to analyze changes", err))
	}
	r.analysis = res

	warnings := res.Warnings()
	if len(warnings) == 0 {
		return success()
	}
	rep := report{outcome: OutcomeWarning}
	for _, w := range warnings {
		rep.entries = append(rep.entries, errors.ReleaseError{
			Code: errors.CodeBumpMismatch, Message: w, Severity: errors.SeverityWarning, Stage: string(StageAnalysis),
		})
	}
	return rep
}

func (o *Orchestrator) planRelease(_ context.Context, r *run) report {
	p, err := plan.Build(r.analysis, plan.BuildOptions{Dir: o.opts.Dir, Manifests: o.opts.Manifests, Now: o.now})
	if err != nil {
		return failure(errors.Wrap(errors.CodePlanningFailed, "failed to generate release plan", err))
	}
	r.plan = p
	r.result.Version = p.Version.To
	if err := r.state.SetPayload(p); err != nil {
		return failure(errors.Wrap(errors.CodePlanningFailed, "failed to persist release plan", err))
	}
	r.state.SetMetadata("version", p.Version.To)
	r.logger.Info("release planned", "plan", p.Describe())
	return success()
}

func (o *Orchestrator) validatePlan(ctx context.Context, r *run) report {
	res := o.deps.Validator.Validate(r.plan)
	if o.opts.CheckReadiness {
		ready := validate.CheckReadiness(ctx, validate.ReadinessOptions{
			Dir:      o.opts.Dir,
			Manifest: o.opts.Manifests[0],
			Runner:   o.deps.Runner,
		})
		res.Errors = append(res.Errors, ready.Errors...)
		res.Warnings = append(res.Warnings, ready.Warnings...)
		res.Valid = res.Valid && ready.Valid
	}

	rep := report{entries: res.Entries(string(StageValidation))}
	switch {
	case !res.Valid:
		rep.outcome = OutcomeFailure
	case len(res.Warnings) > 0:
		rep.outcome = OutcomeWarning
	default:
		rep.outcome = OutcomeSuccess
	}
	return rep
}

func (o *Orchestrator) confirm(ctx context.Context, r *run) report {
	if o.opts.SkipConfirmation || o.opts.DryRun || o.deps.Confirmer == nil {
		return skipped()
	}
	ok, err := o.deps.Confirmer.Confirm(ctx, r.plan)
	if err != nil {
		return report{outcome: OutcomeCancelled, err: errors.Wrap(errors.CodeUserCancelled, "Release confirmation aborted", err)}
	}
	if !ok {
		return report{outcome: OutcomeCancelled, err: errors.New(errors.CodeUserCancelled, "Release cancelled by user")}
	}
	return success()
}

func (o *Orchestrator) updatePackages(_ context.Context, r *run) report {
	res := r.manifests.UpdateMultiple(r.plan.ManifestPaths(), r.plan.Version.To)
	r.mutated = append(r.mutated, string(StagePackageUpdate))
	if !res.Success {
		return failure(wrapStage(errors.CodePackageUpdateFailed, "Failed to update package versions", res.Errors))
	}
	r.files = append(r.files, res.UpdatedFiles...)
	return success()
}

func (o *Orchestrator) updateChangelog(_ context.Context, r *run) report {
	path := o.path(o.opts.Changelog)
	res := r.changelog.Update(path, changelog.Entry{
		Version: r.plan.Version.To,
		Date:    r.plan.ReleaseNotes.Date,
		Content: r.plan.ReleaseNotes.Content,
	})
	if !res.Success {
		return warning(wrapStage(errors.CodeChangelogUpdateFailed, "Failed to update "+filepath.Base(path), res.Errors))
	}
	r.mutated = append(r.mutated, string(StageChangelogUpdate))
	r.files = append(r.files, res.Path)
	return success()
}

func (o *Orchestrator) commitMessage(p *plan.ReleasePlan) string {
	return strings.NewReplacer("{version}", p.Version.To, "{tag}", p.TagName()).Replace(o.opts.CommitMessage)
}

func (o *Orchestrator) commitAndTag(ctx context.Context, r *run) report {
	r.mutated = append(r.mutated, string(StageGit))

	files := r.files
	if len(files) == 0 {
		// a resumed run did not stage anything itself
		files = append(r.plan.ManifestPaths(), o.path(o.opts.Changelog))
	}
	commit := r.git.Commit(ctx, gitops.CommitOptions{Message: o.commitMessage(r.plan), Files: existing(files)})
	if !commit.Success {
		return failure(wrapStage(errors.CodeGitOperationsFailed, "Failed to create release commit", commit.Errors))
	}
	tag := r.git.CreateTag(ctx, gitops.TagOptions{Version: r.plan.Version.To, Message: "Release " + r.plan.Version.To})
	if !tag.Success {
		return failure(wrapStage(errors.CodeGitOperationsFailed, "Failed to create release tag", tag.Errors))
	}
	r.state.SetMetadata("commit", commit.Hash)
	r.state.SetMetadata("tag", tag.TagName)
	return success()
}

func existing(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if fsutil.Exists(p) {
			out = append(out, p)
		}
	}
	return out
}

func (o *Orchestrator) push(ctx context.Context, r *run) report {
	if o.opts.DryRun {
		return skipped()
	}
	res := r.git.Push(ctx, gitops.PushOptions{Remote: o.opts.Remote, Branch: o.opts.Branch, Tags: true})
	if !res.Success {
		return failure(wrapStage(errors.CodePushFailed, "Failed to push release", res.Errors))
	}
	return success()
}

func (o *Orchestrator) publishHost(ctx context.Context, r *run) report {
	if o.opts.DryRun || o.deps.Host == nil {
		return skipped()
	}
	res := o.deps.Host.CreateRelease(ctx, host.ReleaseRequest{
		TagName:    r.plan.TagName(),
		Body:       r.plan.ReleaseNotes.Content,
		Draft:      o.opts.Draft,
		Prerelease: r.plan.IsPrerelease(),
		Artifacts:  o.artifacts(),
	})
	o.deps.Metrics.RecordPublish("host", res.Success)

	if res.URL != "" {
		r.result.HostReleaseURL = res.URL
	}
	if !res.Success {
		return warning(wrapStage(errors.CodeHostPublishFailed, "Failed to publish host release", res.Errors))
	}

	var ok, failed int
	for _, a := range res.Artifacts {
		if a.Success {
			ok++
		} else {
			failed++
		}
	}
	o.deps.Metrics.RecordArtifacts(ok, failed)
	if len(res.Warnings) == 0 {
		return success()
	}
	rep := report{outcome: OutcomeWarning}
	for _, w := range res.Warnings {
		rep.entries = append(rep.entries, errors.Entry(w, errors.SeverityWarning, string(StageHostPublish)))
	}
	return rep
}

func (o *Orchestrator) artifacts() []string {
	out := make([]string, 0, len(o.opts.Artifacts))
	for _, a := range o.opts.Artifacts {
		out = append(out, o.path(a))
	}
	return out
}

func (o *Orchestrator) publishRegistries(ctx context.Context, r *run) report {
	if o.opts.DryRun || len(o.deps.Registries) == 0 {
		return skipped()
	}
	publishable := r.plan.Publishable()
	if len(publishable) == 0 {
		r.logger.Info("no publishable packages")
		return skipped()
	}

	pkgs := make([]registry.Package, 0, len(publishable))
	for _, p := range publishable {
		pkgs = append(pkgs, registry.Package{
			Name:     p.Name,
			Version:  p.ToVersion,
			Path:     filepath.Dir(p.Path),
			Manifest: p.Path,
			Priority: p.Priority,
		})
	}

	var errs []*errors.Error
	for _, pub := range o.deps.Registries {
		batch := registry.PublishAll(ctx, pub, pkgs, registry.Options{OTP: o.opts.OTP}, r.logger)
		o.deps.Metrics.RecordPublish(pub.Name(), batch.Success)
		r.result.RegistryURLs = append(r.result.RegistryURLs, batch.URLs...)
		errs = append(errs, batch.Errors...)
	}
	if len(errs) > 0 {
		return warning(wrapStage(errors.CodeRegistryPublishFailed, "Failed to publish packages", errs))
	}
	return success()
}
