// Package pipeline runs a release as a fixed sequence of stages driven by
// an explicit state machine, rolling local changes back when a hard gate
// fails.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/releasekit/internal/analysis"
	"github.com/felixgeelhaar/releasekit/internal/changelog"
	"github.com/felixgeelhaar/releasekit/internal/checkpoint"
	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/exec"
	"github.com/felixgeelhaar/releasekit/internal/gitops"
	"github.com/felixgeelhaar/releasekit/internal/hooks"
	"github.com/felixgeelhaar/releasekit/internal/log"
	"github.com/felixgeelhaar/releasekit/internal/manifest"
	"github.com/felixgeelhaar/releasekit/internal/metrics"
	"github.com/felixgeelhaar/releasekit/internal/plan"
	"github.com/felixgeelhaar/releasekit/internal/publish/host"
	"github.com/felixgeelhaar/releasekit/internal/publish/registry"
	"github.com/felixgeelhaar/releasekit/internal/rollback"
	"github.com/felixgeelhaar/releasekit/internal/telemetry"
	"github.com/felixgeelhaar/releasekit/internal/undo"
	"github.com/felixgeelhaar/releasekit/internal/validate"
)

// Defaults for Options.
const (
	DefaultChangelog     = "CHANGELOG.md"
	DefaultCommitMessage = "chore(release): {tag}"
)

// Confirmer asks whether to go ahead with a validated plan.
type Confirmer interface {
	Confirm(ctx context.Context, p *plan.ReleasePlan) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p *plan.ReleasePlan) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, p *plan.ReleasePlan) (bool, error) {
	return f(ctx, p)
}

// HostPublisher creates the source-control host release.
type HostPublisher interface {
	CreateRelease(ctx context.Context, req host.ReleaseRequest) host.ReleaseResult
}

// Options configure what a run does.
type Options struct {
	// Dir is the working tree.
	Dir string
	// Manifests are bumped together; the first is the root manifest.
	Manifests []string
	// Changelog is the changelog path, relative to Dir.
	Changelog string

	Remote string
	Branch string
	// CommitMessage may reference {version} and {tag}.
	CommitMessage string

	DryRun           bool
	SkipConfirmation bool
	// CheckReadiness adds the working tree checks to validation.
	CheckReadiness bool

	Artifacts []string
	Draft     bool
	OTP       string
}

// Deps are the run's collaborators. Host and Registries are optional;
// their stages are skipped when unset. Hooks may be nil.
type Deps struct {
	Analysis    analysis.Source
	Confirmer   Confirmer
	Validator   *validate.Validator
	Runner      exec.Runner
	Host        HostPublisher
	Registries  []registry.Publisher
	Checkpoints *checkpoint.Manager
	Hooks       *hooks.Dispatcher
	Metrics     *metrics.Metrics
	Logger      *log.Logger
}

// Orchestrator runs releases.
type Orchestrator struct {
	opts Options
	deps Deps
	now  func() time.Time
}

// New creates an orchestrator.
func New(opts Options, deps Deps) *Orchestrator {
	if len(opts.Manifests) == 0 {
		opts.Manifests = []string{"package.json"}
	}
	if opts.Changelog == "" {
		opts.Changelog = DefaultChangelog
	}
	if opts.CommitMessage == "" {
		opts.CommitMessage = DefaultCommitMessage
	}
	if deps.Runner == nil {
		deps.Runner = exec.NewLocalRunner(0)
	}
	deps.Logger = log.OrDiscard(deps.Logger)
	if deps.Validator == nil {
		deps.Validator = validate.New(deps.Logger)
	}
	return &Orchestrator{opts: opts, deps: deps, now: time.Now}
}

// run is the state owned by one execution: the undo log and the
// collaborators bound to it live exactly as long as the run.
type run struct {
	id     string
	start  time.Time
	state  *checkpoint.State
	logger *log.Logger

	analysis *analysis.Result
	plan     *plan.ReleasePlan

	undo      *undo.Log
	manifests *manifest.Coordinator
	changelog *changelog.Writer
	git       *gitops.Operator

	// files staged into the release commit
	files []string
	// stages whose local changes a rollback undoes
	mutated []string

	result *ReleaseResult
}

func (o *Orchestrator) newRun(state *checkpoint.State, u *undo.Log) *run {
	logger := o.deps.Logger.With("run_id", state.RunID)
	return &run{
		id:        state.RunID,
		start:     o.now(),
		state:     state,
		logger:    logger,
		undo:      u,
		manifests: manifest.NewCoordinator(u, logger),
		changelog: changelog.NewWriter(u, logger),
		git:       gitops.NewOperator(o.deps.Runner, o.opts.Dir, u, logger),
		result:    &ReleaseResult{RunID: state.RunID, DryRun: o.opts.DryRun, Errors: []errors.ReleaseError{}},
	}
}

// Run executes a new release from analysis onwards.
func (o *Orchestrator) Run(ctx context.Context) *ReleaseResult {
	state := checkpoint.NewState(uuid.NewString())
	state.SetMetadata("dir", o.opts.Dir)
	state.SetMetadata("dry_run", fmt.Sprint(o.opts.DryRun))
	r := o.newRun(state, undo.New())
	r.logger.Info("release started", "dir", o.opts.Dir, "dry_run", o.opts.DryRun)
	o.emit(ctx, r, hooks.EventReleaseStarted, "")
	return o.drive(ctx, r, StageAnalysis)
}

// Resume continues a persisted run from the stage after its last
// finished one, using the persisted plan. Analysis and planning are
// never run again.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*ReleaseResult, error) {
	if o.deps.Checkpoints == nil {
		return nil, errors.New(errors.CodeRunNotResumable, "no checkpoint directory configured")
	}
	state, err := o.deps.Checkpoints.Load(runID)
	if err != nil {
		return nil, err
	}
	from, err := ResumePoint(state)
	if err != nil {
		return nil, err
	}
	var entries []undo.Entry
	if len(state.Journal) > 0 {
		if err := json.Unmarshal(state.Journal, &entries); err != nil {
			return nil, errors.Wrap(errors.CodeRunNotResumable, "persisted undo journal is unreadable", err)
		}
	}
	mutated := mutatedStages(state)
	if len(mutated) > 0 && len(entries) == 0 {
		return nil, errors.Newf(errors.CodeRunNotResumable,
			"run %s changed the working tree but recorded no undo journal", runID).
			WithSuggestion("Inspect the working tree, then start a new run with releasekit release")
	}

	if len(state.Payload) == 0 {
		return nil, errors.Newf(errors.CodeRunNotResumable, "run %s has no persisted plan", runID)
	}
	p, err := plan.Decode(state.Payload)
	if err != nil {
		return nil, errors.Wrap(errors.CodeRunNotResumable, "persisted plan is unreadable", err)
	}

	// a dry run stays a dry run
	if v, _ := state.GetMetadata("dry_run"); v == "true" && !o.opts.DryRun {
		dry := *o
		dry.opts.DryRun = true
		o = &dry
	}

	state.Status = checkpoint.StatusRunning
	r := o.newRun(state, undo.FromEntries(entries))
	r.mutated = mutated
	r.plan = p
	r.result.Version = p.Version.To
	r.logger.Info("release resumed", "from", from, "version", p.Version.To)
	o.emit(ctx, r, hooks.EventReleaseStarted, "", "resumed_from", string(from))
	return o.drive(ctx, r, from), nil
}

// drive walks the state machine from the given stage to a terminal state.
func (o *Orchestrator) drive(ctx context.Context, r *run, from State) *ReleaseResult {
	current := from
	for !IsTerminal(current) {
		outcome, panicked := o.execute(ctx, r, current)
		next, ok := Next(current, outcome)
		if !ok {
			next = StateFailed
		}
		if outcome == OutcomeFailure && (IsHardGate(current) || panicked) {
			o.rollback(ctx, r)
		}
		current = next
	}
	return o.finish(ctx, r, current)
}

// execute runs one stage with tracing, metrics, checkpointing and panic
// recovery. Every execution appends exactly one StageResult.
func (o *Orchestrator) execute(ctx context.Context, r *run, stage State) (outcome Outcome, panicked bool) {
	ctx, span := telemetry.StartStageSpan(ctx, string(stage), r.id)
	defer span.End()

	logger := o.deps.Logger.ForStage(r.id, string(stage))
	start := o.now()
	r.state.UpdateStage(string(stage), checkpoint.StageRunning, nil)
	logger.Debug("stage started")

	var rep report
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				panicked = true
				logger.Error("stage panicked", "panic", rec, "stack", string(debug.Stack()))
				rep = failure(errors.Newf(errors.CodeUnexpectedError, "unexpected error in %s: %v", stage, rec))
			}
		}()
		rep = o.stage(stage)(ctx, r)
	}()

	duration := o.now().Sub(start)
	severity := errors.SeverityError
	if rep.outcome != OutcomeFailure {
		severity = errors.SeverityWarning
	}
	if rep.err != nil {
		rep.entries = append([]errors.ReleaseError{errors.Entry(rep.err, severity, string(stage))}, rep.entries...)
	}
	for _, e := range rep.entries {
		o.deps.Metrics.RecordError(string(e.Code), string(e.Severity))
	}
	r.result.Errors = append(r.result.Errors, rep.entries...)

	sr := StageResult{
		Stage:     stage,
		Outcome:   rep.outcome,
		Success:   rep.outcome == OutcomeSuccess || rep.outcome == OutcomeWarning || rep.outcome == OutcomeSkipped,
		Skipped:   rep.outcome == OutcomeSkipped,
		Duration:  duration,
		Timestamp: start,
	}
	var stageErr error
	if rep.err != nil {
		sr.Error = rep.err.Message
		stageErr = rep.err
	}
	if rep.outcome == OutcomeFailure {
		code := string(errors.CodeOf(stageErr))
		o.emit(ctx, r, hooks.EventStageFailed, string(stage), "error_code", code)
	}
	r.result.Stages = append(r.result.Stages, sr)

	r.state.UpdateStage(string(stage), checkpointStatus(rep.outcome), stageErr)
	o.save(r)

	o.deps.Metrics.RecordStage(string(stage), string(rep.outcome), duration)
	telemetry.RecordOutcome(span, string(rep.outcome))
	if rep.outcome == OutcomeFailure {
		telemetry.RecordError(span, stageErr)
	} else {
		telemetry.RecordSuccess(span)
	}

	switch rep.outcome {
	case OutcomeFailure:
		logger.WithError(stageErr).Error("stage failed", "duration", duration)
	case OutcomeWarning, OutcomeCancelled:
		logger.Warn("stage finished with warnings", "outcome", rep.outcome, "warnings", len(rep.entries))
	default:
		logger.Info("stage finished", "outcome", rep.outcome, "duration", duration)
	}
	return rep.outcome, panicked
}

func checkpointStatus(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return checkpoint.StageCompleted
	case OutcomeSkipped:
		return checkpoint.StageSkipped
	case OutcomeWarning:
		return checkpoint.StageWarning
	default:
		return checkpoint.StageFailed
	}
}

// rollback undoes the run's local changes. It runs detached from ctx so an
// interrupt does not also abort the cleanup.
func (o *Orchestrator) rollback(ctx context.Context, r *run) {
	ctx, span := telemetry.StartRollbackSpan(context.WithoutCancel(ctx), r.id)
	defer span.End()

	r.logger.Warn("rolling back release", "stages", r.mutated)
	coord := rollback.NewCoordinator(r.manifests, r.changelog, r.git, r.logger)
	res := coord.Rollback(ctx)
	r.result.Rollback = &res

	outcomes := make(map[string]string, len(res.Outcomes))
	for _, out := range res.Outcomes {
		switch {
		case out.Skipped:
			outcomes[out.Component] = "skipped"
		case out.Success:
			outcomes[out.Component] = "restored"
		default:
			outcomes[out.Component] = "failed"
		}
	}
	o.deps.Metrics.RecordRollback(res.Success, outcomes)
	telemetry.RecordDuration(span, "rollback", res.Duration)

	if !res.Success {
		err := errors.New(errors.CodeRollbackFailed, errors.Join(res.Errors()))
		telemetry.RecordError(span, err)
		r.result.Errors = append(r.result.Errors, errors.Entry(err, errors.SeverityError, "rollback"))
		o.deps.Metrics.RecordError(string(errors.CodeRollbackFailed), string(errors.SeverityError))
	}
	if len(r.mutated) > 0 {
		r.state.MarkRolledBack(r.mutated...)
	}
	o.save(r)
	o.emit(ctx, r, hooks.EventReleaseRolledBack, "", "success", fmt.Sprint(res.Success))
}

// finish fills in the result and persists the final state.
func (o *Orchestrator) finish(ctx context.Context, r *run, final State) *ReleaseResult {
	res := r.result
	res.FinalState = final
	res.Success = final == StateCompleted
	res.DurationMs = o.now().Sub(r.start).Milliseconds()
	if r.plan != nil {
		res.Version = r.plan.Version.To
	}

	switch final {
	case StateCompleted:
		now := o.now().UTC()
		res.ReleasedAt = &now
		for _, pkg := range r.plan.Packages {
			res.ReleasedPackages = append(res.ReleasedPackages, pkg.Name)
		}
		r.state.Status = checkpoint.StatusCompleted
		r.undo.Clear()
	case StateCancelled:
		r.state.Status = checkpoint.StatusCancelled
	default:
		if res.Rollback == nil || !res.Rollback.Success || len(r.mutated) == 0 {
			r.state.Status = checkpoint.StatusFailed
		}
	}
	o.save(r)
	o.deps.Metrics.RecordRun(string(final), time.Duration(res.DurationMs)*time.Millisecond)

	if res.Success {
		o.emit(ctx, r, hooks.EventReleaseCompleted, "", "dry_run", fmt.Sprint(o.opts.DryRun))
	} else {
		o.emit(ctx, r, hooks.EventReleaseFailed, "", "final_state", string(final))
	}

	if res.Success {
		r.logger.Info("release completed", "version", res.Version, "duration_ms", res.DurationMs,
			"warnings", len(res.Warnings()), "dry_run", o.opts.DryRun)
	} else {
		r.logger.Error("release did not complete", "state", final, "errors", len(res.Failures()))
	}
	return res
}

// emit delivers a lifecycle event to the hooks. Delivery ignores
// cancellation so an interrupted run still reports how it ended.
func (o *Orchestrator) emit(ctx context.Context, r *run, t hooks.EventType, stage string, kv ...string) {
	if o.deps.Hooks.Len() == 0 {
		return
	}
	e := hooks.NewEvent(t, r.id)
	e.Stage = stage
	if r.plan != nil {
		e.Version = r.plan.Version.To
		e.With("tag", r.plan.TagName())
	}
	for i := 0; i+1 < len(kv); i += 2 {
		e.With(kv[i], kv[i+1])
	}
	o.deps.Hooks.Emit(context.WithoutCancel(ctx), e)
}

// mutatedStages lists the local mutation stages a persisted run finished
// and did not roll back.
func mutatedStages(state *checkpoint.State) []string {
	var out []string
	for _, s := range []State{StagePackageUpdate, StageChangelogUpdate, StageGit} {
		st, ok := state.Stages[string(s)]
		if ok && st.Status == checkpoint.StageCompleted {
			out = append(out, string(s))
		}
	}
	return out
}

func (o *Orchestrator) save(r *run) {
	if o.deps.Checkpoints == nil {
		return
	}
	var journal any
	if r.undo.Len() > 0 {
		journal = r.undo.Entries("")
	}
	if err := r.state.SetJournal(journal); err != nil {
		r.logger.WithError(err).Warn("failed to record undo journal")
	}
	if err := o.deps.Checkpoints.Save(r.state); err != nil {
		r.logger.WithError(err).Warn("failed to save checkpoint")
	}
}

func (o *Orchestrator) path(rel string) string {
	if filepath.IsAbs(rel) || o.opts.Dir == "" {
		return rel
	}
	return filepath.Join(o.opts.Dir, rel)
}
