package pipeline

import (
	"github.com/felixgeelhaar/releasekit/internal/checkpoint"
	"github.com/felixgeelhaar/releasekit/internal/errors"
)

// State is a pipeline stage or a terminal state.
type State string

// Stages, in execution order.
const (
	StageAnalysis        State = "analysis"
	StagePlanning        State = "planning"
	StageValidation      State = "validation"
	StageConfirmation    State = "confirmation"
	StagePackageUpdate   State = "package-update"
	StageChangelogUpdate State = "changelog-update"
	StageGit             State = "git-commit-and-tag"
	StagePush            State = "push"
	StageHostPublish     State = "host-publish"
	StageRegistryPublish State = "registry-publish"
)

// Terminal states.
const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Outcome is how a stage execution ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeWarning   Outcome = "warning"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// Stages lists every stage in order.
var Stages = []State{
	StageAnalysis,
	StagePlanning,
	StageValidation,
	StageConfirmation,
	StagePackageUpdate,
	StageChangelogUpdate,
	StageGit,
	StagePush,
	StageHostPublish,
	StageRegistryPublish,
}

// hardGates abort and roll back the run when they fail.
var hardGates = map[State]bool{
	StageValidation:    true,
	StagePackageUpdate: true,
	StageGit:           true,
	StagePush:          true,
}

type transition struct {
	from    State
	outcome Outcome
}

var transitions = buildTransitions()

func buildTransitions() map[transition]State {
	t := make(map[transition]State, len(Stages)*5)
	for i, s := range Stages {
		next := StateCompleted
		if i+1 < len(Stages) {
			next = Stages[i+1]
		}
		t[transition{s, OutcomeSuccess}] = next
		t[transition{s, OutcomeSkipped}] = next
		t[transition{s, OutcomeWarning}] = next
		t[transition{s, OutcomeFailure}] = StateFailed
		t[transition{s, OutcomeCancelled}] = StateCancelled
	}
	return t
}

// Next returns the state reached from s on outcome. Terminal states and
// unknown pairs have no transition.
func Next(s State, o Outcome) (State, bool) {
	next, ok := transitions[transition{s, o}]
	return next, ok
}

// IsTerminal reports whether s ends a run.
func IsTerminal(s State) bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// IsHardGate reports whether a failure of s rolls the run back.
func IsHardGate(s State) bool {
	return hardGates[s]
}

// ResumePoint returns the stage a persisted run continues from: the
// success transition of the last stage in the unbroken run of finished
// stages. Rolled back stages break the run. Runs that never got a plan,
// already completed or were cancelled cannot resume.
func ResumePoint(state *checkpoint.State) (State, error) {
	switch state.Status {
	case checkpoint.StatusCompleted:
		return "", errors.Newf(errors.CodeRunNotResumable, "run %s already completed", state.RunID)
	case checkpoint.StatusCancelled:
		return "", errors.Newf(errors.CodeRunNotResumable, "run %s was cancelled", state.RunID).
			WithSuggestion("Start a new run with releasekit release")
	}

	var last State
	for _, s := range Stages {
		st, ok := state.Stages[string(s)]
		if !ok || !finished(st.Status) {
			break
		}
		last = s
	}

	if last == "" || last == StageAnalysis {
		return "", errors.Newf(errors.CodeRunNotResumable, "run %s has no release plan to resume from", state.RunID).
			WithSuggestion("Start a new run with releasekit release")
	}
	next, _ := Next(last, OutcomeSuccess)
	if next == StateCompleted {
		return "", errors.Newf(errors.CodeRunNotResumable, "run %s has no stages left to run", state.RunID)
	}
	return next, nil
}

func finished(status string) bool {
	switch status {
	case checkpoint.StageCompleted, checkpoint.StageWarning, checkpoint.StageSkipped:
		return true
	}
	return false
}
