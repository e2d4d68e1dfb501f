// Package checkpoint persists per-run pipeline state so a run can be
// inspected after the fact and resumed after an interruption.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/fsutil"
)

// StateVersion is written into every checkpoint.
const StateVersion = "1.0"

// Run statuses.
const (
	StatusRunning    = "running"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusRolledBack = "rolled_back"
)

// Stage statuses.
const (
	StagePending    = "pending"
	StageRunning    = "running"
	StageCompleted  = "completed"
	StageFailed     = "failed"
	StageSkipped    = "skipped"
	StageWarning    = "warning"
	StageRolledBack = "rolled_back"
)

// State is the persisted state of one pipeline run
type State struct {
	Version         string            `json:"version"`
	RunID           string            `json:"run_id"`
	StartedAt       time.Time         `json:"started_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Status          string            `json:"status"`
	Stages          map[string]Stage  `json:"stages"`
	CompletedStages []string          `json:"completed_stages"`
	FailedStages    []string          `json:"failed_stages,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	// Payload carries the run context (the plan) for resume.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Journal carries the undo entries of local changes not yet
	// released or rolled back.
	Journal json.RawMessage `json:"journal,omitempty"`
}

// Stage is the persisted state of one stage
type Stage struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`
	Attempts    int       `json:"attempts"`
}

// Manager handles checkpoint persistence
type Manager struct {
	dir string
}

// NewManager creates a checkpoint manager rooted at dir
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Dir returns the checkpoint directory.
func (m *Manager) Dir() string {
	return m.dir
}

// NewState creates the state for a new run
func NewState(runID string) *State {
	now := time.Now().UTC()
	return &State{
		Version:   StateVersion,
		RunID:     runID,
		StartedAt: now,
		UpdatedAt: now,
		Status:    StatusRunning,
		Stages:    make(map[string]Stage),
		Metadata:  make(map[string]string),
	}
}

func (m *Manager) path(runID string) string {
	return filepath.Join(m.dir, runID+".json")
}

// Save persists state atomically
func (m *Manager) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("checkpoint state is nil")
	}
	if strings.ContainsAny(state.RunID, `/\`) || state.RunID == "" {
		return fmt.Errorf("invalid run ID %q", state.RunID)
	}

	state.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(m.path(state.RunID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

// Load reads the state of runID
func (m *Manager) Load(runID string) (*State, error) {
	data, err := os.ReadFile(m.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.CodeRunNotFound, "no checkpoint for run %s", runID).
				WithSuggestion("List known runs with releasekit runs list")
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint state: %w", err)
	}
	if state.Stages == nil {
		state.Stages = make(map[string]Stage)
	}
	return &state, nil
}

// Exists checks if a checkpoint exists for runID
func (m *Manager) Exists(runID string) bool {
	_, err := os.Stat(m.path(runID))
	return err == nil
}

// Delete removes a checkpoint
func (m *Manager) Delete(runID string) error {
	if err := os.Remove(m.path(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns every stored run, most recently started first
func (m *Manager) List() ([]*State, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var states []*State
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		state, err := m.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue // skip unreadable checkpoints
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.After(states[j].StartedAt)
	})
	return states, nil
}

// Cleanup deletes checkpoints of finished runs last updated before cutoff
// and returns how many were removed. Running runs are kept.
func (m *Manager) Cleanup(cutoff time.Time) (int, error) {
	states, err := m.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, s := range states {
		if s.Status == StatusRunning || !s.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := m.Delete(s.RunID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// UpdateStage updates or creates a stage record. Completed stages are
// appended to CompletedStages in the order they finish.
func (s *State) UpdateStage(name, status string, err error) {
	stage, exists := s.Stages[name]
	if !exists {
		stage = Stage{Name: name, Status: StagePending}
	}

	now := time.Now().UTC()
	if status == StageRunning {
		stage.StartedAt = now
		stage.Attempts++
		stage.Error = ""
	}
	switch status {
	case StageCompleted, StageWarning, StageSkipped:
		stage.CompletedAt = now
		if !slices.Contains(s.CompletedStages, name) {
			s.CompletedStages = append(s.CompletedStages, name)
		}
	case StageFailed:
		stage.CompletedAt = now
		if !slices.Contains(s.FailedStages, name) {
			s.FailedStages = append(s.FailedStages, name)
		}
	}
	stage.Status = status
	if err != nil {
		stage.Error = err.Error()
	}

	s.Stages[name] = stage
	s.UpdatedAt = now
}

// LastCompleted returns the most recently completed stage, or "".
func (s *State) LastCompleted() string {
	if len(s.CompletedStages) == 0 {
		return ""
	}
	return s.CompletedStages[len(s.CompletedStages)-1]
}

// MarkRolledBack flags every stage that mutated state as rolled back.
func (s *State) MarkRolledBack(stages ...string) {
	now := time.Now().UTC()
	for _, name := range stages {
		stage, ok := s.Stages[name]
		if !ok {
			continue
		}
		stage.Status = StageRolledBack
		s.Stages[name] = stage
	}
	s.Status = StatusRolledBack
	s.UpdatedAt = now
}

// SetPayload stores v as the run context.
func (s *State) SetPayload(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint payload: %w", err)
	}
	s.Payload = data
	return nil
}

// SetJournal stores v as the undo journal. A nil v clears it.
func (s *State) SetJournal(v any) error {
	if v == nil {
		s.Journal = nil
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint journal: %w", err)
	}
	s.Journal = data
	return nil
}

// SetMetadata sets a metadata key-value pair
func (s *State) SetMetadata(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
}

// GetMetadata retrieves a metadata value
func (s *State) GetMetadata(key string) (string, bool) {
	value, ok := s.Metadata[key]
	return value, ok
}

// IsFinished reports whether the run reached a terminal status.
func (s *State) IsFinished() bool {
	return s.Status != StatusRunning
}
