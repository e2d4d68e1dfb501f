// Package hooks notifies external scripts and webhooks about release
// lifecycle events. Hooks observe a run; they never change its outcome.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// EventType identifies a point in the release lifecycle.
type EventType string

const (
	EventReleaseStarted    EventType = "release.started"
	EventStageFailed       EventType = "stage.failed"
	EventReleaseRolledBack EventType = "release.rolled_back"
	EventReleaseCompleted  EventType = "release.completed"
	EventReleaseFailed     EventType = "release.failed"
)

// Hook types accepted in Config.Type.
const (
	TypeScript  = "script"
	TypeWebhook = "webhook"
)

// DefaultTimeout bounds a single hook execution.
const DefaultTimeout = 30 * time.Second

// Event is the payload delivered to hooks.
type Event struct {
	Type      EventType         `json:"type"`
	RunID     string            `json:"run_id"`
	Version   string            `json:"version,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(t EventType, runID string) *Event {
	return &Event{Type: t, RunID: runID, Timestamp: time.Now().UTC(), Data: map[string]string{}}
}

// With sets a data key and returns the event.
func (e *Event) With(key, value string) *Event {
	if e.Data == nil {
		e.Data = map[string]string{}
	}
	e.Data[key] = value
	return e
}

// Hook receives lifecycle events.
type Hook interface {
	Name() string
	Handles(t EventType) bool
	Execute(ctx context.Context, event *Event) error
}

// Config declares one hook in the config file.
type Config struct {
	Name     string            `yaml:"name" validate:"required"`
	Type     string            `yaml:"type" validate:"required,oneof=script webhook"`
	Events   []EventType       `yaml:"events" validate:"required,min=1,dive,oneof=release.started stage.failed release.rolled_back release.completed release.failed"`
	Command  []string          `yaml:"command" validate:"required_if=Type script"`
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
	Disabled bool              `yaml:"disabled"`
}

// Result is the outcome of one hook execution.
type Result struct {
	Hook     string
	Event    EventType
	Duration time.Duration
	Err      error
}

// events is shared by the built-in hooks.
type events []EventType

func (e events) Handles(t EventType) bool { return slices.Contains(e, t) }

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

func unknownType(c Config) error {
	return fmt.Errorf("hook %q: unknown type %q", c.Name, c.Type)
}
