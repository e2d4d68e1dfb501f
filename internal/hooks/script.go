package hooks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/felixgeelhaar/releasekit/internal/exec"
)

// ScriptHook runs a command with the event exposed as RELEASEKIT_*
// environment variables.
type ScriptHook struct {
	events
	name    string
	command []string
	dir     string
	runner  exec.Runner
}

// NewScriptHook creates a script hook that runs in dir.
func NewScriptHook(c Config, runner exec.Runner, dir string) (*ScriptHook, error) {
	if len(c.Command) == 0 {
		return nil, fmt.Errorf("hook %q: command required", c.Name)
	}
	return &ScriptHook{events: c.Events, name: c.Name, command: c.Command, dir: dir, runner: runner}, nil
}

func (h *ScriptHook) Name() string { return h.name }

func (h *ScriptHook) Execute(ctx context.Context, event *Event) error {
	cmd := exec.Command{Dir: h.dir, Name: h.command[0], Args: h.command[1:], Env: Env(event)}
	if _, err := h.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("script %s: %w", cmd, err)
	}
	return nil
}

// Env renders an event as environment variables. Data keys become
// RELEASEKIT_DATA_<KEY>.
func Env(event *Event) []string {
	env := []string{
		"RELEASEKIT_EVENT=" + string(event.Type),
		"RELEASEKIT_RUN_ID=" + event.RunID,
		"RELEASEKIT_VERSION=" + event.Version,
		"RELEASEKIT_STAGE=" + event.Stage,
	}
	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(k))
		env = append(env, "RELEASEKIT_DATA_"+name+"="+event.Data[k])
	}
	return env
}
