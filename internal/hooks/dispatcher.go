package hooks

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/releasekit/internal/exec"
	"github.com/felixgeelhaar/releasekit/internal/log"
)

// maxConcurrent bounds how many hooks run for one event at a time.
const maxConcurrent = 4

// Dispatcher delivers events to every hook that handles them. A nil
// Dispatcher is valid and does nothing.
type Dispatcher struct {
	hooks    []Hook
	timeouts map[string]time.Duration
	logger   *log.Logger
}

// NewDispatcher creates a dispatcher over already built hooks.
func NewDispatcher(logger *log.Logger, hooks ...Hook) *Dispatcher {
	return &Dispatcher{hooks: hooks, timeouts: map[string]time.Duration{}, logger: log.OrDiscard(logger)}
}

// FromConfig builds the enabled hooks. Script hooks run through runner
// in dir.
func FromConfig(configs []Config, runner exec.Runner, dir string, logger *log.Logger) (*Dispatcher, error) {
	d := NewDispatcher(logger)
	for _, c := range configs {
		if c.Disabled {
			continue
		}
		var (
			h   Hook
			err error
		)
		switch c.Type {
		case TypeScript:
			h, err = NewScriptHook(c, runner, dir)
		case TypeWebhook:
			h, err = NewWebhookHook(c, &http.Client{Timeout: timeoutOr(c.Timeout)})
		default:
			err = unknownType(c)
		}
		if err != nil {
			return nil, err
		}
		d.hooks = append(d.hooks, h)
		d.timeouts[c.Name] = timeoutOr(c.Timeout)
	}
	return d, nil
}

// Len reports how many hooks are registered.
func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.hooks)
}

// Emit runs the matching hooks concurrently and waits for them. Hook
// failures are logged and returned, never propagated to the caller's
// control flow.
func (d *Dispatcher) Emit(ctx context.Context, event *Event) []Result {
	if d == nil || len(d.hooks) == 0 {
		return nil
	}

	var matching []Hook
	for _, h := range d.hooks {
		if h.Handles(event.Type) {
			matching = append(matching, h)
		}
	}
	results := make([]Result, len(matching))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, h := range matching {
		g.Go(func() error {
			results[i] = d.run(ctx, h, event)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) run(ctx context.Context, h Hook, event *Event) Result {
	timeout, ok := d.timeouts[h.Name()]
	if !ok {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := h.Execute(ctx, event)
	res := Result{Hook: h.Name(), Event: event.Type, Duration: time.Since(start), Err: err}

	logger := d.logger.With("hook", h.Name(), "event", string(event.Type))
	if err != nil {
		logger.WithError(err).Warn("hook failed", "duration", res.Duration)
	} else {
		logger.Debug("hook executed", "duration", res.Duration)
	}
	return res
}
