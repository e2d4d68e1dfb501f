package exec

import (
	"context"
	"strings"
	"sync"
)

// Response is a scripted outcome for a FakeRunner rule.
type Response struct {
	Output string
	Err    error
}

type rule struct {
	prefix string
	resp   Response
	times  int // remaining uses; <0 means unlimited
}

// FakeRunner records commands and answers them from scripted rules.
// Rules match on the "name arg arg" prefix; the most recently added
// matching rule wins. Unmatched commands succeed with empty output.
type FakeRunner struct {
	mu    sync.Mutex
	rules []*rule
	calls []Command
}

// NewFakeRunner creates an empty fake.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// On answers every command starting with prefix with resp.
func (f *FakeRunner) On(prefix string, resp Response) *FakeRunner {
	return f.OnTimes(prefix, -1, resp)
}

// OnTimes answers the next n commands starting with prefix with resp.
func (f *FakeRunner) OnTimes(prefix string, n int, resp Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{prefix: prefix, resp: resp, times: n})
	return f
}

// Run implements Runner.
func (f *FakeRunner) Run(_ context.Context, cmd Command) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, cmd)
	line := cmd.String()
	for i := len(f.rules) - 1; i >= 0; i-- {
		r := f.rules[i]
		if r.times == 0 || !strings.HasPrefix(line, r.prefix) {
			continue
		}
		if r.times > 0 {
			r.times--
		}
		return r.resp.Output, r.resp.Err
	}
	return "", nil
}

// Calls returns every command run so far, rendered as strings.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Called reports whether any command starting with prefix was run.
func (f *FakeRunner) Called(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
