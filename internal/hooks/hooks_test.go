package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/releasekit/internal/exec"
)

type recordingHook struct {
	events
	name  string
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) Execute(ctx context.Context, _ *Event) error {
	h.calls.Add(1)
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return h.err
}

func TestEnv(t *testing.T) {
	e := NewEvent(EventStageFailed, "run-1").With("error-code", "PUSH_FAILED").With("tag", "v1.1.0")
	e.Version = "1.1.0"
	e.Stage = "push"

	assert.Equal(t, []string{
		"RELEASEKIT_EVENT=stage.failed",
		"RELEASEKIT_RUN_ID=run-1",
		"RELEASEKIT_VERSION=1.1.0",
		"RELEASEKIT_STAGE=push",
		"RELEASEKIT_DATA_ERROR_CODE=PUSH_FAILED",
		"RELEASEKIT_DATA_TAG=v1.1.0",
	}, Env(e))
}

func TestScriptHook(t *testing.T) {
	runner := exec.NewFakeRunner().On("./notify.sh fail", exec.Response{Err: errors.New("exit 1")})

	ok, err := NewScriptHook(Config{Name: "ok", Command: []string{"./notify.sh", "--quiet"}, Events: []EventType{EventReleaseCompleted}}, runner, "/work")
	require.NoError(t, err)
	assert.True(t, ok.Handles(EventReleaseCompleted))
	assert.False(t, ok.Handles(EventReleaseFailed))
	require.NoError(t, ok.Execute(context.Background(), NewEvent(EventReleaseCompleted, "run-1")))
	assert.True(t, runner.Called("./notify.sh --quiet"))

	bad, err := NewScriptHook(Config{Name: "bad", Command: []string{"./notify.sh", "fail"}}, runner, "/work")
	require.NoError(t, err)
	assert.ErrorContains(t, bad.Execute(context.Background(), NewEvent(EventReleaseCompleted, "run-1")), "./notify.sh fail")

	_, err = NewScriptHook(Config{Name: "empty"}, runner, "/work")
	assert.Error(t, err)
}

func TestWebhookHookPostsEvent(t *testing.T) {
	var got Event
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		header = r.Header.Get("X-Token")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h, err := NewWebhookHook(Config{Name: "ci", URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}}, srv.Client())
	require.NoError(t, err)

	e := NewEvent(EventReleaseCompleted, "run-7")
	e.Version = "2.0.0"
	require.NoError(t, h.Execute(context.Background(), e))
	assert.Equal(t, EventReleaseCompleted, got.Type)
	assert.Equal(t, "run-7", got.RunID)
	assert.Equal(t, "2.0.0", got.Version)
	assert.Equal(t, "secret", header)
}

func TestWebhookHookRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h, err := NewWebhookHook(Config{Name: "flaky", URL: srv.URL}, srv.Client())
	require.NoError(t, err)
	require.NoError(t, h.Execute(context.Background(), NewEvent(EventReleaseFailed, "run-1")))
	assert.Equal(t, int32(2), hits.Load())
}

func TestWebhookHookClientErrorIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h, err := NewWebhookHook(Config{Name: "auth", URL: srv.URL}, srv.Client())
	require.NoError(t, err)
	err = h.Execute(context.Background(), NewEvent(EventReleaseFailed, "run-1"))
	assert.ErrorContains(t, err, "status 401")
	assert.Equal(t, int32(1), hits.Load())
}

func TestDispatcherEmit(t *testing.T) {
	done := &recordingHook{name: "done", events: events{EventReleaseCompleted}}
	both := &recordingHook{name: "both", events: events{EventReleaseCompleted, EventReleaseFailed}, err: errors.New("boom")}
	failed := &recordingHook{name: "failed", events: events{EventReleaseFailed}}

	d := NewDispatcher(nil, done, both, failed)
	assert.Equal(t, 3, d.Len())

	results := d.Emit(context.Background(), NewEvent(EventReleaseCompleted, "run-1"))
	require.Len(t, results, 2)
	assert.Equal(t, "done", results[0].Hook)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "both", results[1].Hook)
	assert.EqualError(t, results[1].Err, "boom")

	assert.Equal(t, int32(1), done.calls.Load())
	assert.Equal(t, int32(0), failed.calls.Load())
}

func TestDispatcherTimeout(t *testing.T) {
	slow := &recordingHook{name: "slow", events: events{EventReleaseStarted}, delay: time.Second}
	d := NewDispatcher(nil, slow)
	d.timeouts["slow"] = 10 * time.Millisecond

	results := d.Emit(context.Background(), NewEvent(EventReleaseStarted, "run-1"))
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	assert.Zero(t, d.Len())
	assert.Nil(t, d.Emit(context.Background(), NewEvent(EventReleaseStarted, "run-1")))
}

func TestFromConfig(t *testing.T) {
	d, err := FromConfig([]Config{
		{Name: "notify", Type: TypeScript, Command: []string{"./notify.sh"}, Events: []EventType{EventReleaseCompleted}},
		{Name: "chat", Type: TypeWebhook, URL: "https://hooks.example.com/x", Events: []EventType{EventReleaseFailed}, Timeout: 5 * time.Second},
		{Name: "off", Type: TypeScript, Command: []string{"true"}, Disabled: true},
	}, exec.NewFakeRunner(), "/work", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, DefaultTimeout, d.timeouts["notify"])
	assert.Equal(t, 5*time.Second, d.timeouts["chat"])

	_, err = FromConfig([]Config{{Name: "x", Type: "email"}}, nil, "", nil)
	assert.ErrorContains(t, err, `unknown type "email"`)
}
