package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStage(t *testing.T) {
	_, m := NewRegistry()

	m.RecordStage("push", "success", 200*time.Millisecond)
	m.RecordStage("push", "success", 100*time.Millisecond)
	m.RecordStage("host-publish", "warning", time.Second)

	if got := testutil.ToFloat64(m.StageOutcomes.WithLabelValues("push", "success")); got != 2 {
		t.Errorf("push successes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StageOutcomes.WithLabelValues("host-publish", "warning")); got != 1 {
		t.Errorf("host-publish warnings = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.StageDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestRecordRollback(t *testing.T) {
	_, m := NewRegistry()

	m.RecordRollback(false, map[string]string{
		"manifests": "restored",
		"changelog": "skipped",
		"git":       "failed",
	})

	if got := testutil.ToFloat64(m.Rollbacks.WithLabelValues("false")); got != 1 {
		t.Errorf("failed rollbacks = %v", got)
	}
	if got := testutil.ToFloat64(m.RollbackComponents.WithLabelValues("git", "failed")); got != 1 {
		t.Errorf("git failures = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordStage("push", "success", time.Second)
	m.RecordRun("completed", time.Second)
	m.RecordRollback(true, nil)
	m.RecordPublish("npm", true)
	m.RecordArtifacts(1, 0)
	m.RecordError("PUSH_FAILED", "error")
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordPublish("npm", true)
	m.RecordError("RELEASE_EXISTS", "warning")

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`releasekit_publish_total{success="true",target="npm"} 1`,
		`releasekit_errors_total{code="RELEASE_EXISTS",severity="warning"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in output", want)
		}
	}
}

func TestWriteToTextfile(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordRun("completed", 3*time.Second)
	m.RecordArtifacts(2, 1)

	path := filepath.Join(t.TempDir(), "releasekit.prom")
	if err := WriteToTextfile(path, reg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `releasekit_runs_total{state="completed"} 1`) {
		t.Errorf("unexpected textfile:\n%s", data)
	}
	if !strings.Contains(string(data), `releasekit_artifact_uploads_total{success="false"} 1`) {
		t.Errorf("unexpected textfile:\n%s", data)
	}
}
