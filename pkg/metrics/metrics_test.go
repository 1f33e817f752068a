package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/werf/scanjob/pkg/orchestrator"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(Run{
		JobName:    "kube-bench",
		Namespace:  "scans",
		FinishedAt: 1709288100,
		Result: orchestrator.Result{
			Outcome:     orchestrator.Succeeded,
			Duration:    90 * time.Second,
			ReportBytes: 2048,
		},
	})

	expected := `
# HELP scanjob_last_run_success Whether the last scan run succeeded (1) or not (0)
# TYPE scanjob_last_run_success gauge
scanjob_last_run_success 1
# HELP scanjob_last_report_bytes Size of the report uploaded by the last scan run
# TYPE scanjob_last_report_bytes gauge
scanjob_last_report_bytes 2048
# HELP scanjob_last_run_outcome Outcome of the last scan run, the current outcome is set to 1
# TYPE scanjob_last_run_outcome gauge
scanjob_last_run_outcome{outcome="Succeeded"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"scanjob_last_run_success", "scanjob_last_report_bytes", "scanjob_last_run_outcome")
	if err != nil {
		t.Fatal(err)
	}
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := Push(context.Background(), server.URL, Run{
		JobName:   "kube-bench",
		Namespace: "scans",
		Result:    orchestrator.Result{Outcome: orchestrator.JobFailed},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	wantPath := "/metrics/job/scanjob/scan_job/kube-bench/namespace/scans"
	if gotPath != wantPath {
		t.Errorf("expected path %q, got %q", wantPath, gotPath)
	}
	if !strings.Contains(gotBody, "scanjob_last_run_success") {
		t.Errorf("expected pushed body to carry run metrics")
	}
}

func TestPushError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := Push(context.Background(), server.URL, Run{JobName: "kube-bench", Namespace: "scans"}); err == nil {
		t.Error("expected error for a failing gateway")
	}
}
