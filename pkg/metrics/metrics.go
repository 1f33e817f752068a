// Package metrics pushes the outcome of a run to a Prometheus Pushgateway.
// A one-shot process cannot be scraped, so the push is the only channel.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/werf/scanjob/pkg/orchestrator"
)

const pushJob = "scanjob"

type Run struct {
	JobName   string
	Namespace string
	Result    orchestrator.Result
	// FinishedAt is a unix timestamp in seconds.
	FinishedAt float64
}

// NewRegistry builds a registry holding the gauges of run.
func NewRegistry(run Run) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanjob_last_run_timestamp_seconds",
		Help: "Unix time the last scan run finished",
	})
	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanjob_last_run_success",
		Help: "Whether the last scan run succeeded (1) or not (0)",
	})
	outcome := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scanjob_last_run_outcome",
		Help: "Outcome of the last scan run, the current outcome is set to 1",
	}, []string{"outcome"})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanjob_last_run_duration_seconds",
		Help: "Wall time of the last scan run",
	})
	reportBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanjob_last_report_bytes",
		Help: "Size of the report uploaded by the last scan run",
	})

	reg.MustRegister(lastRun, success, outcome, duration, reportBytes)

	lastRun.Set(run.FinishedAt)
	if run.Result.Outcome.Successful() {
		success.Set(1)
	}
	outcome.WithLabelValues(string(run.Result.Outcome)).Set(1)
	duration.Set(run.Result.Duration.Seconds())
	reportBytes.Set(float64(run.Result.ReportBytes))

	return reg
}

// Push replaces the metrics grouped under the scanned job on the gateway at url.
func Push(ctx context.Context, url string, run Run) error {
	err := push.New(url, pushJob).
		Gatherer(NewRegistry(run)).
		Grouping("scan_job", run.JobName).
		Grouping("namespace", run.Namespace).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}

	return nil
}
