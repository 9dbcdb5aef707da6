// Package metrics records backup run outcomes in Prometheus text format for
// node_exporter's textfile collector. wpfleet runs as a batch job, so there
// is no scrape endpoint.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	registry        *prometheus.Registry
	sites           *prometheus.GaugeVec
	runDuration     *prometheus.GaugeVec
	lastRun         *prometheus.GaugeVec
	lastSuccess     *prometheus.GaugeVec
	artifactsPruned *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sites: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wpfleet",
			Name:      "backup_sites",
			Help:      "Sites per outcome in the last backup run.",
		}, []string{"class", "status"}),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wpfleet",
			Name:      "backup_run_duration_seconds",
			Help:      "Wall time of the last backup run.",
		}, []string{"class"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wpfleet",
			Name:      "backup_last_run_timestamp_seconds",
			Help:      "Unix time the last backup run finished.",
		}, []string{"class"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wpfleet",
			Name:      "backup_last_success_timestamp_seconds",
			Help:      "Unix time of the last run in which no site failed.",
		}, []string{"class"}),
		artifactsPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wpfleet",
			Name:      "retention_artifacts_deleted_total",
			Help:      "Artifacts deleted by retention in this process.",
		}, []string{"class"}),
	}

	r.registry.MustRegister(r.sites, r.runDuration, r.lastRun, r.lastSuccess, r.artifactsPruned)
	return r
}

// ObserveRun records one finished run. counts maps a site status to the
// number of sites that ended in it; statuses of earlier runs of the class
// that are absent from counts are dropped.
func (r *Recorder) ObserveRun(class string, counts map[string]int, started, finished time.Time, failed bool) {
	r.sites.DeletePartialMatch(prometheus.Labels{"class": class})
	for status, n := range counts {
		r.sites.WithLabelValues(class, status).Set(float64(n))
	}
	r.runDuration.WithLabelValues(class).Set(finished.Sub(started).Seconds())
	r.lastRun.WithLabelValues(class).Set(float64(finished.Unix()))
	if !failed {
		r.lastSuccess.WithLabelValues(class).Set(float64(finished.Unix()))
	}
}

func (r *Recorder) ObservePruned(class string, n int) {
	r.artifactsPruned.WithLabelValues(class).Add(float64(n))
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically replaces path with the current metric values.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
