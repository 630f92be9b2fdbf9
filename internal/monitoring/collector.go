package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/model"
	"github.com/sells-group/repreneur-cli/internal/store"
)

// LedgerCollector exposes the run ledger at scrape time, so a long-running
// server reports the outcome of batch runs executed by other processes.
type LedgerCollector struct {
	store   store.Store
	limit   int
	timeout time.Duration

	runs         *prometheus.Desc
	lastRun      *prometheus.Desc
	lastTotal    *prometheus.Desc
	lastFetched  *prometheus.Desc
	lastFailures *prometheus.Desc
}

// NewLedgerCollector creates a collector over the last limit runs.
func NewLedgerCollector(st store.Store, limit int) *LedgerCollector {
	if limit <= 0 {
		limit = 100
	}
	return &LedgerCollector{
		store:   st,
		limit:   limit,
		timeout: 5 * time.Second,
		runs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "runs"),
			"Recorded runs by status within the inspected window",
			[]string{"status"}, nil),
		lastRun: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "last_run_timestamp_seconds"),
			"Start time of the most recent run by status",
			[]string{"status"}, nil),
		lastTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "last_candidates"),
			"Candidate count of the most recent completed run",
			nil, nil),
		lastFetched: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "last_fetched"),
			"Records fetched per source by the most recent completed run",
			[]string{"source"}, nil),
		lastFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "last_source_failures"),
			"Sources that failed in the most recent run, by error kind",
			[]string{"source", "kind"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runs
	ch <- c.lastRun
	ch <- c.lastTotal
	ch <- c.lastFetched
	ch <- c.lastFailures
}

// Collect implements prometheus.Collector. Ledger errors are logged and
// yield no samples.
func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: c.limit})
	if err != nil {
		zap.L().Warn("monitoring: list runs for metrics", zap.Error(err))
		return
	}

	counts := map[model.RunStatus]int{
		model.RunStatusRunning:  0,
		model.RunStatusComplete: 0,
		model.RunStatusFailed:   0,
	}
	latest := map[model.RunStatus]time.Time{}
	for _, r := range runs {
		counts[r.Status]++
		if r.CreatedAt.After(latest[r.Status]) {
			latest[r.Status] = r.CreatedAt
		}
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.runs, prometheus.GaugeValue, float64(n), string(status))
	}
	for status, ts := range latest {
		ch <- prometheus.MustNewConstMetric(c.lastRun, prometheus.GaugeValue, float64(ts.Unix()), string(status))
	}

	// Runs are listed newest first.
	if len(runs) > 0 && runs[0].Summary != nil {
		for _, src := range runs[0].Summary.Sources {
			if src.ErrorKind != "" {
				ch <- prometheus.MustNewConstMetric(c.lastFailures, prometheus.GaugeValue, 1, src.Source, src.ErrorKind)
			}
		}
	}
	for _, r := range runs {
		if r.Status != model.RunStatusComplete || r.Summary == nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.lastTotal, prometheus.GaugeValue, float64(r.Summary.Total))
		for _, src := range r.Summary.Sources {
			ch <- prometheus.MustNewConstMetric(c.lastFetched, prometheus.GaugeValue, float64(src.Fetched), src.Source)
		}
		break
	}
}
