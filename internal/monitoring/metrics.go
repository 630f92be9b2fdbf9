package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"

	"github.com/sells-group/repreneur-cli/internal/model"
)

const namespace = "repreneur"

// Metrics holds the per-run pipeline instruments.
type Metrics struct {
	Fetched      *prometheus.CounterVec
	Normalized   *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	SourceErrors *prometheus.CounterVec
	Candidates   prometheus.Gauge
	Tagged       *prometheus.GaugeVec
	Merged       prometheus.Counter
	New          prometheus.Counter
	RunDuration  prometheus.Histogram
	LastSuccess  prometheus.Gauge
	Runs         *prometheus.CounterVec
}

// NewMetrics registers the pipeline metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Fetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Raw records returned by each source",
		}, []string{"source"}),
		Normalized: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_normalized_total",
			Help:      "Raw records that produced a candidate",
		}, []string{"source"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Raw records dropped during normalization",
		}, []string{"source", "reason"}),
		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Failed source fetches by error kind",
		}, []string{"source", "kind"}),
		Candidates: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidates",
			Help:      "Candidates in the last written snapshot",
		}),
		Tagged: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidates_tagged",
			Help:      "Candidates per channel tag in the last written snapshot",
		}, []string{"channel"}),
		Merged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_merged_total",
			Help:      "Incoming candidates folded into an existing one",
		}),
		New: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_new_total",
			Help:      "Incoming candidates that created a new entry",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full pipeline run",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status",
		}, []string{"status"}),
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(s *model.RunSummary) {
	for _, src := range s.Sources {
		m.Fetched.WithLabelValues(src.Source).Add(float64(src.Fetched))
		m.Normalized.WithLabelValues(src.Source).Add(float64(src.Normalized))
		for reason, n := range src.Dropped {
			m.Dropped.WithLabelValues(src.Source, reason).Add(float64(n))
		}
		if src.ErrorKind != "" {
			m.SourceErrors.WithLabelValues(src.Source, src.ErrorKind).Inc()
		}
	}

	m.Runs.WithLabelValues(string(s.Status)).Inc()
	if !s.FinishedAt.IsZero() && !s.StartedAt.IsZero() {
		m.RunDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	}
	if s.Status != model.RunStatusComplete {
		return
	}

	m.Merged.Add(float64(s.Merged))
	m.New.Add(float64(s.New))
	m.Candidates.Set(float64(s.Total))
	for _, ch := range []model.Channel{model.ChannelSuccession, model.ChannelDistressed} {
		m.Tagged.WithLabelValues(string(ch)).Set(float64(s.Tags[ch]))
	}
	if !s.FinishedAt.IsZero() {
		m.LastSuccess.Set(float64(s.FinishedAt.Unix()))
	}
}

// WriteTextfile dumps everything in g to path in the node_exporter
// textfile format.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	if path == "" {
		return nil
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, g), "monitoring: write textfile %s", path)
}
