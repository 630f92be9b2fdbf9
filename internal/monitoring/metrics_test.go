package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/repreneur-cli/internal/model"
)

func completedSummary() *model.RunSummary {
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	return &model.RunSummary{
		RunID:      "run-1",
		Status:     model.RunStatusComplete,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Sources: []model.SourceStats{
			{Source: "pappers", Fetched: 10, Normalized: 8, Dropped: map[string]int{"missing_legal_id": 2}},
			{Source: "actify", ErrorKind: "source_unavailable", Error: "timeout"},
		},
		Total:  20,
		New:    5,
		Merged: 3,
		Tags:   map[model.Channel]int{model.ChannelSuccession: 7, model.ChannelDistressed: 2},
	}
}

func TestMetrics_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRun(completedSummary())

	assert.InDelta(t, 10, testutil.ToFloat64(m.Fetched.WithLabelValues("pappers")), 0.001)
	assert.InDelta(t, 8, testutil.ToFloat64(m.Normalized.WithLabelValues("pappers")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Dropped.WithLabelValues("pappers", "missing_legal_id")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SourceErrors.WithLabelValues("actify", "source_unavailable")), 0.001)
	assert.InDelta(t, 20, testutil.ToFloat64(m.Candidates), 0.001)
	assert.InDelta(t, 7, testutil.ToFloat64(m.Tagged.WithLabelValues("SUCCESSION")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Tagged.WithLabelValues("DISTRESSED")), 0.001)
	assert.InDelta(t, 3, testutil.ToFloat64(m.Merged), 0.001)
	assert.InDelta(t, 5, testutil.ToFloat64(m.New), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("complete")), 0.001)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestMetrics_FailedRunKeepsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveRun(completedSummary())

	failed := completedSummary()
	failed.Status = model.RunStatusFailed
	failed.Total = 0
	m.ObserveRun(failed)

	assert.InDelta(t, 20, testutil.ToFloat64(m.Candidates), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("failed")), 0.001)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveRun(completedSummary())

	path := filepath.Join(t.TempDir(), "repreneur.prom")
	require.NoError(t, WriteTextfile(reg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `repreneur_records_fetched_total{source="pappers"} 10`))
	assert.Contains(t, out, "repreneur_candidates 20")
}

func TestWriteTextfile_NoPath(t *testing.T) {
	assert.NoError(t, WriteTextfile(prometheus.NewRegistry(), ""))
}
