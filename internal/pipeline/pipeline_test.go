package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/classify"
	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/dedup"
	"github.com/sells-group/repreneur-cli/internal/model"
	"github.com/sells-group/repreneur-cli/internal/monitoring"
	"github.com/sells-group/repreneur-cli/internal/normalize"
	"github.com/sells-group/repreneur-cli/internal/sink"
	"github.com/sells-group/repreneur-cli/internal/source"
	"github.com/sells-group/repreneur-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type harness struct {
	pipeline *Pipeline
	snapshot *sink.Snapshot
	metrics  *monitoring.Metrics
}

func newHarness(t *testing.T, st store.Store, adapters ...source.Adapter) *harness {
	t.Helper()
	snap := sink.NewSnapshot(filepath.Join(t.TempDir(), "out", "candidates.json"))
	cl := classify.New(classify.DefaultConfig())
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	p := New(
		adapters,
		normalize.New(normalize.DefaultSectors(), []string{"pappers", "bodacc"}),
		cl,
		dedup.New(cl, dedup.DefaultFuzzyThreshold),
		snap,
		st,
		m,
		monitoring.NewAlerter(config.MonitoringConfig{}),
		10*time.Second,
	)
	return &harness{pipeline: p, snapshot: snap, metrics: m}
}

// failingSnapshot loads normally and fails every write.
type failingSnapshot struct {
	SnapshotStore
}

func (f *failingSnapshot) Write(context.Context, string, []model.Candidate) error {
	return &sink.PersistError{Path: f.Path(), Op: "rename", Err: errors.New("disk full")}
}

func registryRecord(retrieved time.Time) model.RawRecord {
	r := model.NewRawRecord("pappers", "552100554", retrieved)
	r.Set(model.FieldLegalID, "552 100 554")
	r.Set(model.FieldName, "Maison Verdier SARL")
	r.Set(model.FieldPostalCode, "75003")
	r.Set(model.FieldCity, "Paris")
	r.Set(model.FieldSectorCode, "3212Z")
	r.Set(model.FieldFoundingDate, "1987-04-01")
	r.Set(model.FieldDirectorAge, "63")
	r.Set(model.FieldRevenue, "1200000")
	return r
}

func noticeRecord(retrieved time.Time) model.RawRecord {
	r := model.NewRawRecord("bodacc", "A202500123", retrieved)
	r.Set(model.FieldLegalID, "552100554")
	r.Set(model.FieldName, "MAISON VERDIER")
	r.Set(model.FieldPostalCode, "75003")
	r.Set(model.FieldActivity, "joaillerie, fabrication de bijoux")
	r.Set(model.FieldProcedure, "Jugement d'ouverture de liquidation judiciaire")
	r.Set(model.FieldProcedureDate, "2025-03-10")
	return r
}

func TestRun_EndToEnd_RegistryThenNotice(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	registry := &mockAdapter{name: "pappers"}
	registry.On("Fetch", mock.Anything).Return([]model.RawRecord{registryRecord(base)}, nil)
	notice := &mockAdapter{name: "bodacc"}
	notice.On("Fetch", mock.Anything).Return([]model.RawRecord{noticeRecord(base.Add(10 * 24 * time.Hour))}, nil)

	h := newHarness(t, nil, registry, notice)
	res, err := h.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, res.Candidates, 1)
	c := res.Candidates[0]
	assert.Equal(t, "552100554", c.LegalID)
	assert.Equal(t, model.ProcedureJudicialLiquidation, c.ProcedureStatus)
	assert.Equal(t, []model.Channel{model.ChannelDistressed}, c.ChannelTags)
	assert.Len(t, c.SourceRefs, 2)

	s := res.Summary
	assert.Equal(t, model.RunStatusComplete, s.Status)
	assert.Equal(t, 1, s.Total)
	assert.Equal(t, 1, s.New)
	assert.Equal(t, 1, s.Merged)
	assert.Equal(t, 1, s.Tags[model.ChannelDistressed])
	assert.Equal(t, 0, s.Tags[model.ChannelSuccession])
	assert.Equal(t, 1, s.Procedures["JUDICIAL_LIQUIDATION"])

	doc, err := h.snapshot.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.RunID, doc.RunID)
	require.Len(t, doc.Candidates, 1)
	assert.Equal(t, model.ProcedureJudicialLiquidation, doc.Candidates[0].ProcedureStatus)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	registry := &mockAdapter{name: "pappers"}
	registry.On("Fetch", mock.Anything).Return([]model.RawRecord{registryRecord(base)}, nil)
	notice := &mockAdapter{name: "bodacc"}
	notice.On("Fetch", mock.Anything).Return([]model.RawRecord{noticeRecord(base.Add(time.Hour))}, nil)

	h := newHarness(t, nil, registry, notice)
	first, err := h.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)
	second, err := h.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, second.Summary.Baseline)
	assert.Equal(t, 0, second.Summary.New)
	assert.Equal(t, 2, second.Summary.Merged)
	assert.Empty(t, cmp.Diff(first.Candidates, second.Candidates, cmpopts.EquateEmpty()))
}

func TestRun_SourceFailureDoesNotFailRun(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	registry := &mockAdapter{name: "pappers"}
	registry.On("Fetch", mock.Anything).Return([]model.RawRecord{registryRecord(base)}, nil)
	listing := &mockAdapter{name: "actify"}
	listing.On("Fetch", mock.Anything).Return(nil, source.FormatChanged("actify", errors.New("no listing urls")))

	h := newHarness(t, nil, registry, listing)
	res, err := h.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, res.Summary.Sources, 2)
	assert.Equal(t, "pappers", res.Summary.Sources[0].Source)
	assert.Equal(t, "actify", res.Summary.Sources[1].Source)
	assert.Equal(t, "source_format_changed", res.Summary.Sources[1].ErrorKind)
	assert.Len(t, res.Candidates, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.SourceErrors.WithLabelValues("actify", "source_format_changed")), 0.001)
}

func TestRun_DropsAreCounted(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	noID := noticeRecord(base)
	delete(noID.Fields, model.FieldLegalID)
	offSector := registryRecord(base)
	offSector.RecordID = "111111111"
	offSector.Set(model.FieldLegalID, "111111111")
	offSector.Set(model.FieldSectorCode, "62.01Z")

	registry := &mockAdapter{name: "pappers"}
	registry.On("Fetch", mock.Anything).Return([]model.RawRecord{registryRecord(base), offSector}, nil)
	notice := &mockAdapter{name: "bodacc"}
	notice.On("Fetch", mock.Anything).Return([]model.RawRecord{noID}, nil)

	h := newHarness(t, nil, registry, notice)
	res, err := h.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)

	pap, bod := res.Summary.Sources[0], res.Summary.Sources[1]
	assert.Equal(t, 2, pap.Fetched)
	assert.Equal(t, 1, pap.Normalized)
	assert.Equal(t, map[string]int{"sector_out_of_scope": 1}, pap.Dropped)
	assert.Equal(t, 0, bod.Normalized)
	assert.Equal(t, map[string]int{"missing_legal_id": 1}, bod.Dropped)
	assert.Len(t, res.Candidates, 1)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	registry := &mockAdapter{name: "pappers"}
	registry.On("Fetch", mock.Anything).Return([]model.RawRecord{registryRecord(time.Now().UTC())}, nil)

	st := &mockStore{}
	h := newHarness(t, st, registry)
	res, err := h.pipeline.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 1)
	assert.Empty(t, res.Summary.SnapshotPath)

	_, statErr := os.Stat(h.snapshot.Path())
	assert.True(t, os.IsNotExist(statErr))
	st.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "FinishRun", mock.Anything, mock.Anything)
}

func TestRun_RecordsLedger(t *testing.T) {
	registry := &mockAdapter{name: "pappers"}
	registry.On("Fetch", mock.Anything).Return([]model.RawRecord{registryRecord(time.Now().UTC())}, nil)

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.AnythingOfType("*model.RunSummary")).Return(&model.Run{}, nil)
	st.On("FinishRun", mock.Anything, mock.MatchedBy(func(s *model.RunSummary) bool {
		return s.Status == model.RunStatusComplete && s.Total == 1 && s.SnapshotPath != ""
	})).Return(nil)

	h := newHarness(t, st, registry)
	_, err := h.pipeline.Run(context.Background(), Options{})
	require.NoError(t, err)
	st.AssertExpectations(t)
}

func TestRun_PersistFailureMarksRunFailed(t *testing.T) {
	registry := &mockAdapter{name: "pappers"}
	registry.On("Fetch", mock.Anything).Return([]model.RawRecord{registryRecord(time.Now().UTC())}, nil)

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{}, nil)
	st.On("FinishRun", mock.Anything, mock.MatchedBy(func(s *model.RunSummary) bool {
		return s.Status == model.RunStatusFailed && s.Error != ""
	})).Return(nil)

	h := newHarness(t, st, registry)
	h.pipeline.snapshot = &failingSnapshot{SnapshotStore: h.snapshot}

	res, err := h.pipeline.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, IsPersistError(err))
	assert.Equal(t, model.RunStatusFailed, res.Summary.Status)
	assert.Empty(t, res.Candidates)
	st.AssertExpectations(t)
}

func TestRun_CorruptBaselineFailsRun(t *testing.T) {
	registry := &mockAdapter{name: "pappers"}
	h := newHarness(t, nil, registry)
	require.NoError(t, os.MkdirAll(filepath.Dir(h.snapshot.Path()), 0o755))
	require.NoError(t, os.WriteFile(h.snapshot.Path(), []byte("{not json"), 0o644))

	res, err := h.pipeline.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load baseline")
	assert.Equal(t, model.RunStatusFailed, res.Summary.Status)
	registry.AssertNotCalled(t, "Fetch", mock.Anything)

	data, readErr := os.ReadFile(h.snapshot.Path())
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}
