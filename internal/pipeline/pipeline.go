// Package pipeline runs one batch pass: fetch every source, normalize,
// classify, merge into the previous snapshot and persist the result.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/classify"
	"github.com/sells-group/repreneur-cli/internal/dedup"
	"github.com/sells-group/repreneur-cli/internal/model"
	"github.com/sells-group/repreneur-cli/internal/monitoring"
	"github.com/sells-group/repreneur-cli/internal/normalize"
	"github.com/sells-group/repreneur-cli/internal/sink"
	"github.com/sells-group/repreneur-cli/internal/source"
	"github.com/sells-group/repreneur-cli/internal/store"
)

// SnapshotStore loads the baseline and persists the merged set.
// *sink.Snapshot implements it.
type SnapshotStore interface {
	Path() string
	Load(ctx context.Context) (*sink.Document, error)
	Write(ctx context.Context, runID string, candidates []model.Candidate) error
}

// Pipeline orchestrates one batch run.
type Pipeline struct {
	adapters   []source.Adapter
	normalizer *normalize.Normalizer
	classifier *classify.Classifier
	merger     *dedup.Merger
	snapshot   SnapshotStore
	store      store.Store
	metrics    *monitoring.Metrics
	alerter    *monitoring.Alerter
	timeout    time.Duration
	now        func() time.Time
}

// New creates a Pipeline. A nil store records nothing; nil metrics and
// alerter are skipped.
func New(
	adapters []source.Adapter,
	normalizer *normalize.Normalizer,
	classifier *classify.Classifier,
	merger *dedup.Merger,
	snapshot SnapshotStore,
	st store.Store,
	metrics *monitoring.Metrics,
	alerter *monitoring.Alerter,
	timeout time.Duration,
) *Pipeline {
	if st == nil {
		st = store.Noop{}
	}
	return &Pipeline{
		adapters:   adapters,
		normalizer: normalizer,
		classifier: classifier,
		merger:     merger,
		snapshot:   snapshot,
		store:      st,
		metrics:    metrics,
		alerter:    alerter,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Options tune a single run.
type Options struct {
	// DryRun computes the merged set without writing the snapshot or
	// recording the run in the ledger.
	DryRun bool
}

// Result is the outcome of Run.
type Result struct {
	Summary    *model.RunSummary
	Candidates []model.Candidate
}

// Run executes one full pass. Source failures are recorded in the summary
// and never fail the run; a snapshot that cannot be loaded or written does.
// The summary is returned in both cases.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	summary := &model.RunSummary{
		RunID:        uuid.New().String(),
		Status:       model.RunStatusRunning,
		StartedAt:    p.now(),
		SnapshotPath: p.snapshot.Path(),
	}
	if opts.DryRun {
		summary.SnapshotPath = ""
	}
	log := zap.L().With(zap.String("run_id", summary.RunID), zap.Bool("dry_run", opts.DryRun))
	log.Info("pipeline: starting run", zap.Int("sources", len(p.adapters)))

	if !opts.DryRun {
		if _, err := p.store.CreateRun(ctx, summary); err != nil {
			log.Warn("pipeline: failed to record run start", zap.Error(err))
		}
	}

	res, err := p.run(ctx, summary, opts, log)
	if err != nil {
		summary.Status = model.RunStatusFailed
		summary.Error = err.Error()
		log.Error("pipeline: run failed", zap.Error(err))
	} else {
		summary.Status = model.RunStatusComplete
	}
	summary.FinishedAt = p.now()

	p.finish(summary, opts, log)
	if err != nil {
		return &Result{Summary: summary}, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, summary *model.RunSummary, opts Options, log *zap.Logger) (*Result, error) {
	doc, err := p.snapshot.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load baseline")
	}
	summary.Baseline = len(doc.Candidates)

	results := source.FetchAll(ctx, p.adapters, p.timeout)
	var incoming []model.Candidate
	for _, r := range results {
		stats, cs := p.normalizeResult(r)
		summary.Sources = append(summary.Sources, stats)
		incoming = append(incoming, cs...)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: cancelled after fetch")
	}

	merged, ms := p.merger.MergeWithStats(doc.Candidates, incoming)
	summary.New = ms.New
	summary.Merged = ms.Merged
	summary.Total = ms.Total
	summary.Tags, summary.Procedures = distribution(merged)

	log.Info("pipeline: merged",
		zap.Int("baseline", ms.Baseline),
		zap.Int("incoming", ms.Incoming),
		zap.Int("new", ms.New),
		zap.Int("merged", ms.Merged),
		zap.Int("total", ms.Total),
	)

	if !opts.DryRun {
		if err := p.snapshot.Write(ctx, summary.RunID, merged); err != nil {
			return nil, eris.Wrap(err, "pipeline: persist snapshot")
		}
	}
	return &Result{Summary: summary, Candidates: merged}, nil
}

// normalizeResult turns one adapter's records into classified candidates
// and counts what was kept and dropped.
func (p *Pipeline) normalizeResult(r source.Result) (model.SourceStats, []model.Candidate) {
	stats := model.SourceStats{
		Source:     r.Source,
		Fetched:    len(r.Records),
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		stats.ErrorKind = source.KindOf(r.Err).String()
		stats.Error = r.Err.Error()
	}

	out := make([]model.Candidate, 0, len(r.Records))
	for _, raw := range r.Records {
		c, reason := p.normalizer.Normalize(raw)
		if c == nil {
			if stats.Dropped == nil {
				stats.Dropped = make(map[string]int)
			}
			stats.Dropped[string(reason)]++
			zap.L().Debug("pipeline: record dropped",
				zap.String("source", raw.Source),
				zap.String("record_id", raw.RecordID),
				zap.String("reason", string(reason)),
			)
			continue
		}
		out = append(out, p.classifier.Classify(*c))
	}
	stats.Normalized = len(out)
	return stats, out
}

// finish persists outputs and reports the run. Persistence errors flip the
// summary to failed before it reaches the ledger.
func (p *Pipeline) finish(summary *model.RunSummary, opts Options, log *zap.Logger) {
	// The caller's context may be done already; recording the outcome must
	// still happen.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !opts.DryRun {
		if err := p.store.FinishRun(ctx, summary); err != nil {
			log.Warn("pipeline: failed to record run outcome", zap.Error(err))
		}
	}
	if p.metrics != nil {
		p.metrics.ObserveRun(summary)
	}
	if p.alerter != nil {
		if alerts := p.alerter.Evaluate(summary); len(alerts) > 0 {
			sent := p.alerter.SendAlerts(ctx, alerts)
			log.Info("pipeline: alerts", zap.Int("triggered", len(alerts)), zap.Int("sent", sent))
		}
	}

	log.Info("pipeline: run finished",
		zap.String("status", string(summary.Status)),
		zap.Int("total", summary.Total),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
}

func distribution(cs []model.Candidate) (map[model.Channel]int, map[string]int) {
	tags := map[model.Channel]int{
		model.ChannelSuccession: 0,
		model.ChannelDistressed: 0,
	}
	procs := make(map[string]int)
	for i := range cs {
		for _, t := range cs[i].ChannelTags {
			tags[t]++
		}
		procs[cs[i].ProcedureStatus.String()]++
	}
	return tags, procs
}

// IsPersistError reports whether err came from writing the snapshot.
func IsPersistError(err error) bool {
	var pe *sink.PersistError
	return errors.As(err, &pe)
}
