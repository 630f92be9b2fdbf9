package main

import (
	"context"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/repreneur-cli/internal/classify"
	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/dedup"
	"github.com/sells-group/repreneur-cli/internal/fetcher"
	"github.com/sells-group/repreneur-cli/internal/monitoring"
	"github.com/sells-group/repreneur-cli/internal/normalize"
	"github.com/sells-group/repreneur-cli/internal/pipeline"
	"github.com/sells-group/repreneur-cli/internal/sink"
	"github.com/sells-group/repreneur-cli/internal/source"
	"github.com/sells-group/repreneur-cli/internal/source/actify"
	"github.com/sells-group/repreneur-cli/internal/source/bodacc"
	"github.com/sells-group/repreneur-cli/internal/source/pappers"
	"github.com/sells-group/repreneur-cli/internal/store"
)

// runEnv holds everything the run command needs.
type runEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Registry *prometheus.Registry
}

// Close releases resources held by the environment.
func (e *runEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initRunEnv builds the pipeline over the adapters named in sources (every
// enabled adapter when empty). snapshotPath overrides the configured one.
func initRunEnv(ctx context.Context, c *config.Config, sources []string, snapshotPath string, dryRun bool) (*runEnv, error) {
	if err := c.Validate("run"); err != nil {
		return nil, err
	}

	sectors, err := loadSectors(c)
	if err != nil {
		return nil, err
	}
	adapters, err := selectAdapters(c, sectors, sources)
	if err != nil {
		return nil, err
	}

	clsCfg := classify.FromConfig(c.Classify)
	if err := clsCfg.Validate(); err != nil {
		return nil, err
	}
	cl := classify.New(clsCfg)

	var st store.Store = store.Noop{}
	if !dryRun {
		st, err = store.Open(ctx, c.Store)
		if err != nil {
			return nil, eris.Wrap(err, "open run ledger")
		}
	}

	if snapshotPath == "" {
		snapshotPath = c.Sink.SnapshotPath
	}

	reg := prometheus.NewRegistry()
	p := pipeline.New(
		adapters,
		normalize.New(sectors, c.Normalize.RequireLegalID),
		cl,
		dedup.New(cl, c.Dedup.FuzzyThreshold),
		sink.NewSnapshot(snapshotPath),
		st,
		monitoring.NewMetrics(reg),
		monitoring.NewAlerter(c.Monitoring),
		time.Duration(c.Sources.TimeoutSecs)*time.Second,
	)

	zap.L().Info("pipeline initialized",
		zap.Int("adapters", len(adapters)),
		zap.Int("sectors", sectors.Len()),
		zap.String("snapshot", snapshotPath),
		zap.String("store", c.Store.Driver),
	)
	return &runEnv{Store: st, Pipeline: p, Registry: reg}, nil
}

func loadSectors(c *config.Config) (*normalize.Sectors, error) {
	if c.Normalize.SectorsFile == "" {
		return normalize.DefaultSectors(), nil
	}
	s, err := normalize.LoadSectors(c.Normalize.SectorsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load sector allow-list")
	}
	return s, nil
}

// selectAdapters registers every adapter and returns those requested, or
// the configured enabled set when requested is empty.
func selectAdapters(c *config.Config, sectors *normalize.Sectors, requested []string) ([]source.Adapter, error) {
	reg, err := buildRegistry(c, sectors)
	if err != nil {
		return nil, err
	}
	names := requested
	if len(names) == 0 {
		names = c.Sources.Enabled
	}
	adapters, err := reg.Select(names)
	if err != nil {
		return nil, eris.Wrapf(err, "select sources (known: %v)", reg.Names())
	}
	return adapters, nil
}

// buildRegistry creates the adapters in merge order: registry first, then
// listing, then notices.
func buildRegistry(c *config.Config, sectors *normalize.Sectors) (*source.Registry, error) {
	f := newFetcher(c)

	act, err := actify.New(f, c.Sources.Actify)
	if err != nil {
		return nil, eris.Wrap(err, "init actify adapter")
	}

	reg := source.NewRegistry()
	reg.Register(pappers.New(f, c.Sources.Pappers, sectors.Codes()))
	reg.Register(act)
	reg.Register(bodacc.New(f, c.Sources.Bodacc))
	return reg, nil
}

// newFetcher builds the shared HTTP fetcher with one rate limit per
// upstream host.
func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	hostRates := make(map[string]rate.Limit)
	for _, hr := range []struct {
		base string
		rate float64
	}{
		{c.Sources.Pappers.BaseURL, c.Sources.Pappers.RateLimit},
		{c.Sources.Actify.BaseURL, c.Sources.Actify.RateLimit},
		{c.Sources.Bodacc.BaseURL, c.Sources.Bodacc.RateLimit},
	} {
		u, err := url.Parse(hr.base)
		if err != nil || u.Host == "" || hr.rate <= 0 {
			continue
		}
		hostRates[u.Host] = rate.Limit(hr.rate)
	}

	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.Sources.UserAgent,
		HostRates: hostRates,
	})
}
