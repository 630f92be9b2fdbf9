package source

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/repreneur-cli/internal/model"
)

// Result is the outcome of one adapter's fetch.
type Result struct {
	Source   string
	Records  []model.RawRecord
	Err      error
	Duration time.Duration
}

// FetchAll runs every adapter concurrently, each bounded by timeout. A failing
// adapter never cancels the others. Results are returned in the order of
// adapters.
func FetchAll(ctx context.Context, adapters []Adapter, timeout time.Duration) []Result {
	log := zap.L().With(zap.String("component", "source.fetch"))
	results := make([]Result, len(adapters))

	// Failures are captured in results; goroutines never return an error.
	var g errgroup.Group
	g.SetLimit(max(len(adapters), 1))

	for i, a := range adapters {
		g.Go(func() error {
			results[i] = fetchOne(ctx, a, timeout, log)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func fetchOne(ctx context.Context, a Adapter, timeout time.Duration, log *zap.Logger) (res Result) {
	name := a.Name()
	sLog := log.With(zap.String("source", name))
	res.Source = name

	fctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Records = nil
			res.Err = FormatChanged(name, eris.Errorf("panic: %v", r))
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			fields := []zap.Field{zap.String("kind", KindOf(res.Err).String()), zap.Error(res.Err), zap.Duration("elapsed", res.Duration)}
			if KindOf(res.Err) == KindFormatChanged {
				sLog.Error("source fetch failed", fields...)
			} else {
				sLog.Warn("source fetch failed", fields...)
			}
			return
		}
		sLog.Info("source fetch complete", zap.Int("records", len(res.Records)), zap.Duration("elapsed", res.Duration))
	}()

	sLog.Info("starting fetch")
	recs, err := a.Fetch(fctx)
	if err == nil && fctx.Err() != nil {
		err = fctx.Err()
	}
	if err != nil {
		res.Err = classify(fctx, name, err)
		return res
	}

	for i := range recs {
		if recs[i].Source == "" {
			recs[i].Source = name
		}
	}
	res.Records = recs
	return res
}

// classify ensures every adapter failure carries a Kind. A deadline hit is
// always unavailability, whatever the adapter reported.
func classify(ctx context.Context, name string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return Unavailable(name, eris.Wrap(err, "timed out"))
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return Unavailable(name, err)
}
