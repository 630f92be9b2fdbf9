package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     RetryPolicy
	// Rate is the per-host request rate. Hosts in HostRates override it.
	Rate      rate.Limit
	HostRates map[string]rate.Limit
	Client    *http.Client
}

// hostLimiter throttles one host and slows down after 429 responses.
type hostLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	base    rate.Limit
	current rate.Limit
}

func newHostLimiter(r rate.Limit) *hostLimiter {
	return &hostLimiter{limiter: rate.NewLimiter(r, 1), base: r, current: r}
}

func (h *hostLimiter) wait(ctx context.Context) error {
	return h.limiter.Wait(ctx)
}

// throttled halves the rate, down to a quarter of the base rate.
func (h *hostLimiter) throttled() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := h.current / 2
	if floor := h.base / 4; next < floor {
		next = floor
	}
	h.current = next
	h.limiter.SetLimit(next)
	return next
}

// recovered steps the rate back up toward the base rate.
func (h *hostLimiter) recovered() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current >= h.base {
		return
	}
	next := h.current * 1.25
	if next > h.base {
		next = h.base
	}
	h.current = next
	h.limiter.SetLimit(next)
}

// HTTPFetcher implements Fetcher using net/http with per-host rate limiting
// and retry of transient failures.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*hostLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "repreneur-cli/1.0"
	}
	if opts.Rate == 0 {
		opts.Rate = 5
	}
	opts.Retry = opts.Retry.withDefaults()

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				MaxConnsPerHost:     8,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{
		client:   client,
		opts:     opts,
		limiters: make(map[string]*hostLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(u *url.URL) *hostLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters[u.Host]; ok {
		return l
	}
	r := f.opts.Rate
	if hr, ok := f.opts.HostRates[u.Host]; ok && hr > 0 {
		r = hr
	}
	l := newHostLimiter(r)
	f.limiters[u.Host] = l
	return l
}

// Get fetches rawURL. 408, 429 and 5xx responses and network failures are
// retried with backoff; a Retry-After header on 429 is honored up to the
// policy's MaxBackoff.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	lim := f.limiterFor(u)
	policy := f.opts.Retry
	log := zap.L().With(zap.String("url", rawURL))

	var lastErr error
	for attempt := range policy.MaxAttempts {
		if err := lim.wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")

		resp, err := f.client.Do(req)
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil || !IsTransient(err) {
				return nil, eris.Wrap(err, "fetcher: request")
			}
			lastErr = err
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			lim.recovered()
			return resp, nil
		default:
			_ = resp.Body.Close()
			se := &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
			if !se.Transient() {
				return nil, se
			}
			lastErr = se
			if resp.StatusCode == http.StatusTooManyRequests {
				newRate := lim.throttled()
				log.Warn("rate limited, slowing down", zap.Float64("rate", float64(newRate)))
				if d, ok := retryAfter(resp.Header); ok {
					wait = d
				}
			}
		}

		if attempt >= policy.MaxAttempts-1 {
			break
		}
		if wait == 0 {
			wait = policy.delay(attempt)
		}
		if wait > policy.MaxBackoff {
			wait = policy.MaxBackoff
		}
		log.Warn("transient fetch failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(lastErr),
		)
		if err := sleep(ctx, wait); err != nil {
			return nil, eris.Wrap(lastErr, "fetcher: cancelled during backoff")
		}
	}

	return nil, eris.Wrap(lastErr, "fetcher: all retries exhausted")
}
