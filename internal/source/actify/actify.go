// Package actify discovers judicial-liquidation listings on actify.fr and
// extracts one raw record per listing page.
package actify

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/fetcher"
	"github.com/sells-group/repreneur-cli/internal/model"
	"github.com/sells-group/repreneur-cli/internal/source"
)

// Name is the source identifier.
const Name = "actify"

const (
	defaultBaseURL = "https://actify.fr"
	listingPrefix  = "/entreprises-liquidation-judiciaire/"
	// Sector pages are crawled only when the cheaper strategies found fewer
	// listings than this.
	sectorCrawlBelow = 5
	detailWorkers    = 4
	// Every listing on the crawled section is a liquidation sale.
	listingProcedure = "liquidation judiciaire"
)

// Static pages living under the listing prefix.
var excludedSlugs = map[string]bool{
	"entreprises-liquidation-judiciaire":           true,
	"a-propos":                                     true,
	"actify-reprendre":                             true,
	"contact-actify-cnajmj":                        true,
	"actifs-entreprises-liquidation-cnajmj":        true,
	"vente-actifs":                                 true,
	"fonds-de-commerce":                            true,
	"inscription-actify":                           true,
	"login-actify-marketplace-reglementee":         true,
	"login-etude-actify-marketplace-reglementee":   true,
	"comment-acheter-actif-liquidation-judiciaire": true,
	"mentions-legales":                             true,
	"politique-de-confidentialite":                 true,
}

var sitemapPaths = []string{
	"/wp-sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap.xml",
	"/post-sitemap.xml",
	"/wp-sitemap-posts-post-1.xml",
	"/wp-sitemap-posts-page-1.xml",
}

var restEndpoints = []string{
	"/wp-json/wp/v2/posts",
	"/wp-json/wp/v2/pages",
}

// DefaultSectorPaths lists the sector index pages crawled as a last resort.
var DefaultSectorPaths = []string{
	"/secteurs/annonces-secteur-industrie/",
	"/secteurs/annonces-secteur-artisanat/",
	"/secteurs/annonces-secteur-commerce-dalimentation/",
	"/secteurs/annonces-secteur-boulangerie/",
	"/secteurs/annonces-secteur-habillement-textile-retail/",
	"/secteurs/annonces-secteur-beaute-coiffure/",
	"/secteurs/annonces-secteur-design/",
	"/secteurs/annonces-secteur-activites-culturelles/",
	"/secteurs/annonce-cession-actif-alimentation-agro-alimentaire/",
	"/secteurs/annonces-secteur-autres/",
}

// Adapter implements source.Adapter for actify.fr.
type Adapter struct {
	fetcher     fetcher.Fetcher
	base        *url.URL
	maxPages    int
	maxDetails  int
	sectorPaths []string
	now         func() time.Time
}

var _ source.Adapter = (*Adapter)(nil)

// New builds the adapter from configuration.
func New(f fetcher.Fetcher, cfg config.ActifyConfig) (*Adapter, error) {
	raw := strings.TrimRight(cfg.BaseURL, "/")
	if raw == "" {
		raw = defaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Host == "" {
		return nil, eris.Errorf("actify: invalid base url %q", cfg.BaseURL)
	}

	a := &Adapter{
		fetcher:     f,
		base:        base,
		maxPages:    cfg.MaxPages,
		maxDetails:  cfg.MaxDetails,
		sectorPaths: cfg.SectorPaths,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if a.maxPages <= 0 {
		a.maxPages = 10
	}
	if a.maxDetails <= 0 {
		a.maxDetails = 200
	}
	if len(a.sectorPaths) == 0 {
		a.sectorPaths = DefaultSectorPaths
	}
	return a, nil
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

// Fetch discovers listing URLs and parses up to maxDetails detail pages.
func (a *Adapter) Fetch(ctx context.Context) ([]model.RawRecord, error) {
	log := zap.L().With(zap.String("source", Name))

	d := newDiscovery()
	a.discoverSitemaps(ctx, d)
	a.discoverREST(ctx, d)
	if d.len() < sectorCrawlBelow {
		a.discoverSectors(ctx, d)
	}
	if err := ctx.Err(); err != nil {
		return nil, source.Unavailable(Name, err)
	}

	urls := d.sorted()
	log.Info("actify: discovery complete",
		zap.Int("urls", len(urls)),
		zap.Int("requests_ok", d.ok),
		zap.Int("requests_failed", d.failed),
	)
	if len(urls) == 0 {
		if d.responded == 0 && d.lastErr != nil {
			return nil, source.Unavailable(Name, eris.Wrap(d.lastErr, "every discovery request failed"))
		}
		return nil, source.FormatChanged(Name, eris.New("no listing url discovered"))
	}
	if len(urls) > a.maxDetails {
		log.Warn("actify: detail pages capped", zap.Int("found", len(urls)), zap.Int("max", a.maxDetails))
		urls = urls[:a.maxDetails]
	}

	return a.fetchDetails(ctx, urls)
}

func (a *Adapter) fetchDetails(ctx context.Context, urls []string) ([]model.RawRecord, error) {
	recs := make([]*model.RawRecord, len(urls))
	retrieved := a.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailWorkers)
	for i, u := range urls {
		g.Go(func() error {
			rec, err := a.detail(gctx, u, retrieved)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("actify: detail page failed", zap.String("url", u), zap.Error(err))
				rec = slugRecord(u, retrieved)
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, source.Unavailable(Name, err)
	}

	out := make([]model.RawRecord, 0, len(recs))
	for _, r := range recs {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (a *Adapter) detail(ctx context.Context, u string, retrieved time.Time) (*model.RawRecord, error) {
	resp, err := a.fetcher.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	l, err := ParseListing(resp.Body)
	if err != nil {
		return nil, err
	}
	if l.Title == "" {
		zap.L().Debug("actify: page without title skipped", zap.String("url", u))
		return nil, nil
	}
	rec := l.Record(u, retrieved)
	return &rec, nil
}

// slugRecord stands in for a listing whose detail page could not be read.
func slugRecord(u string, retrieved time.Time) *model.RawRecord {
	slug := listingSlug(u)
	if slug == "" {
		return nil
	}
	r := model.NewRawRecord(Name, u, retrieved)
	r.Set(model.FieldName, strings.ReplaceAll(slug, "-", " "))
	r.Set(model.FieldProcedure, listingProcedure)
	r.Set(model.FieldURL, u)
	return &r
}

// IsListingURL reports whether u is a listing detail page on host.
func IsListingURL(u string, host string) bool {
	p, err := url.Parse(u)
	if err != nil {
		return false
	}
	if host != "" && p.Host != "" && trimWWW(p.Host) != trimWWW(host) {
		return false
	}
	if strings.Contains(p.Path, "/page/") || strings.Contains(p.Path, "/secteurs/") {
		return false
	}
	slug := listingSlug(u)
	return slug != "" && !excludedSlugs[slug]
}

func listingSlug(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(p.Path, "/")
	if !strings.HasPrefix(path+"/", listingPrefix) {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(path, strings.TrimRight(listingPrefix, "/")), "/")
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// discovery accumulates listing URLs across strategies.
type discovery struct {
	mu   sync.Mutex
	urls map[string]bool
	ok   int
	// responded counts requests the site answered, error statuses included.
	responded int
	failed    int
	lastErr   error
}

func newDiscovery() *discovery {
	return &discovery{urls: make(map[string]bool)}
}

func (d *discovery) add(u string) {
	d.mu.Lock()
	d.urls[u] = true
	d.mu.Unlock()
}

func (d *discovery) succeeded() {
	d.mu.Lock()
	d.ok++
	d.responded++
	d.mu.Unlock()
}

func (d *discovery) fail(err error) {
	d.mu.Lock()
	d.failed++
	d.lastErr = err
	var se *fetcher.StatusError
	if errors.As(err, &se) {
		d.responded++
	}
	d.mu.Unlock()
}

func (d *discovery) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *discovery) sorted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.urls))
	for u := range d.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
