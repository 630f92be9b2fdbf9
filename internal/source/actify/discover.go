package actify

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/fetcher"
)

func (a *Adapter) abs(path string) string {
	return a.base.ResolveReference(&url.URL{Path: path}).String()
}

// discoverSitemaps reads the WordPress sitemaps, following one level of
// sub-sitemaps.
func (a *Adapter) discoverSitemaps(ctx context.Context, d *discovery) {
	seen := make(map[string]bool)
	for _, p := range sitemapPaths {
		if ctx.Err() != nil {
			return
		}
		subs := a.readSitemap(ctx, a.abs(p), d)
		for _, sub := range subs {
			if seen[sub] {
				continue
			}
			seen[sub] = true
			a.readSitemap(ctx, sub, d)
		}
	}
}

// readSitemap records listing URLs found in one sitemap and returns the
// nested .xml sitemaps it references.
func (a *Adapter) readSitemap(ctx context.Context, u string, d *discovery) []string {
	resp, err := a.fetcher.Get(ctx, u)
	if err != nil {
		d.fail(err)
		zap.L().Debug("actify: sitemap unavailable", zap.String("url", u), zap.Error(err))
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck
	d.succeeded()

	var subs []string
	found := 0
	err = fetcher.EachXML(ctx, resp.Body, "loc", func(loc string) error {
		loc = strings.TrimSpace(loc)
		switch {
		case strings.HasSuffix(loc, ".xml"):
			subs = append(subs, loc)
		case IsListingURL(loc, a.base.Host):
			d.add(loc)
			found++
		}
		return nil
	})
	if err != nil {
		zap.L().Warn("actify: sitemap parse failed", zap.String("url", u), zap.Error(err))
	}
	zap.L().Debug("actify: sitemap read", zap.String("url", u), zap.Int("listings", found), zap.Int("sitemaps", len(subs)))
	return subs
}

type wpPost struct {
	Link string `json:"link"`
}

// discoverREST pages through the WordPress REST API, up to maxPages per
// endpoint.
func (a *Adapter) discoverREST(ctx context.Context, d *discovery) {
	for _, ep := range restEndpoints {
		for page := 1; page <= a.maxPages; page++ {
			if ctx.Err() != nil {
				return
			}
			q := url.Values{}
			q.Set("per_page", "100")
			q.Set("page", strconv.Itoa(page))
			q.Set("status", "publish")
			u := a.abs(ep) + "?" + q.Encode()

			posts, hdr, err := fetcher.GetJSON[[]wpPost](ctx, a.fetcher, u)
			if err != nil {
				d.fail(err)
				zap.L().Debug("actify: rest page unavailable", zap.String("url", u), zap.Error(err))
				break
			}
			d.succeeded()
			if len(*posts) == 0 {
				break
			}
			for _, p := range *posts {
				if IsListingURL(p.Link, a.base.Host) {
					d.add(p.Link)
				}
			}

			total, err := strconv.Atoi(hdr.Get("X-WP-TotalPages"))
			if err != nil || page >= total {
				break
			}
		}
	}
}

// discoverSectors crawls sector index pages for listing links.
func (a *Adapter) discoverSectors(ctx context.Context, d *discovery) {
	for _, p := range a.sectorPaths {
		if ctx.Err() != nil {
			return
		}
		u := a.abs(p)
		resp, err := a.fetcher.Get(ctx, u)
		if err != nil {
			d.fail(err)
			continue
		}
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			d.fail(err)
			continue
		}
		d.succeeded()

		page, _ := url.Parse(u)
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				return
			}
			abs := page.ResolveReference(ref)
			abs.Fragment, abs.RawFragment = "", ""
			if IsListingURL(abs.String(), a.base.Host) {
				d.add(abs.String())
			}
		})
	}
}
