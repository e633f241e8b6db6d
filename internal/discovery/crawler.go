// Package discovery finds the career pages of a company and proposes a
// target entry for them.
package discovery

import (
	"bytes"
	"context"
	"encoding/xml"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/baxromumarov/job-scraper/internal/httpx"
	"github.com/baxromumarov/job-scraper/internal/scraper"
	"github.com/baxromumarov/job-scraper/internal/urlutil"
)

// Crawler fetches a company homepage and looks for career links.
type Crawler struct {
	fetcher scraper.PageFetcher
	opts    httpx.RequestOptions
}

func NewCrawler(fetcher scraper.PageFetcher, opts httpx.RequestOptions) *Crawler {
	return &Crawler{fetcher: fetcher, opts: opts}
}

// CareerLinks crawls a page and augments results with path probes, sitemaps
// and ATS links. ATS links come first.
func (c *Crawler) CareerLinks(ctx context.Context, rawURL string) []string {
	base, err := url.Parse(rawURL)
	if err != nil || base.Host == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var ats, out []string

	add := func(u string) {
		if u == "" || !strings.HasPrefix(u, "http") {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		if urlutil.IsATSHost(hostFromURL(u)) {
			ats = append(ats, u)
			return
		}
		out = append(out, u)
	}

	links, _ := c.collectLinksFromPage(ctx, rawURL)
	for _, link := range links {
		add(link)
	}

	for _, probe := range probePaths(base) {
		if _, ok := seen[probe]; ok {
			continue
		}
		links, ok := c.collectLinksFromPage(ctx, probe)
		if !ok {
			continue
		}
		add(probe)
		for _, link := range links {
			add(link)
		}
	}

	for _, link := range c.parseSitemaps(ctx, base) {
		add(link)
	}

	return append(ats, out...)
}

// collectLinksFromPage returns the career links on target and whether the
// page could be fetched at all.
func (c *Crawler) collectLinksFromPage(ctx context.Context, target string) ([]string, bool) {
	pageBase, err := url.Parse(target)
	if err != nil {
		return nil, false
	}

	seen := make(map[string]struct{})
	var atsLinks []string
	var links []string
	_, err = c.fetcher.Fetch(ctx, target, c.opts, func(col *colly.Collector) {
		col.OnHTML("a[href]", func(e *colly.HTMLElement) {
			resolved := urlutil.Resolve(pageBase, e.Attr("href"))
			if resolved == "" {
				return
			}
			if _, ok := seen[resolved]; ok {
				return
			}
			seen[resolved] = struct{}{}

			host := hostFromURL(resolved)
			if urlutil.IsATSHost(host) {
				atsLinks = append(atsLinks, resolved)
				return
			}
			if !urlutil.SameHost(pageBase, host) || !urlutil.IsCrawlable(resolved) {
				return
			}
			if u, err := url.Parse(resolved); err != nil || !urlutil.IsJobPath(u.Path) {
				return
			}
			links = append(links, resolved)
		})
	})
	if err != nil {
		slog.Debug("discovery page fetch failed", "url", target, "error", err)
		return nil, false
	}

	if len(atsLinks) > 0 {
		return atsLinks, true
	}
	return links, true
}

func probePaths(base *url.URL) []string {
	if base == nil {
		return nil
	}
	paths := []string{"/careers", "/jobs", "/careers/jobs", "/join-us", "/work-with-us"}
	var out []string
	for _, p := range paths {
		res := *base
		res.Path = path.Clean(p)
		res.RawQuery = ""
		res.Fragment = ""
		out = append(out, res.String())
	}
	return out
}

type sitemapIndex struct {
	Locations []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlset struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

func (c *Crawler) parseSitemaps(ctx context.Context, base *url.URL) []string {
	if base == nil {
		return nil
	}
	candidates := []string{
		base.ResolveReference(&url.URL{Path: "/sitemap.xml"}).String(),
		base.ResolveReference(&url.URL{Path: "/sitemap_index.xml"}).String(),
	}
	var out []string
	seen := make(map[string]struct{})
	collect := func(u urlset) {
		for _, link := range u.URLs {
			loc := strings.TrimSpace(link.Loc)
			if !acceptSitemapURL(loc) {
				continue
			}
			if _, ok := seen[loc]; ok {
				continue
			}
			seen[loc] = struct{}{}
			out = append(out, loc)
		}
	}

	for _, sm := range candidates {
		body, ok := c.fetchBody(ctx, sm)
		if !ok {
			continue
		}

		var idx sitemapIndex
		if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&idx); err == nil && len(idx.Locations) > 0 {
			for _, loc := range idx.Locations {
				childBody, ok := c.fetchBody(ctx, strings.TrimSpace(loc.Loc))
				if !ok {
					continue
				}
				var u urlset
				if err := xml.NewDecoder(bytes.NewReader(childBody)).Decode(&u); err == nil {
					collect(u)
				}
			}
			continue
		}

		var u urlset
		if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&u); err == nil {
			collect(u)
		}
	}
	return out
}

func (c *Crawler) fetchBody(ctx context.Context, rawURL string) ([]byte, bool) {
	page, err := c.fetcher.Fetch(ctx, rawURL, c.opts, nil)
	if err != nil {
		slog.Debug("discovery sitemap fetch failed", "url", rawURL, "error", err)
		return nil, false
	}
	if page.Status != http.StatusOK || len(page.Body) == 0 {
		return nil, false
	}
	return page.Body, true
}

func acceptSitemapURL(u string) bool {
	l := strings.ToLower(u)
	return strings.Contains(l, "career") ||
		strings.Contains(l, "job") ||
		strings.Contains(l, "opening") ||
		strings.Contains(l, "position")
}

func hostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
