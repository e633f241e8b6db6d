package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/baxromumarov/job-scraper/internal/urlutil"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// inferredCards are tried in order when a target has no job card selector.
var inferredCards = []string{
	"[data-job-id]",
	".job-listing",
	".job-card",
	".job-post",
	".opening",
	".posting",
	".position",
	".job",
	"li.careers-job",
	"tr.job",
}

var titleFallbacks = []string{"h2", "h3", "h4", ".title", ".job-title", "a"}

const maxLinkJobs = 60

// HTMLStrategy extracts jobs from markup with configured or inferred
// selectors, falling back to job-link heuristics.
type HTMLStrategy struct {
	fetcher PageFetcher
}

func NewHTMLStrategy(fetcher PageFetcher) *HTMLStrategy {
	return &HTMLStrategy{fetcher: fetcher}
}

func (s *HTMLStrategy) Kind() StrategyKind { return StrategyHTML }

func (s *HTMLStrategy) Extract(ctx context.Context, target TargetConfig, opts FetchOptions) ([]RawJob, error) {
	maxPages := target.Pagination.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var (
		all     []RawJob
		visited = map[string]struct{}{}
		next    = target.URL
	)
	for page := 0; page < maxPages && next != ""; page++ {
		if _, ok := visited[next]; ok {
			break
		}
		visited[next] = struct{}{}
		if page > 0 {
			if err := opts.throttle(ctx); err != nil {
				// keep what earlier pages produced
				break
			}
		}

		fetched, err := s.fetcher.Fetch(ctx, next, requestOptions(opts), nil)
		if err != nil {
			if page > 0 {
				break
			}
			return nil, Classify(err, StrategyHTML)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fetched.Body))
		if err != nil {
			if page > 0 {
				break
			}
			return nil, parseError(StrategyHTML, fmt.Errorf("html parse failed: %w", err))
		}

		base, _ := url.Parse(fetched.URL)
		all = append(all, extractFromDocument(doc, base, target.Selectors)...)
		next = nextPageURL(doc, base, target.Selectors)
	}

	return finishPageJobs(all, target.URL, target, StrategyHTML), nil
}

// ExtractHTML runs the selector and link extractors over a fetched document.
func ExtractHTML(body []byte, pageURL string, sel *Selectors) ([]RawJob, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("html parse failed: %w", err)
	}
	base, _ := url.Parse(pageURL)
	return extractFromDocument(doc, base, sel), nil
}

func extractFromDocument(doc *goquery.Document, base *url.URL, sel *Selectors) []RawJob {
	if sel != nil && sel.JobCard != "" {
		return extractCards(doc.Find(sel.JobCard), base, sel)
	}
	for _, card := range inferredCards {
		cards := doc.Find(card)
		if cards.Length() == 0 {
			continue
		}
		if jobs := extractCards(cards, base, sel); len(jobs) > 0 {
			return jobs
		}
	}
	return extractJobLinks(doc, base)
}

func extractCards(cards *goquery.Selection, base *url.URL, sel *Selectors) []RawJob {
	var hints Selectors
	if sel != nil {
		hints = *sel
	}
	var jobs []RawJob
	cards.Each(func(_ int, card *goquery.Selection) {
		title := cardText(card, hints.Title, titleFallbacks...)
		if title == "" {
			return
		}
		job := RawJob{
			Title:       title,
			Location:    cardText(card, hints.Location, ".location", ".job-location", "[data-location]"),
			Description: cardText(card, hints.Description, ".description", ".summary", "p"),
		}
		if href := cardLink(card, hints.Link); href != "" {
			job.URL = urlutil.Resolve(base, href)
		}
		jobs = append(jobs, job)
	})
	return jobs
}

func cardText(card *goquery.Selection, configured string, fallbacks ...string) string {
	candidates := fallbacks
	if configured != "" {
		candidates = []string{configured}
	}
	for _, c := range candidates {
		if text := collapse(card.Find(c).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func cardLink(card *goquery.Selection, configured string) string {
	if configured != "" {
		if href, ok := card.Find(configured).First().Attr("href"); ok {
			return href
		}
	}
	if href, ok := card.Attr("href"); ok {
		return href
	}
	href, _ := card.Find("a[href]").First().Attr("href")
	return href
}

// extractJobLinks is the last resort: anchors on the same site whose path
// looks like a job detail page.
func extractJobLinks(doc *goquery.Document, base *url.URL) []RawJob {
	baseIsATS := base != nil && urlutil.IsATSHost(base.Hostname())
	seen := make(map[string]struct{})
	var jobs []RawJob

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(jobs) >= maxLinkJobs {
			return false
		}
		href, _ := a.Attr("href")
		text := collapse(a.Text())
		if !baseIsATS && !looksLikeJobLink(href, text) {
			return true
		}

		resolved := urlutil.Resolve(base, href)
		if resolved == "" {
			return true
		}
		normalized, host, err := urlutil.Normalize(resolved)
		if err != nil || host == "" || !urlutil.IsCrawlable(normalized) {
			return true
		}
		if !urlutil.SameHost(base, host) && !urlutil.IsATSHost(host) {
			return true
		}
		u, err := url.Parse(normalized)
		if err != nil || !isDetailPath(u.Path) {
			return true
		}
		if base != nil && strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(base.Path, "/") {
			return true
		}
		if _, ok := seen[normalized]; ok {
			return true
		}
		seen[normalized] = struct{}{}

		title := text
		if len(title) < 3 || len(title) > 140 {
			title = pathTitleFromURL(normalized)
		}
		jobs = append(jobs, RawJob{Title: title, URL: normalized})
		return true
	})
	return jobs
}

func looksLikeJobLink(href, text string) bool {
	lower := strings.ToLower(href + " " + text)
	for _, kw := range []string{"job", "career", "opening", "position", "vacanc"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isDetailPath wants a job-ish segment followed by at least one more segment.
func isDetailPath(p string) bool {
	segs := strings.Split(strings.Trim(strings.ToLower(p), "/"), "/")
	for i, seg := range segs {
		if urlutil.IsJobPath("/"+seg) && i < len(segs)-1 {
			return true
		}
	}
	return false
}

func nextPageURL(doc *goquery.Document, base *url.URL, sel *Selectors) string {
	selectors := []string{"a[rel='next']", ".pagination .next a", "a.next"}
	if sel != nil && sel.NextPage != "" {
		selectors = []string{sel.NextPage}
	}
	for _, s := range selectors {
		if href, ok := doc.Find(s).First().Attr("href"); ok {
			if next := urlutil.Resolve(base, href); next != "" {
				return next
			}
		}
	}
	return ""
}

func resolveLink(base *url.URL, href string) string {
	return urlutil.Resolve(base, href)
}

func pathTitleFromURL(u string) string {
	if parsed, err := url.Parse(u); err == nil {
		u = parsed.Path
	}
	parts := strings.Split(u, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		p := strings.TrimSpace(parts[i])
		if p == "" {
			continue
		}
		p = strings.ReplaceAll(p, "-", " ")
		p = strings.ReplaceAll(p, "_", " ")
		return cases.Title(language.Und).String(p)
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
