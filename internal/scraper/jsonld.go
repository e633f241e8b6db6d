package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/baxromumarov/job-scraper/internal/httpx"
	"github.com/gocolly/colly/v2"
)

const ldJSONSelector = "script[type='application/ld+json']"

// PageFetcher is the HTML transport shared by the page-based strategies.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts httpx.RequestOptions, register func(*colly.Collector)) (*httpx.Page, error)
}

// JSONLDStrategy reads schema.org JobPosting blocks embedded in the page.
type JSONLDStrategy struct {
	fetcher PageFetcher
}

func NewJSONLDStrategy(fetcher PageFetcher) *JSONLDStrategy {
	return &JSONLDStrategy{fetcher: fetcher}
}

func (s *JSONLDStrategy) Kind() StrategyKind { return StrategyJSONLD }

func (s *JSONLDStrategy) Extract(ctx context.Context, target TargetConfig, opts FetchOptions) ([]RawJob, error) {
	var blocks []string
	page, err := s.fetcher.Fetch(ctx, target.URL, requestOptions(opts), func(c *colly.Collector) {
		c.OnHTML(ldJSONSelector, func(e *colly.HTMLElement) {
			blocks = append(blocks, e.Text)
		})
	})
	if err != nil {
		return nil, Classify(err, StrategyJSONLD)
	}

	jobs, err := jobsFromLDBlocks(blocks)
	if err != nil {
		return nil, parseError(StrategyJSONLD, err)
	}
	return finishPageJobs(jobs, page.URL, target, StrategyJSONLD), nil
}

// ExtractJSONLD runs the JSON-LD extractor over an already fetched document.
func ExtractJSONLD(body []byte) ([]RawJob, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("html parse failed: %w", err)
	}
	var blocks []string
	doc.Find(ldJSONSelector).Each(func(_ int, sel *goquery.Selection) {
		blocks = append(blocks, sel.Text())
	})
	return jobsFromLDBlocks(blocks)
}

// jobsFromLDBlocks fails only when every block was malformed.
func jobsFromLDBlocks(blocks []string) ([]RawJob, error) {
	var (
		jobs    []RawJob
		bad     int
		lastErr error
	)
	for _, raw := range blocks {
		parsed, err := parseJSONLDJobs(raw)
		if err != nil {
			bad++
			lastErr = err
			continue
		}
		jobs = append(jobs, parsed...)
	}
	if len(jobs) == 0 && bad > 0 && bad == len(blocks) {
		return nil, fmt.Errorf("json-ld unmarshal: %w", lastErr)
	}
	return jobs, nil
}

func parseJSONLDJobs(raw string) ([]RawJob, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	var jobs []RawJob
	findJobPostings(payload, &jobs)
	return jobs, nil
}

func findJobPostings(payload any, out *[]RawJob) {
	switch t := payload.(type) {
	case map[string]any:
		if job := jobFromMap(t); job != nil {
			*out = append(*out, *job)
			return
		}
		for _, key := range []string{"@graph", "itemListElement", "item"} {
			if nested, ok := t[key]; ok {
				findJobPostings(nested, out)
			}
		}
	case []any:
		for _, item := range t {
			findJobPostings(item, out)
		}
	}
}

func jobFromMap(payload map[string]any) *RawJob {
	if !isJobPostingType(payload["@type"]) {
		return nil
	}

	job := &RawJob{
		URL:            stringField(payload["url"]),
		Title:          stringField(payload["title"]),
		Description:    stringField(payload["description"]),
		Company:        orgName(payload["hiringOrganization"]),
		Location:       parseLocation(payload["jobLocation"]),
		PostedAt:       parseDate(payload["datePosted"]),
		EmploymentType: listField(payload["employmentType"]),
		Skills:         splitList(payload["skills"]),
		Requirements:   splitList(payload["qualifications"]),
	}
	if job.Title == "" {
		job.Title = stringField(payload["name"])
	}
	if strings.EqualFold(stringField(payload["jobLocationType"]), "TELECOMMUTE") {
		job.WorkplaceType = "remote"
		if job.Location == "" {
			job.Location = "Remote"
		}
	}
	applySalary(job, payload["baseSalary"])

	if job.Title == "" && job.Description == "" {
		return nil
	}
	return job
}

// applySalary reads a schema.org MonetaryAmount.
func applySalary(job *RawJob, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		if s := stringField(v); s != "" {
			job.SalaryText = s
		}
		return
	}
	job.SalaryCurrency = stringField(m["currency"])
	value := m["value"]
	if qv, ok := value.(map[string]any); ok {
		job.SalaryMin = numberField(qv["minValue"])
		job.SalaryMax = numberField(qv["maxValue"])
		if job.SalaryMin == 0 && job.SalaryMax == 0 {
			job.SalaryMin = numberField(qv["value"])
		}
		job.SalaryPeriod = schemaUnit(stringField(qv["unitText"]))
		return
	}
	job.SalaryMin = numberField(value)
	job.SalaryPeriod = schemaUnit(stringField(m["unitText"]))
}

func schemaUnit(v string) string {
	switch strings.ToUpper(v) {
	case "HOUR":
		return "hourly"
	case "DAY":
		return "daily"
	case "WEEK":
		return "weekly"
	case "MONTH":
		return "monthly"
	case "YEAR":
		return "yearly"
	}
	return ""
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if val, ok := t["@value"]; ok {
			if str, ok2 := val.(string); ok2 {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

func numberField(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// listField joins a string-or-array value.
func listField(v any) string {
	if arr, ok := v.([]any); ok {
		var parts []string
		for _, item := range arr {
			if s := stringField(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return stringField(v)
}

func splitList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := stringField(item); s != "" {
				out = append(out, s)
			}
		}
	default:
		for _, s := range strings.Split(stringField(v), ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func isJobPostingType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

func orgName(v any) string {
	if name := stringField(v); name != "" {
		return name
	}
	if org, ok := v.(map[string]any); ok {
		return stringField(org["name"])
	}
	return ""
}

func parseLocation(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if loc := parseLocation(item); loc != "" {
				return loc
			}
		}
	case map[string]any:
		if addr, ok := t["address"].(map[string]any); ok {
			return joinParts(
				stringField(addr["addressLocality"]),
				stringField(addr["addressRegion"]),
				countryField(addr["addressCountry"]),
			)
		}
		if name := stringField(t["name"]); name != "" {
			return name
		}
	}
	return ""
}

func countryField(v any) string {
	if s := stringField(v); s != "" {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		return stringField(m["name"])
	}
	return ""
}

func parseDate(v any) time.Time {
	val := stringField(v)
	if val == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t
		}
	}
	return time.Time{}
}

func joinParts(parts ...string) string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(p))
	}
	return strings.Join(out, ", ")
}

// finishPageJobs fills defaults for jobs scraped off a page and drops
// duplicates within the page.
func finishPageJobs(jobs []RawJob, pageURL string, target TargetConfig, kind StrategyKind) []RawJob {
	if len(jobs) == 0 {
		return nil
	}
	base, _ := url.Parse(pageURL)
	seen := make(map[string]struct{})
	out := make([]RawJob, 0, len(jobs))
	for i, job := range jobs {
		job.Strategy = kind
		if job.URL == "" {
			job.URL = pageURL + "#job-" + strconv.Itoa(i+1)
		} else if base != nil {
			if resolved := resolveLink(base, job.URL); resolved != "" {
				job.URL = resolved
			}
		}
		if job.Title == "" {
			job.Title = pathTitleFromURL(job.URL)
		}
		if job.Company == "" {
			job.Company = target.CompanyName()
		}
		if job.Title == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(job.URL)) + "|" + strings.ToLower(job.Title)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, job)
	}
	return out
}
