package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// islandMarkers are the state containers client-rendered pages hydrate from.
var islandMarkers = []string{
	"__NEXT_DATA__",
	"window.__appData",
	"window.__INITIAL_STATE__",
	"window.__PRELOADED_STATE__",
	"window.__NUXT__",
	"window.__APOLLO_STATE__",
}

var errNoIsland = errors.New("no data island found")

const maxIslandDepth = 14

// DataIslandStrategy pulls postings out of serialized application state.
type DataIslandStrategy struct {
	fetcher PageFetcher
}

func NewDataIslandStrategy(fetcher PageFetcher) *DataIslandStrategy {
	return &DataIslandStrategy{fetcher: fetcher}
}

func (s *DataIslandStrategy) Kind() StrategyKind { return StrategyIsland }

func (s *DataIslandStrategy) Extract(ctx context.Context, target TargetConfig, opts FetchOptions) ([]RawJob, error) {
	page, err := s.fetcher.Fetch(ctx, target.URL, requestOptions(opts), nil)
	if err != nil {
		return nil, Classify(err, StrategyIsland)
	}
	jobs, err := ExtractDataIsland(page.Body, page.URL)
	if err != nil {
		return nil, parseError(StrategyIsland, err)
	}
	return finishPageJobs(jobs, page.URL, target, StrategyIsland), nil
}

// ExtractDataIsland scans body for known state containers and returns the
// postings found in the first one that decodes.
func ExtractDataIsland(body []byte, pageURL string) ([]RawJob, error) {
	found := false
	var lastErr error
	for _, marker := range islandMarkers {
		payload, err := islandPayload(body, marker)
		if err != nil {
			if !errors.Is(err, errNoIsland) {
				found = true
				lastErr = err
			}
			continue
		}
		found = true
		var jobs []RawJob
		walkIsland(payload, pageURL, 0, &jobs)
		if len(jobs) > 0 {
			return jobs, nil
		}
	}
	if !found {
		return nil, errNoIsland
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func islandPayload(body []byte, marker string) (any, error) {
	idx := bytes.Index(body, []byte(marker))
	if idx == -1 {
		return nil, errNoIsland
	}
	rest := body[idx+len(marker):]
	start := bytes.IndexByte(rest, '{')
	if start == -1 {
		return nil, fmt.Errorf("%s: json start not found", marker)
	}
	raw, err := extractJSONObject(rest, start)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", marker, err)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err == nil {
		return payload, nil
	}
	// Inline state is often a JS object literal rather than strict JSON.
	if err := json5.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%s: unmarshal: %w", marker, err)
	}
	return payload, nil
}

// extractJSONObject returns the brace-balanced object starting at body[start].
func extractJSONObject(body []byte, start int) ([]byte, error) {
	depth := 0
	inString := false
	var quote byte
	escape := false

	for i := start; i < len(body); i++ {
		c := body[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if c == '\\' {
				escape = true
				continue
			}
			if c == quote {
				inString = false
			}
			continue
		}

		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return body[start : i+1], nil
			}
		}
	}

	return nil, errors.New("json end not found")
}

var (
	titleKeys   = []string{"title", "jobTitle"}
	signalKeys  = []string{"location", "locationName", "jobLocation", "jobId", "applyUrl", "absolute_url", "hostedUrl", "jobUrl", "employmentType", "department", "departmentName", "publishedDate", "publishedAt", "datePosted", "workplaceType", "commitment"}
	urlKeys     = []string{"url", "absolute_url", "hostedUrl", "jobUrl", "applyUrl", "externalLink"}
	descKeys    = []string{"descriptionPlain", "description", "descriptionHtml", "content"}
	deptKeys    = []string{"department", "departmentName", "team", "teamName"}
	postedKeys  = []string{"publishedDate", "publishedAt", "datePosted", "postedAt", "createdAt", "updatedAt"}
	companyKeys = []string{"companyName", "organizationName", "hiringOrganization"}
)

func walkIsland(v any, pageURL string, depth int, out *[]RawJob) {
	if depth > maxIslandDepth {
		return
	}
	switch t := v.(type) {
	case map[string]any:
		if job, ok := postingFromMap(t, pageURL); ok {
			*out = append(*out, job)
			return
		}
		for _, child := range t {
			walkIsland(child, pageURL, depth+1, out)
		}
	case []any:
		for _, child := range t {
			walkIsland(child, pageURL, depth+1, out)
		}
	}
}

func postingFromMap(m map[string]any, pageURL string) (RawJob, bool) {
	title := firstString(m, titleKeys...)
	signals := 0
	for _, k := range signalKeys {
		if _, ok := m[k]; ok {
			signals++
		}
	}
	if title == "" {
		if signals < 2 {
			return RawJob{}, false
		}
		title = firstString(m, "name", "text")
	}
	if title == "" || signals == 0 {
		return RawJob{}, false
	}
	if listed, ok := m["isListed"].(bool); ok && !listed {
		return RawJob{}, false
	}

	job := RawJob{
		Title:          title,
		Company:        orgName(firstValue(m, companyKeys...)),
		Location:       islandLocation(m),
		Description:    firstString(m, descKeys...),
		Department:     firstString(m, deptKeys...),
		EmploymentType: firstString(m, "employmentType", "commitment"),
		WorkplaceType:  firstString(m, "workplaceType", "locationType"),
		URL:            firstString(m, urlKeys...),
		PostedAt:       islandTime(firstValue(m, postedKeys...)),
	}
	if remote, ok := m["isRemote"].(bool); ok && remote && job.WorkplaceType == "" {
		job.WorkplaceType = "remote"
	}
	if job.URL == "" {
		if id := firstString(m, "jobId", "id"); id != "" && pageURL != "" {
			job.URL = strings.TrimSuffix(pageURL, "/") + "/" + id
		}
	}
	return job, true
}

func islandLocation(m map[string]any) string {
	for _, k := range []string{"location", "locationName", "jobLocation"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		if loc := parseLocation(v); loc != "" {
			return loc
		}
		if lm, ok := v.(map[string]any); ok {
			if loc := joinParts(stringField(lm["city"]), stringField(lm["region"]), stringField(lm["country"])); loc != "" {
				return loc
			}
		}
	}
	return ""
}

func islandTime(v any) time.Time {
	if ms, ok := v.(float64); ok && ms > 1e11 {
		return time.UnixMilli(int64(ms)).UTC()
	}
	return parseDate(v)
}

func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(m[k]); s != "" {
			return s
		}
	}
	return ""
}
