package urlutil

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

const (
	ATSGreenhouse      = "greenhouse"
	ATSLever           = "lever"
	ATSAshby           = "ashby"
	ATSWorkday         = "workday"
	ATSSmartRecruiters = "smartrecruiters"
	ATSWorkable        = "workable"
	ATSBambooHR        = "bamboohr"
)

var careerRoots = []string{
	"careers",
	"jobs",
	"join-us",
	"joinus",
	"work-with-us",
	"workwithus",
}

var jobListSegments = []string{
	"jobs",
	"careers",
	"openings",
	"positions",
	"vacancies",
	"job-openings",
	"job-board",
	"jobs-board",
}

var staticExtensions = map[string]struct{}{
	".css":   {},
	".gif":   {},
	".ico":   {},
	".jpeg":  {},
	".jpg":   {},
	".js":    {},
	".mp3":   {},
	".mp4":   {},
	".pdf":   {},
	".png":   {},
	".svg":   {},
	".ttf":   {},
	".woff":  {},
	".woff2": {},
	".zip":   {},
}

// atsHosts maps host suffixes to the ATS they belong to. Order matters:
// more specific hosts come first.
var atsHosts = []struct {
	host string
	ats  string
}{
	{"boards.greenhouse.io", ATSGreenhouse},
	{"job-boards.greenhouse.io", ATSGreenhouse},
	{"greenhouse.io", ATSGreenhouse},
	{"jobs.lever.co", ATSLever},
	{"lever.co", ATSLever},
	{"jobs.ashbyhq.com", ATSAshby},
	{"ashbyhq.com", ATSAshby},
	{"myworkdayjobs.com", ATSWorkday},
	{"workdayjobs.com", ATSWorkday},
	{"smartrecruiters.com", ATSSmartRecruiters},
	{"bamboohr.com", ATSBambooHR},
	{"workable.com", ATSWorkable},
}

var trackingParams = map[string]struct{}{
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"ref":          {},
	"source":       {},
	"src":          {},
	"gh_src":       {},
	"lever-source": {},
	"lever-origin": {},
	"trk":          {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// Normalize returns the URL with a default scheme, lowercase host without
// "www.", a cleaned path and tracking parameters removed, plus its hostname.
func Normalize(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Fragment = ""
	u.Host = normalizeHost(u.Host)
	u.Path = normalizePath(u.Path)
	u.Path = stripLocalePrefix(u.Path)
	u.RawQuery = normalizeQuery(u.RawQuery)
	return u.String(), u.Hostname(), nil
}

// Canonical is the comparison key used for duplicate detection: the
// normalized URL without scheme, with a case-folded path and no trailing slash.
// Unparseable input falls back to its trimmed lowercase form.
func Canonical(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	normalized, host, err := Normalize(raw)
	if err != nil || host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return strings.ToLower(normalized)
	}
	p := strings.TrimSuffix(strings.ToLower(u.Path), "/")
	key := u.Host + p
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

// Domain returns the rate-limit key for a URL: its lowercase hostname without
// "www.". Invalid URLs map to "default".
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "default"
	}
	if u.Host == "" && u.Scheme == "" {
		// "example.com/careers" parses as a path.
		u, err = url.Parse("https://" + strings.TrimSpace(raw))
		if err != nil {
			return "default"
		}
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return "default"
	}
	return host
}

// DetectATS reports which applicant tracking system hosts the URL and the
// board identifier embedded in it, if any.
func DetectATS(raw string) (string, string) {
	normalized, host, err := Normalize(raw)
	if err != nil || host == "" {
		return "", ""
	}
	ats := atsFor(host)
	if ats == "" {
		return "", ""
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ats, ""
	}
	segs := splitPath(u.Path)
	switch ats {
	case ATSGreenhouse:
		if len(segs) > 0 && segs[0] == "embed" {
			return ats, u.Query().Get("for")
		}
		if strings.HasPrefix(host, "boards-api.") && len(segs) >= 3 && segs[1] == "boards" {
			return ats, segs[2]
		}
	case ATSSmartRecruiters, ATSWorkable, ATSBambooHR, ATSWorkday:
		sub := strings.Split(host, ".")
		if len(sub) > 2 && sub[0] != "jobs" && sub[0] != "apply" && sub[0] != "careers" {
			return ats, sub[0]
		}
	}
	if len(segs) > 0 {
		return ats, segs[0]
	}
	return ats, ""
}

// NormalizeATSLink trims an ATS URL down to its board root.
func NormalizeATSLink(raw string) (string, string, error) {
	normalized, host, err := Normalize(raw)
	if err != nil {
		return "", "", err
	}
	if host == "" || !IsATSHost(host) {
		return normalized, host, nil
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return normalized, host, nil
	}

	segs := splitPath(u.Path)
	switch atsFor(host) {
	case ATSLever, ATSAshby:
		if len(segs) > 0 {
			u.Path = "/" + segs[0]
		}
	case ATSGreenhouse:
		if len(segs) > 0 && segs[0] == "embed" {
			break
		}
		if len(segs) > 0 {
			u.Path = "/" + segs[0]
		}
	}

	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), u.Hostname(), nil
}

func IsATSHost(host string) bool {
	return atsFor(host) != ""
}

func atsFor(host string) string {
	h := normalizeHost(host)
	for _, entry := range atsHosts {
		if h == entry.host || strings.HasSuffix(h, "."+entry.host) {
			return entry.ats
		}
	}
	return ""
}

func IsCrawlable(raw string) bool {
	normalized, host, err := Normalize(raw)
	if err != nil || host == "" {
		return false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	return !isStaticAssetPath(u.Path)
}

// SameHost compares hostnames ignoring case and a leading "www.".
func SameHost(base *url.URL, host string) bool {
	if base == nil || host == "" {
		return false
	}
	return normalizeHost(base.Hostname()) == normalizeHost(host)
}

// Resolve makes href absolute against base. mailto:, tel: and javascript:
// links resolve to "".
func Resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String()
}

// IsJobPath reports whether a path looks like a job listing or detail page.
func IsJobPath(p string) bool {
	for _, seg := range splitPath(p) {
		if isJobListSegment(seg) || isCareerRootSegment(seg) || seg == "job" || seg == "position" || seg == "opening" {
			return true
		}
	}
	return false
}

func normalizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return host
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	clean := path.Clean(p)
	if clean == "." {
		return "/"
	}
	if clean != "/" && strings.HasSuffix(clean, "/") {
		clean = strings.TrimSuffix(clean, "/")
	}
	return clean
}

func stripLocalePrefix(p string) string {
	segs := splitPath(p)
	if len(segs) < 2 {
		return p
	}
	if !isLocale(segs[0]) {
		return p
	}
	if isCareerRootSegment(segs[1]) || isJobListSegment(segs[1]) {
		return "/" + strings.Join(strings.Split(strings.Trim(p, "/"), "/")[1:], "/")
	}
	return p
}

func normalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for key := range values {
		lk := strings.ToLower(key)
		if _, ok := trackingParams[lk]; ok || strings.HasPrefix(lk, "utm_") {
			delete(values, key)
		}
	}
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	normalized := url.Values{}
	for _, k := range keys {
		normalized[k] = values[k]
	}
	return normalized.Encode()
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	for i := range parts {
		parts[i] = strings.ToLower(parts[i])
	}
	return parts
}

func isStaticAssetPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	_, ok := staticExtensions[ext]
	return ok
}

func isLocale(seg string) bool {
	if len(seg) == 2 {
		return isAlpha(seg)
	}
	if len(seg) == 5 && seg[2] == '-' {
		return isAlpha(seg[:2]) && isAlpha(seg[3:])
	}
	return false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func isCareerRootSegment(seg string) bool {
	for _, root := range careerRoots {
		if seg == root {
			return true
		}
	}
	return false
}

func isJobListSegment(seg string) bool {
	for _, root := range jobListSegments {
		if seg == root {
			return true
		}
	}
	return false
}
