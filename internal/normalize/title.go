package normalize

import (
	"regexp"
	"strings"
)

type synonym struct {
	pattern   *regexp.Regexp
	canonical string
}

// titleSynonyms are applied in order to the lowercased title. Abbreviations
// come first so the role phrases below see their expanded form.
var titleSynonyms = []synonym{
	{regexp.MustCompile(`\bsr\b\.?`), "senior"},
	{regexp.MustCompile(`\bjr\b\.?`), "junior"},
	{regexp.MustCompile(`\bmgr\b\.?`), "manager"},
	{regexp.MustCompile(`\b(?:sw engineer|swe)\b`), "software engineer"},
	{regexp.MustCompile(`\bsoftware (?:developer|dev)\b`), "software engineer"},
	{regexp.MustCompile(`\b(?:front[- ]?end|fe) (?:engineer|developer|dev)\b`), "frontend engineer"},
	{regexp.MustCompile(`\bback[- ]?end (?:engineer|developer|dev)\b`), "backend engineer"},
	{regexp.MustCompile(`\bfull[- ]?stack (?:engineer|developer|dev)\b`), "full stack engineer"},
	{regexp.MustCompile(`\b(?:ml|machine learning) (?:engineer|developer)\b`), "machine learning engineer"},
	{regexp.MustCompile(`\bsre\b`), "site reliability engineer"},
	{regexp.MustCompile(`\bdev ?ops (?:engineer|developer)\b`), "devops engineer"},
	{regexp.MustCompile(`\b(?:qa|quality assurance|test automation) engineer\b`), "qa engineer"},
	{regexp.MustCompile(`\b(?:ux/ui|ui/ux) designer\b`), "product designer"},
}

// NormalizeTitle lowercases the title, collapses whitespace and maps known
// synonym phrases onto one canonical form.
func NormalizeTitle(title string) string {
	t := strings.ToLower(collapse(title))
	for _, s := range titleSynonyms {
		t = s.pattern.ReplaceAllString(t, s.canonical)
	}
	return collapse(t)
}
