package core

import (
	"strings"

	"github.com/baxromumarov/job-scraper/internal/normalize"
)

func MatchesKeywords(text string, keywords []string) bool {
	lowerText := strings.ToLower(text)
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// FilterJobs keeps jobs whose title, description or skills mention any
// keyword. No keywords keeps everything.
func FilterJobs(jobs []normalize.Job, keywords []string) []normalize.Job {
	if !hasKeywords(keywords) {
		return jobs
	}
	out := make([]normalize.Job, 0, len(jobs))
	for _, j := range jobs {
		text := j.Title + " " + j.Description + " " + strings.Join(j.SkillList(), " ")
		if MatchesKeywords(text, keywords) {
			out = append(out, j)
		}
	}
	return out
}

func hasKeywords(keywords []string) bool {
	for _, k := range keywords {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}
