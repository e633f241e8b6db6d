package normalize

import (
	"regexp"
	"strings"
)

type workPattern struct {
	re   *regexp.Regexp
	kind WorkType
}

type employmentPattern struct {
	re   *regexp.Regexp
	kind EmploymentType
}

type levelPattern struct {
	re    *regexp.Regexp
	level ExperienceLevel
}

// Ordered: the first matching pattern wins.
var workPatterns = []workPattern{
	{regexp.MustCompile(`(?i)\bhybrid\b`), WorkHybrid},
	{regexp.MustCompile(`(?i)\b(remote|work from home|wfh|telecommute|fully distributed|anywhere)\b`), WorkRemote},
	{regexp.MustCompile(`(?i)\b(on-?site|in[- ]office|in[- ]person|office[- ]based)\b`), WorkOnsite},
}

var employmentPatterns = []employmentPattern{
	{regexp.MustCompile(`(?i)\b(intern|internship|co-?op|apprentice(ship)?|working student)\b`), Internship},
	{regexp.MustCompile(`(?i)\b(contract|contractor|freelance|temporary|temp|fixed[- ]term|c2c|1099)\b`), Contract},
	{regexp.MustCompile(`(?i)\bpart[- ]?time\b`), PartTime},
	{regexp.MustCompile(`(?i)\b(full[- ]?time|permanent|fte)\b`), FullTime},
}

var levelPatterns = []levelPattern{
	{regexp.MustCompile(`(?i)\b(chief|cto|ceo|cfo|coo|vp|vice president|head of|director)\b`), LevelExecutive},
	{regexp.MustCompile(`(?i)\b(staff|principal|distinguished|architect)\b`), LevelStaff},
	{regexp.MustCompile(`(?i)\b(senior|sr|lead|iii)\b`), LevelSenior},
	{regexp.MustCompile(`(?i)\b(junior|jr|entry[- ]level|graduate|new grad|intern|internship|trainee)\b`), LevelEntry},
	{regexp.MustCompile(`(?i)\b(mid[- ]level|intermediate|ii)\b`), LevelMid},
	{regexp.MustCompile(`(?i)\b([5-9]|1\d)\+?\s*(years|yrs)\b`), LevelSenior},
	{regexp.MustCompile(`(?i)\b[0-2]\+?\s*(-\s*[1-2]\s*)?(years|yrs)\b`), LevelEntry},
}

func workPatternMatch(text string) WorkType {
	for _, p := range workPatterns {
		if p.re.MatchString(text) {
			return p.kind
		}
	}
	return ""
}

// InferWorkType prefers the structured workplace field, then scans title,
// location and description. Defaults to hybrid.
func InferWorkType(workplace, title, location, description string) WorkType {
	if kind := workPatternMatch(workplace); kind != "" {
		return kind
	}
	if kind := workPatternMatch(strings.Join([]string{title, location, description}, " ")); kind != "" {
		return kind
	}
	return WorkHybrid
}

// InferEmploymentType prefers the structured field. Defaults to full-time.
func InferEmploymentType(structured, title, description string) EmploymentType {
	structured = strings.ReplaceAll(structured, "_", " ")
	for _, text := range []string{structured, title + " " + description} {
		for _, p := range employmentPatterns {
			if p.re.MatchString(text) {
				return p.kind
			}
		}
	}
	return FullTime
}

// InferExperienceLevel checks the title on its own before the description,
// so "work with senior engineers" in the body does not outrank a junior
// title. Defaults to mid.
func InferExperienceLevel(title, description string) ExperienceLevel {
	for _, text := range []string{title, title + " " + description} {
		for _, p := range levelPatterns {
			if p.re.MatchString(text) {
				return p.level
			}
		}
	}
	return LevelMid
}
