package normalize

import "time"

type WorkType string

const (
	WorkRemote WorkType = "remote"
	WorkHybrid WorkType = "hybrid"
	WorkOnsite WorkType = "onsite"
)

type EmploymentType string

const (
	FullTime   EmploymentType = "full-time"
	PartTime   EmploymentType = "part-time"
	Contract   EmploymentType = "contract"
	Internship EmploymentType = "internship"
)

type ExperienceLevel string

const (
	LevelEntry     ExperienceLevel = "entry"
	LevelMid       ExperienceLevel = "mid"
	LevelSenior    ExperienceLevel = "senior"
	LevelStaff     ExperienceLevel = "staff"
	LevelExecutive ExperienceLevel = "executive"
)

type SkillCategory string

const (
	SkillLanguages SkillCategory = "languages"
	SkillFrontend  SkillCategory = "frontend"
	SkillBackend   SkillCategory = "backend"
	SkillDatabases SkillCategory = "databases"
	SkillCloud     SkillCategory = "cloud"
	SkillAIML      SkillCategory = "ai_ml"
	SkillMobile    SkillCategory = "mobile"
	SkillDevOps    SkillCategory = "devops"
)

const (
	SourceATS        = "ats"
	SourceCareerPage = "career_page"
)

type Location struct {
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Country   string `json:"country,omitempty"`
	Remote    bool   `json:"remote"`
	Canonical string `json:"canonical"`
}

// Salary holds annualized amounts. Period is the pay period the posting
// was quoted in.
type Salary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency,omitempty"`
	Period   string  `json:"period"`
}

type Source struct {
	Type         string `json:"type"`
	ATS          string `json:"ats,omitempty"`
	ScrapeMethod string `json:"scrape_method"`
	TargetID     string `json:"target_id"`
}

// Job is the canonical posting handed to callers.
type Job struct {
	ID              string                     `json:"id"`
	Title           string                     `json:"title"`
	OriginalTitle   string                     `json:"original_title"`
	Company         string                     `json:"company"`
	Location        Location                   `json:"location"`
	Skills          map[SkillCategory][]string `json:"skills,omitempty"`
	WorkType        WorkType                   `json:"work_type"`
	EmploymentType  EmploymentType             `json:"employment_type"`
	ExperienceLevel ExperienceLevel            `json:"experience_level"`
	Salary          *Salary                    `json:"salary,omitempty"`
	Description     string                     `json:"description"`
	URL             string                     `json:"url"`
	Department      string                     `json:"department,omitempty"`
	Source          Source                     `json:"source"`
	PostedAt        time.Time                  `json:"posted_at"`
	ScrapedAt       time.Time                  `json:"scraped_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// SkillList flattens the categorized skills.
func (j Job) SkillList() []string {
	var out []string
	for _, cat := range skillCategories {
		out = append(out, j.Skills[cat]...)
	}
	return out
}
