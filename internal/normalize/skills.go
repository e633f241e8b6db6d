package normalize

import (
	"regexp"
	"sort"
	"strings"
)

type skillDef struct {
	name    string
	aliases []string
	// tokens are only accepted from explicit skill lists, never mined out
	// of prose
	tokens []string
	// the canonical name itself is too common a word to mine ("go", "c")
	ambiguous bool
}

// skillCategories is the output order of SkillList.
var skillCategories = []SkillCategory{
	SkillLanguages,
	SkillFrontend,
	SkillBackend,
	SkillDatabases,
	SkillCloud,
	SkillAIML,
	SkillMobile,
	SkillDevOps,
}

var taxonomy = map[SkillCategory][]skillDef{
	SkillLanguages: {
		{name: "go", aliases: []string{"golang"}, ambiguous: true},
		{name: "python"},
		{name: "java"},
		{name: "javascript", aliases: []string{"js", "ecmascript"}},
		{name: "typescript", aliases: []string{"ts"}},
		{name: "rust"},
		{name: "c++", aliases: []string{"cpp"}},
		{name: "c#", aliases: []string{"csharp"}},
		{name: "c", ambiguous: true},
		{name: "ruby"},
		{name: "php"},
		{name: "scala"},
		{name: "kotlin"},
		{name: "swift", ambiguous: true},
		{name: "elixir"},
		{name: "r", ambiguous: true},
		{name: "sql"},
	},
	SkillFrontend: {
		{name: "react", aliases: []string{"reactjs", "react.js"}},
		{name: "vue", aliases: []string{"vuejs", "vue.js"}},
		{name: "angular", aliases: []string{"angularjs"}},
		{name: "svelte"},
		{name: "next.js", aliases: []string{"nextjs"}},
		{name: "html"},
		{name: "css"},
		{name: "tailwind", aliases: []string{"tailwindcss"}},
		{name: "redux"},
	},
	SkillBackend: {
		{name: "node.js", aliases: []string{"nodejs"}, tokens: []string{"node"}},
		{name: "django"},
		{name: "flask"},
		{name: "fastapi"},
		{name: "spring", aliases: []string{"spring boot"}, ambiguous: true},
		{name: "rails", aliases: []string{"ruby on rails"}},
		{name: "express", aliases: []string{"express.js", "expressjs"}, ambiguous: true},
		{name: "graphql"},
		{name: "grpc"},
		{name: "rest", aliases: []string{"rest api", "restful"}, ambiguous: true},
		{name: "kafka"},
		{name: "rabbitmq"},
	},
	SkillDatabases: {
		{name: "postgresql", aliases: []string{"postgres", "psql"}},
		{name: "mysql"},
		{name: "mongodb", aliases: []string{"mongo"}},
		{name: "redis"},
		{name: "elasticsearch", aliases: []string{"elastic search"}},
		{name: "dynamodb"},
		{name: "cassandra"},
		{name: "sqlite"},
		{name: "snowflake"},
		{name: "bigquery"},
	},
	SkillCloud: {
		{name: "aws", aliases: []string{"amazon web services"}},
		{name: "gcp", aliases: []string{"google cloud", "google cloud platform"}},
		{name: "azure"},
		{name: "lambda", aliases: []string{"aws lambda"}},
		{name: "s3"},
		{name: "cloudflare"},
	},
	SkillAIML: {
		{name: "machine learning", aliases: []string{"ml"}},
		{name: "deep learning"},
		{name: "pytorch"},
		{name: "tensorflow"},
		{name: "scikit-learn", aliases: []string{"sklearn"}},
		{name: "llm", aliases: []string{"llms", "large language models"}},
		{name: "nlp", aliases: []string{"natural language processing"}},
		{name: "computer vision"},
		{name: "pandas"},
	},
	SkillMobile: {
		{name: "ios"},
		{name: "android"},
		{name: "react native"},
		{name: "flutter"},
		{name: "swiftui"},
	},
	SkillDevOps: {
		{name: "docker"},
		{name: "kubernetes", aliases: []string{"k8s"}},
		{name: "terraform"},
		{name: "ansible"},
		{name: "jenkins"},
		{name: "github actions"},
		{name: "ci/cd", aliases: []string{"cicd", "continuous integration"}},
		{name: "linux"},
		{name: "prometheus"},
		{name: "grafana"},
	},
}

type skillEntry struct {
	category SkillCategory
	name     string
}

type skillMatcher struct {
	needle string
	re     *regexp.Regexp
	entry  skillEntry
}

var (
	skillIndex    map[string]skillEntry
	skillMatchers []skillMatcher
)

func init() {
	skillIndex = make(map[string]skillEntry)
	for _, cat := range skillCategories {
		for _, def := range taxonomy[cat] {
			entry := skillEntry{category: cat, name: def.name}
			for _, tok := range def.tokens {
				skillIndex[tok] = entry
			}
			for _, term := range append([]string{def.name}, def.aliases...) {
				skillIndex[term] = entry
				if def.ambiguous && term == def.name {
					continue
				}
				skillMatchers = append(skillMatchers, skillMatcher{
					needle: term,
					re:     regexp.MustCompile(`(?:^|[^a-z0-9+#.])` + regexp.QuoteMeta(term) + `(?:$|[^a-z0-9+#])`),
					entry:  entry,
				})
			}
		}
	}
}

// CategorizeSkills maps explicit skill tokens and skills mentioned in the
// description onto the taxonomy. Names are canonical, sorted and unique per
// category. Unknown skills are dropped.
func CategorizeSkills(skills []string, description string) map[SkillCategory][]string {
	found := make(map[SkillCategory]map[string]struct{})
	add := func(e skillEntry) {
		if found[e.category] == nil {
			found[e.category] = make(map[string]struct{})
		}
		found[e.category][e.name] = struct{}{}
	}

	for _, s := range skills {
		key := strings.ToLower(collapse(s))
		if e, ok := skillIndex[key]; ok {
			add(e)
		}
	}

	text := strings.ToLower(description)
	for _, m := range skillMatchers {
		if !strings.Contains(text, m.needle) {
			continue
		}
		if m.re.MatchString(text) {
			add(m.entry)
		}
	}

	if len(found) == 0 {
		return nil
	}
	out := make(map[SkillCategory][]string, len(found))
	for cat, names := range found {
		list := make([]string, 0, len(names))
		for n := range names {
			list = append(list, n)
		}
		sort.Strings(list)
		out[cat] = list
	}
	return out
}
