// Package dedup folds duplicate postings into canonical entries using the
// content hash, the canonical URL and fuzzy signature similarity.
package dedup

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/urlutil"
)

type Reason string

const (
	ReasonExact Reason = "exact_match"
	ReasonURL   Reason = "url_match"
	ReasonFuzzy Reason = "fuzzy_match"
)

type Config struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold" json:"similarity_threshold"`
	TimeWindow          time.Duration `yaml:"time_window" json:"time_window"`
	MaxEntries          int           `yaml:"max_entries" json:"max_entries"`
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.85,
		TimeWindow:          7 * 24 * time.Hour,
		MaxEntries:          10000,
	}
}

type Duplicate struct {
	Job    normalize.Job `json:"job"`
	Score  float64       `json:"score"`
	Reason Reason        `json:"reason"`
}

// Group is a canonical job with every record folded into it during one
// Deduplicate call. Score is the weakest match in the group and Reason the
// reason of the first fold.
type Group struct {
	Canonical  normalize.Job `json:"canonical"`
	Duplicates []Duplicate   `json:"duplicates"`
	Score      float64       `json:"score"`
	Reason     Reason        `json:"reason"`
}

type Result struct {
	Unique []normalize.Job `json:"unique"`
	Groups []Group         `json:"groups"`
}

type entry struct {
	job       normalize.Job
	signature string
	hashes    []string
	urls      []string
}

// Engine keeps an index of canonical jobs across calls until Clear.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	byHash  map[string]*entry
	byURL   map[string]*entry
	entries []*entry
}

// New fills zero config fields from DefaultConfig.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = def.TimeWindow
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &Engine{
		cfg:    cfg,
		byHash: make(map[string]*entry),
		byURL:  make(map[string]*entry),
	}
}

// Deduplicate matches every job against the index: exact hash first, then
// canonical URL, then fuzzy signature similarity inside the time window.
// Unmatched jobs become canonical entries.
func (e *Engine) Deduplicate(jobs []normalize.Job) Result {
	// signatures are computed before taking the lock
	sigs := make([]string, len(jobs))
	for i, job := range jobs {
		sigs[i] = Signature(job)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var res Result
	groupIdx := make(map[*entry]int)
	for i, job := range jobs {
		canonical, score, reason := e.match(job, sigs[i])
		if canonical == nil {
			e.insert(job, sigs[i])
			res.Unique = append(res.Unique, job)
			continue
		}
		e.alias(canonical, job)

		idx, ok := groupIdx[canonical]
		if !ok {
			idx = len(res.Groups)
			groupIdx[canonical] = idx
			res.Groups = append(res.Groups, Group{
				Canonical: canonical.job,
				Score:     score,
				Reason:    reason,
			})
		}
		g := &res.Groups[idx]
		g.Duplicates = append(g.Duplicates, Duplicate{Job: job, Score: score, Reason: reason})
		if score < g.Score {
			g.Score = score
		}
	}
	return res
}

func (e *Engine) match(job normalize.Job, sig string) (*entry, float64, Reason) {
	if job.ID != "" {
		if hit, ok := e.byHash[job.ID]; ok {
			return hit, 1, ReasonExact
		}
	}
	if u := urlutil.Canonical(job.URL); u != "" {
		if hit, ok := e.byURL[u]; ok {
			return hit, 1, ReasonURL
		}
	}

	var (
		best      *entry
		bestScore float64
	)
	for _, candidate := range e.entries {
		if !maybeSimilar(sig, candidate.signature, e.cfg.SimilarityThreshold) {
			continue
		}
		score := Similarity(sig, candidate.signature)
		if score < e.cfg.SimilarityThreshold || score <= bestScore {
			continue
		}
		if !withinWindow(job.PostedAt, candidate.job.PostedAt, e.cfg.TimeWindow) {
			continue
		}
		best, bestScore = candidate, score
	}
	if best == nil {
		return nil, 0, ""
	}
	return best, bestScore, ReasonFuzzy
}

func (e *Engine) insert(job normalize.Job, sig string) {
	ent := &entry{job: job, signature: sig}
	e.entries = append(e.entries, ent)
	e.alias(ent, job)

	for len(e.entries) > e.cfg.MaxEntries {
		e.evict(e.entries[0])
		e.entries = e.entries[1:]
	}
}

// alias points job's hash and canonical URL at ent unless they already
// resolve to another entry.
func (e *Engine) alias(ent *entry, job normalize.Job) {
	if job.ID != "" {
		if _, ok := e.byHash[job.ID]; !ok {
			e.byHash[job.ID] = ent
			ent.hashes = append(ent.hashes, job.ID)
		}
	}
	if u := urlutil.Canonical(job.URL); u != "" {
		if _, ok := e.byURL[u]; !ok {
			e.byURL[u] = ent
			ent.urls = append(ent.urls, u)
		}
	}
}

func (e *Engine) evict(ent *entry) {
	for _, h := range ent.hashes {
		if e.byHash[h] == ent {
			delete(e.byHash, h)
		}
	}
	for _, u := range ent.urls {
		if e.byURL[u] == ent {
			delete(e.byURL, u)
		}
	}
}

// Clear drops the whole index.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byHash = make(map[string]*entry)
	e.byURL = make(map[string]*entry)
	e.entries = nil
}

// IndexSize is the number of canonical entries.
func (e *Engine) IndexSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Signature is the text compared by fuzzy matching: title, company and
// canonical location with diacritics folded, punctuation dropped and
// whitespace collapsed.
func Signature(job normalize.Job) string {
	return normalizeText(job.Title + " " + job.Company + " " + job.Location.Canonical)
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) in runes.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// maybeSimilar rejects pairs whose length gap alone keeps them under the
// threshold; the distance is at least that gap.
func maybeSimilar(a, b string, threshold float64) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return true
	}
	gap := la - lb
	if gap < 0 {
		gap = -gap
	}
	return 1-float64(gap)/float64(longest) >= threshold
}

// withinWindow accepts the pair when either date is unknown.
func withinWindow(a, b time.Time, window time.Duration) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

func normalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}
