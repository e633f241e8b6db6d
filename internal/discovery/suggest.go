package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/baxromumarov/job-scraper/internal/scraper"
	"github.com/baxromumarov/job-scraper/internal/urlutil"
)

// maxProbePages bounds how many candidate pages are fetched and scored.
const maxProbePages = 4

var ErrUnreachable = errors.New("no candidate page could be fetched")

// apiBoards are the ATS whose public boards the api strategy can read.
var apiBoards = map[string]struct{}{
	urlutil.ATSGreenhouse: {},
	urlutil.ATSLever:      {},
	urlutil.ATSAshby:      {},
}

// Signals records what each extractor found on the chosen page.
type Signals struct {
	PageURL    string `json:"page_url"`
	ATS        string `json:"ats,omitempty"`
	BoardID    string `json:"board_id,omitempty"`
	JSONLD     int    `json:"json_ld"`
	DataIsland int    `json:"data_island"`
	HTML       int    `json:"html"`
}

func (s Signals) best() int {
	return max(s.JSONLD, s.DataIsland, s.HTML)
}

// Suggestion is a proposed target entry plus the evidence behind it.
type Suggestion struct {
	Target     scraper.TargetConfig `json:"target"`
	Signals    Signals              `json:"signals"`
	Candidates []string             `json:"candidates"`
}

// Suggest crawls homepage and proposes a target: an api binding when a
// supported ATS board is linked, otherwise the best scoring career page with
// the strategies that found postings on it.
func (c *Crawler) Suggest(ctx context.Context, homepage string) (Suggestion, error) {
	u, err := url.Parse(strings.TrimSpace(homepage))
	if err != nil || u.Host == "" {
		return Suggestion{}, fmt.Errorf("invalid homepage %q", homepage)
	}

	id := targetID(u.Hostname())
	sug := Suggestion{
		Target: scraper.TargetConfig{
			ID:   id,
			Name: cases.Title(language.English).String(strings.ReplaceAll(id, "-", " ")),
		},
		Candidates: c.CareerLinks(ctx, u.String()),
	}

	var pages []string
	for _, link := range sug.Candidates {
		ats, board := urlutil.DetectATS(link)
		if _, ok := apiBoards[ats]; ok && board != "" {
			boardURL, _, err := urlutil.NormalizeATSLink(link)
			if err != nil {
				boardURL = link
			}
			sug.Target.URL = boardURL
			sug.Target.ATS = &scraper.ATSBinding{Type: ats, BoardID: board}
			sug.Target.Strategies = []scraper.StrategyKind{scraper.StrategyAPI, scraper.StrategyJSONLD, scraper.StrategyHTML}
			sug.Signals = Signals{PageURL: boardURL, ATS: ats, BoardID: board}
			return sug, sug.Target.Validate()
		}
		if len(pages) < maxProbePages {
			pages = append(pages, link)
		}
	}
	if len(pages) == 0 {
		pages = append(pages, u.String())
	}

	var (
		chosen  Signals
		fetched bool
	)
	for _, page := range pages {
		sig, err := c.score(ctx, page)
		if err != nil {
			slog.Debug("discovery candidate skipped", "url", page, "error", err)
			continue
		}
		if !fetched || sig.best() > chosen.best() {
			chosen = sig
		}
		fetched = true
	}
	if !fetched {
		return sug, ErrUnreachable
	}

	sug.Signals = chosen
	sug.Target.URL = chosen.PageURL
	sug.Target.Strategies = strategiesFor(chosen)
	return sug, sug.Target.Validate()
}

// score fetches page once and runs the static extractors over it.
func (c *Crawler) score(ctx context.Context, page string) (Signals, error) {
	fetched, err := c.fetcher.Fetch(ctx, page, c.opts, nil)
	if err != nil {
		return Signals{}, err
	}
	sig := Signals{PageURL: fetched.URL}
	sig.ATS, sig.BoardID = urlutil.DetectATS(fetched.URL)

	if jobs, err := scraper.ExtractJSONLD(fetched.Body); err == nil {
		sig.JSONLD = len(jobs)
	}
	if jobs, err := scraper.ExtractDataIsland(fetched.Body, fetched.URL); err == nil {
		sig.DataIsland = len(jobs)
	}
	if jobs, err := scraper.ExtractHTML(fetched.Body, fetched.URL, nil); err == nil {
		sig.HTML = len(jobs)
	}
	return sig, nil
}

// strategiesFor lists the strategies worth trying, cheapest first. Pages
// where nothing matched statically are likely rendered client side.
func strategiesFor(sig Signals) []scraper.StrategyKind {
	var out []scraper.StrategyKind
	if sig.JSONLD > 0 {
		out = append(out, scraper.StrategyJSONLD)
	}
	if sig.DataIsland > 0 {
		out = append(out, scraper.StrategyIsland)
	}
	out = append(out, scraper.StrategyHTML, scraper.StrategyAI)
	if sig.best() == 0 {
		out = append(out, scraper.StrategyBrowser)
	}
	return out
}

// targetID turns careers.acme-corp.com into "acme-corp".
func targetID(host string) string {
	labels := strings.Split(strings.ToLower(strings.TrimPrefix(host, "www.")), ".")
	switch {
	case len(labels) >= 3 && isCareerLabel(labels[0]):
		return labels[1]
	case len(labels) >= 3 && isRegistryLabel(labels[len(labels)-2]):
		return labels[len(labels)-3]
	case len(labels) >= 2:
		return labels[len(labels)-2]
	default:
		return labels[0]
	}
}

func isCareerLabel(l string) bool {
	switch l {
	case "careers", "jobs", "apply", "work":
		return true
	}
	return false
}

// isRegistryLabel matches second-level registries like the "co" in acme.co.uk.
func isRegistryLabel(l string) bool {
	switch l {
	case "co", "com", "org", "net", "ac":
		return true
	}
	return false
}
