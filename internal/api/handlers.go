package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/baxromumarov/job-scraper/internal/core"
	"github.com/baxromumarov/job-scraper/internal/engine"
	"github.com/baxromumarov/job-scraper/internal/ingest"
	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/observability"
	"github.com/baxromumarov/job-scraper/internal/ratelimit"
	"github.com/baxromumarov/job-scraper/internal/urlutil"
)

const maxPageSize = 200

// LatestJobs lists the jobs of the runner's most recent batch.
type LatestJobs struct {
	Runner interface {
		Last() (core.Report, bool)
	}
}

func (l LatestJobs) ListJobs(_ context.Context, limit, offset int) ([]normalize.Job, int, error) {
	report, ok := l.Runner.Last()
	if !ok {
		return nil, 0, nil
	}
	jobs := report.Batch.Jobs
	total := len(jobs)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return jobs[offset:end], total, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 20)
	limit = min(limit, maxPageSize)

	jobs, total, err := s.jobs.ListJobs(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch jobs: "+err.Error())
		return
	}
	// Return empty list if nil to be JSON friendly
	if jobs == nil {
		jobs = []normalize.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  jobs,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

type statsResponse struct {
	Metrics   observability.Snapshot `json:"metrics"`
	LastRun   *runSummary            `json:"last_run,omitempty"`
	RateLimit []ratelimit.Status     `json:"rate_limit,omitempty"`
}

type runSummary struct {
	RunID   string         `json:"run_id"`
	Stats   ingest.Stats   `json:"stats"`
	Summary engine.Summary `json:"summary"`
}

func summarize(report core.Report) *runSummary {
	return &runSummary{RunID: report.Batch.RunID, Stats: report.Batch.Stats, Summary: report.Summary}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Metrics: s.stats.Snapshot()}
	if report, ok := s.runner.Last(); ok {
		resp.LastRun = summarize(report)
	}
	if s.limiter != nil {
		for _, domain := range targetDomains(s.runner) {
			resp.RateLimit = append(resp.RateLimit, s.limiter.Status(domain))
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func targetDomains(runner Runner) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range runner.Targets() {
		d := urlutil.Domain(t.URL)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	report, ok := s.runner.Last()
	if !ok {
		respondError(w, http.StatusNotFound, "No run has finished yet")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run":      summarize(report),
		"outcomes": report.Outcomes,
	})
}

// handleScrape runs one cycle synchronously; the run timeout bounds it.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.RunOnce(r.Context())
	if errors.Is(err, core.ErrRunInProgress) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	resp := map[string]interface{}{"run": summarize(report)}
	if err != nil {
		resp["error"] = err.Error()
		respondJSON(w, http.StatusBadGateway, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func parsePagination(r *http.Request, defaultLimit int) (int, int) {
	q := r.URL.Query()
	limit := defaultLimit
	offset := 0

	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
