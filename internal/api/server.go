package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/baxromumarov/job-scraper/internal/core"
	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/observability"
	"github.com/baxromumarov/job-scraper/internal/ratelimit"
	"github.com/baxromumarov/job-scraper/internal/scraper"
)

type Runner interface {
	RunOnce(ctx context.Context) (core.Report, error)
	Last() (core.Report, bool)
	Targets() []scraper.TargetConfig
}

type StatsSource interface {
	Snapshot() observability.Snapshot
}

type LimitStatus interface {
	Status(domain string) ratelimit.Status
}

// JobLister pages through ingested jobs.
type JobLister interface {
	ListJobs(ctx context.Context, limit, offset int) ([]normalize.Job, int, error)
}

type Server struct {
	router  *chi.Mux
	runner  Runner
	stats   StatsSource
	limiter LimitStatus
	jobs    JobLister
}

// NewServer wires the observability API. A nil jobs lister serves the jobs
// of the runner's latest batch; a nil limiter omits rate limit status.
func NewServer(runner Runner, stats StatsSource, limiter LimitStatus, jobs JobLister) *Server {
	if jobs == nil {
		jobs = LatestJobs{Runner: runner}
	}
	s := &Server{
		router:  chi.NewRouter(),
		runner:  runner,
		stats:   stats,
		limiter: limiter,
		jobs:    jobs,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/jobs", s.handleListJobs)
	s.router.Get("/runs/latest", s.handleLatestRun)
	s.router.Post("/scrape", s.handleScrape)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
