package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/baxromumarov/job-scraper/internal/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greenhouseBoardJSON = `{"jobs":[
 {"id":101,"title":"Senior Backend Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/101",
  "location":{"name":"San Francisco, CA"},"content":"&lt;p&gt;Build Go services&lt;/p&gt;",
  "first_published":"2025-02-01T10:00:00Z","departments":[{"name":"Engineering"}],
  "metadata":[{"name":"Employment Type","value":"Full-time"},{"name":"Team size","value":12}]},
 {"id":102,"title":"Product Designer","absolute_url":"https://boards.greenhouse.io/acme/jobs/102",
  "location":{"name":"Remote"},"content":"Design things","updated_at":"2025-02-03T08:00:00Z"},
 {"id":103,"title":"Data Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/103",
  "location":{"name":"New York, NY"},"content":"Pipelines"},
 {"id":104,"title":"   ","absolute_url":"https://boards.greenhouse.io/acme/jobs/104"}
]}`

const leverPostingsJSON = `[
 {"id":"a1","text":"Frontend Engineer","hostedUrl":"https://jobs.lever.co/acme/a1",
  "categories":{"team":"Web","location":"Berlin","commitment":"Full-time"},
  "createdAt":1738400000000,"descriptionPlain":"Own the UI.","workplaceType":"hybrid",
  "lists":[{"text":"Requirements","content":"<li>React</li><li>TypeScript</li>"},{"text":"Perks","content":"<li>Snacks</li>"}],
  "salaryRange":{"min":70000,"max":90000,"currency":"EUR","interval":"per-year-salary"}},
 {"id":"a2","text":"Support Specialist","hostedUrl":"https://jobs.lever.co/acme/a2",
  "categories":{"allLocations":["Lisbon","Porto"],"commitment":"Part-time"}}
]`

const ashbyBoardJSON = `{"jobs":[
 {"id":"x1","title":"ML Engineer","location":"Remote","department":"AI","isListed":true,"isRemote":true,
  "employmentType":"FullTime","descriptionPlain":"Train models","publishedAt":"2025-01-15T00:00:00Z",
  "jobUrl":"https://jobs.ashbyhq.com/acme/x1",
  "compensation":{"compensationTierSummary":"$150K – $180K","summaryComponents":[
    {"compensationType":"Salary","interval":"1 YEAR","currencyCode":"USD","minValue":150000,"maxValue":180000}]}},
 {"id":"x1","title":"ML Engineer","jobUrl":"https://jobs.ashbyhq.com/acme/x1"},
 {"id":"x2","title":"Hidden Role","isListed":false,"jobUrl":"https://jobs.ashbyhq.com/acme/x2"}
]}`

func newATSServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/v1/boards/acme/jobs", writeJSON(greenhouseBoardJSON))
	mux.HandleFunc("/v0/postings/acme", writeJSON(leverPostingsJSON))
	mux.HandleFunc("/posting-api/job-board/acme", writeJSON(ashbyBoardJSON))
	mux.HandleFunc("/v1/boards/walled/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cf-Mitigated", "challenge")
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/v1/boards/busy/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/v1/boards/garbled/jobs", writeJSON(`{"jobs":[{"id":`))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAPIStrategy(srv *httptest.Server) *APIStrategy {
	return NewAPIStrategy(httpx.NewPoliteClient("test-agent"), Endpoints{
		Greenhouse: srv.URL,
		Lever:      srv.URL,
		Ashby:      srv.URL,
	})
}

func atsTarget(ats, board string) TargetConfig {
	return TargetConfig{
		ID:         "acme",
		Name:       "Acme",
		URL:        "https://acme.example/careers",
		ATS:        &ATSBinding{Type: ats, BoardID: board},
		Strategies: []StrategyKind{StrategyAPI},
	}
}

func TestAPIStrategy_Greenhouse(t *testing.T) {
	s := newTestAPIStrategy(newATSServer(t))

	jobs, err := s.Extract(context.Background(), atsTarget("greenhouse", "acme"), FetchOptions{})
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	first := jobs[0]
	assert.Equal(t, "Senior Backend Engineer", first.Title)
	assert.Equal(t, "Acme", first.Company)
	assert.Equal(t, "San Francisco, CA", first.Location)
	assert.Equal(t, "<p>Build Go services</p>", first.Description)
	assert.Equal(t, "Engineering", first.Department)
	assert.Equal(t, "Full-time", first.EmploymentType)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/101", first.URL)
	assert.Equal(t, time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC), first.PostedAt)

	assert.Equal(t, time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC), jobs[1].PostedAt)
	assert.True(t, jobs[2].PostedAt.IsZero())
	for _, j := range jobs {
		assert.Equal(t, StrategyAPI, j.Strategy)
	}
}

func TestAPIStrategy_Lever(t *testing.T) {
	s := newTestAPIStrategy(newATSServer(t))

	jobs, err := s.Extract(context.Background(), atsTarget("Lever", "acme"), FetchOptions{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	fe := jobs[0]
	assert.Equal(t, "Frontend Engineer", fe.Title)
	assert.Equal(t, "Berlin", fe.Location)
	assert.Equal(t, "Web", fe.Department)
	assert.Equal(t, "hybrid", fe.WorkplaceType)
	assert.Equal(t, []string{"React", "TypeScript"}, fe.Requirements)
	assert.Equal(t, 70000.0, fe.SalaryMin)
	assert.Equal(t, 90000.0, fe.SalaryMax)
	assert.Equal(t, "EUR", fe.SalaryCurrency)
	assert.Equal(t, "yearly", fe.SalaryPeriod)
	assert.Equal(t, time.UnixMilli(1738400000000).UTC(), fe.PostedAt)

	assert.Equal(t, "Lisbon", jobs[1].Location)
	assert.Equal(t, "Part-time", jobs[1].EmploymentType)
}

func TestAPIStrategy_Ashby(t *testing.T) {
	s := newTestAPIStrategy(newATSServer(t))

	jobs, err := s.Extract(context.Background(), atsTarget("ashby", "acme"), FetchOptions{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	j := jobs[0]
	assert.Equal(t, "ML Engineer", j.Title)
	assert.Equal(t, "full time", j.EmploymentType)
	assert.Equal(t, "Remote", j.WorkplaceType)
	assert.Equal(t, "AI", j.Department)
	assert.Equal(t, "Train models", j.Description)
	assert.Equal(t, 150000.0, j.SalaryMin)
	assert.Equal(t, 180000.0, j.SalaryMax)
	assert.Equal(t, "USD", j.SalaryCurrency)
	assert.Equal(t, "yearly", j.SalaryPeriod)
	assert.Equal(t, "$150K – $180K", j.SalaryText)
}

func TestAPIStrategy_ConfigErrors(t *testing.T) {
	s := newTestAPIStrategy(newATSServer(t))

	noBinding := atsTarget("greenhouse", "acme")
	noBinding.ATS = nil

	tests := []struct {
		name   string
		target TargetConfig
	}{
		{"missing binding", noBinding},
		{"empty board", atsTarget("greenhouse", " ")},
		{"unsupported ats", atsTarget("workday", "acme")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := s.Extract(context.Background(), tt.target, FetchOptions{})
			assert.Nil(t, jobs)
			var se *Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, ErrConfig, se.Kind)
			assert.Equal(t, StrategyAPI, se.Strategy)
			assert.False(t, se.Retryable())
		})
	}
}

func TestAPIStrategy_ClassifiesTransportFailures(t *testing.T) {
	s := newTestAPIStrategy(newATSServer(t))

	tests := []struct {
		board    string
		kind     ErrorKind
		status   int
		abandons bool
	}{
		{"walled", ErrBlocked, http.StatusForbidden, true},
		{"busy", ErrRateLimit, http.StatusTooManyRequests, true},
		{"garbled", ErrParse, 0, false},
		{"unknown-board", ErrNetwork, http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.board, func(t *testing.T) {
			_, err := s.Extract(context.Background(), atsTarget("greenhouse", tt.board), FetchOptions{})
			var se *Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, tt.abandons, se.Abandons())
		})
	}
}

func TestAPIStrategy_CancelledContext(t *testing.T) {
	s := newTestAPIStrategy(newATSServer(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Extract(ctx, atsTarget("greenhouse", "acme"), FetchOptions{})
	require.Error(t, err)
	assert.Equal(t, ErrTimeout, Classify(err, StrategyAPI).Kind)
}
