// Package store persists ingestion batches to Postgres.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/baxromumarov/job-scraper/internal/ingest"
	"github.com/baxromumarov/job-scraper/internal/normalize"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunMigrations applies the schema file at schemaPath, or the built-in
// schema when schemaPath is empty.
func (s *Store) RunMigrations(schemaPath string) error {
	content := []byte(schema)
	if schemaPath != "" {
		var err error
		content, err = os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

func clampLimit(limit int, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

const upsertJobSQL = `
INSERT INTO jobs (
    id, title, original_title, company, city, state, country, remote, location,
    work_type, employment_type, experience_level,
    salary_min, salary_max, salary_currency, salary_period,
    skills, description, url, department,
    source_type, ats, scrape_method, target_id,
    posted_at, scraped_at, updated_at, last_run_id
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    original_title = EXCLUDED.original_title,
    city = EXCLUDED.city,
    state = EXCLUDED.state,
    country = EXCLUDED.country,
    remote = EXCLUDED.remote,
    location = EXCLUDED.location,
    work_type = EXCLUDED.work_type,
    employment_type = EXCLUDED.employment_type,
    experience_level = EXCLUDED.experience_level,
    salary_min = COALESCE(EXCLUDED.salary_min, jobs.salary_min),
    salary_max = COALESCE(EXCLUDED.salary_max, jobs.salary_max),
    salary_currency = COALESCE(EXCLUDED.salary_currency, jobs.salary_currency),
    salary_period = COALESCE(EXCLUDED.salary_period, jobs.salary_period),
    skills = EXCLUDED.skills,
    description = EXCLUDED.description,
    url = EXCLUDED.url,
    department = EXCLUDED.department,
    source_type = EXCLUDED.source_type,
    ats = EXCLUDED.ats,
    scrape_method = EXCLUDED.scrape_method,
    target_id = EXCLUDED.target_id,
    posted_at = COALESCE(jobs.posted_at, EXCLUDED.posted_at),
    updated_at = EXCLUDED.updated_at,
    last_run_id = EXCLUDED.last_run_id
`

// Ingest writes the run row, upserts every job by id and records the
// duplicate groups, in one transaction.
func (s *Store) Ingest(ctx context.Context, b ingest.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO scrape_runs (run_id, started_at, finished_at, companies_attempted, jobs_found, jobs_ingested, error_count)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (run_id) DO UPDATE SET
    finished_at = EXCLUDED.finished_at,
    companies_attempted = EXCLUDED.companies_attempted,
    jobs_found = EXCLUDED.jobs_found,
    jobs_ingested = EXCLUDED.jobs_ingested,
    error_count = EXCLUDED.error_count
`, b.RunID, b.StartedAt, b.FinishedAt, b.Stats.CompaniesAttempted, b.Stats.JobsFound, b.Stats.JobsIngested, b.Stats.ErrorCount)
	if err != nil {
		return fmt.Errorf("save run %s: %w", b.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertJobSQL)
	if err != nil {
		return fmt.Errorf("prepare job upsert: %w", err)
	}
	defer stmt.Close()

	for _, job := range b.Jobs {
		args, err := jobArgs(job, b.RunID)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("save job %s: %w", job.ID, err)
		}
	}

	for _, g := range b.Duplicates {
		for _, d := range g.Duplicates {
			_, err := tx.ExecContext(ctx, `
INSERT INTO job_duplicates (run_id, canonical_id, duplicate_id, duplicate_url, reason, score)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING
`, b.RunID, g.Canonical.ID, d.Job.ID, d.Job.URL, string(d.Reason), d.Score)
			if err != nil {
				return fmt.Errorf("save duplicate %s: %w", d.Job.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingest: %w", err)
	}
	return nil
}

// jobArgs lays a job out in upsertJobSQL column order.
func jobArgs(job normalize.Job, runID string) ([]any, error) {
	skills := job.Skills
	if skills == nil {
		skills = map[normalize.SkillCategory][]string{}
	}
	skillsJSON, err := json.Marshal(skills)
	if err != nil {
		return nil, fmt.Errorf("encode skills for %s: %w", job.ID, err)
	}

	var (
		salaryMin      sql.NullFloat64
		salaryMax      sql.NullFloat64
		salaryCurrency sql.NullString
		salaryPeriod   sql.NullString
	)
	if sal := job.Salary; sal != nil {
		salaryMin = sql.NullFloat64{Float64: sal.Min, Valid: true}
		salaryMax = sql.NullFloat64{Float64: sal.Max, Valid: true}
		salaryCurrency = sql.NullString{String: sal.Currency, Valid: sal.Currency != ""}
		salaryPeriod = sql.NullString{String: sal.Period, Valid: sal.Period != ""}
	}

	return []any{
		job.ID,
		job.Title,
		job.OriginalTitle,
		job.Company,
		job.Location.City,
		job.Location.State,
		job.Location.Country,
		job.Location.Remote,
		job.Location.Canonical,
		string(job.WorkType),
		string(job.EmploymentType),
		string(job.ExperienceLevel),
		salaryMin,
		salaryMax,
		salaryCurrency,
		salaryPeriod,
		string(skillsJSON),
		job.Description,
		job.URL,
		job.Department,
		job.Source.Type,
		job.Source.ATS,
		job.Source.ScrapeMethod,
		job.Source.TargetID,
		nullTime(job.PostedAt),
		job.ScrapedAt,
		job.UpdatedAt,
		sql.NullString{String: runID, Valid: runID != ""},
	}, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// ListJobs pages through stored jobs, most recently scraped first.
func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]normalize.Job, int, error) {
	limit = clampLimit(limit, 20, 200)
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT
    id, title, original_title, company, city, state, country, remote, location,
    work_type, employment_type, experience_level,
    salary_min, salary_max, COALESCE(salary_currency, ''), COALESCE(salary_period, ''),
    skills, description, url, department,
    source_type, ats, scrape_method, target_id,
    posted_at, scraped_at, updated_at
FROM jobs
ORDER BY scraped_at DESC, id
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []normalize.Job
	for rows.Next() {
		var (
			j              normalize.Job
			workType       string
			employmentType string
			level          string
			salaryMin      sql.NullFloat64
			salaryMax      sql.NullFloat64
			currency       string
			period         string
			skills         []byte
			postedAt       sql.NullTime
		)

		if err := rows.Scan(
			&j.ID,
			&j.Title,
			&j.OriginalTitle,
			&j.Company,
			&j.Location.City,
			&j.Location.State,
			&j.Location.Country,
			&j.Location.Remote,
			&j.Location.Canonical,
			&workType,
			&employmentType,
			&level,
			&salaryMin,
			&salaryMax,
			&currency,
			&period,
			&skills,
			&j.Description,
			&j.URL,
			&j.Department,
			&j.Source.Type,
			&j.Source.ATS,
			&j.Source.ScrapeMethod,
			&j.Source.TargetID,
			&postedAt,
			&j.ScrapedAt,
			&j.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}

		j.WorkType = normalize.WorkType(workType)
		j.EmploymentType = normalize.EmploymentType(employmentType)
		j.ExperienceLevel = normalize.ExperienceLevel(level)
		if salaryMin.Valid || salaryMax.Valid {
			j.Salary = &normalize.Salary{Min: salaryMin.Float64, Max: salaryMax.Float64, Currency: currency, Period: period}
		}
		if len(skills) > 0 {
			if err := json.Unmarshal(skills, &j.Skills); err != nil {
				return nil, 0, fmt.Errorf("decode skills for %s: %w", j.ID, err)
			}
			if len(j.Skills) == 0 {
				j.Skills = nil
			}
		}
		if postedAt.Valid {
			j.PostedAt = postedAt.Time
		}

		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// DeleteOldJobs removes jobs not seen by any run for olderThan.
func (s *Store) DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
DELETE FROM jobs
WHERE updated_at < $1
`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
