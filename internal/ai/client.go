package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const (
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Extractor turns the readable text of a career page into job postings.
type Extractor interface {
	ExtractJobs(ctx context.Context, page PageData) ([]ExtractedJob, error)
	Close() error
}

type Config struct {
	Provider string `yaml:"provider" json:"provider"`
	APIKey   string `yaml:"-" json:"-"`
	Model    string `yaml:"model" json:"model"`
}

// NewClient creates an extractor for cfg.Provider.
// Supported providers: "gemini" (default if an API key is set), "mock".
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	// Auto-detect provider if not specified
	if provider == "" {
		if cfg.APIKey != "" {
			provider = ProviderGemini
		} else {
			provider = ProviderMock
		}
	}

	switch provider {
	case ProviderGemini:
		if cfg.APIKey == "" {
			logger.Warn("gemini provider selected without api key, falling back to mock")
			return NewMockClient(""), nil
		}
		logger.Info("using gemini extractor", "model", modelOrDefault(cfg.Model))
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	case ProviderMock:
		logger.Info("using mock extractor")
		return NewMockClient(""), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

type PageData struct {
	URL     string
	Company string
	Text    string
}

type ExtractedJob struct {
	Title          string   `json:"title"`
	Location       string   `json:"location,omitempty"`
	Description    string   `json:"description,omitempty"`
	URL            string   `json:"url,omitempty"`
	Department     string   `json:"department,omitempty"`
	EmploymentType string   `json:"employment_type,omitempty"`
	SalaryText     string   `json:"salary,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	PostedAt       string   `json:"posted_at,omitempty"`
}

type extraction struct {
	Jobs []ExtractedJob `json:"jobs"`
}

// DecodeJobs validates a model response against the extraction schema and
// decodes it.
func DecodeJobs(response string) ([]ExtractedJob, error) {
	raw := cleanJSON(response)
	if err := ValidateJobs(raw); err != nil {
		return nil, err
	}
	var out extraction
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to parse extraction: %w", err)
	}

	jobs := out.Jobs[:0]
	for _, j := range out.Jobs {
		j.Title = strings.TrimSpace(j.Title)
		if j.Title == "" {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// MockClient replays a canned model response. It is safe for concurrent use.
type MockClient struct {
	Response string
	Err      error

	mu    sync.Mutex
	Calls []PageData
}

func NewMockClient(response string) *MockClient {
	return &MockClient{Response: response}
}

func (m *MockClient) ExtractJobs(ctx context.Context, page PageData) ([]ExtractedJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.Calls = append(m.Calls, page)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if strings.TrimSpace(m.Response) == "" {
		return nil, nil
	}
	return DecodeJobs(m.Response)
}

// CallCount reports how many pages were sent to the mock.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockClient) Close() error { return nil }

// cleanJSON removes markdown code blocks if present
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// truncateText limits text to maxLen runes
func truncateText(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen]) + "..."
}
