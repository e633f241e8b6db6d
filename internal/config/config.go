// Package config loads runtime settings from defaults, an optional config
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/baxromumarov/job-scraper/internal/ai"
	"github.com/baxromumarov/job-scraper/internal/dedup"
	"github.com/baxromumarov/job-scraper/internal/engine"
	"github.com/baxromumarov/job-scraper/internal/ratelimit"
)

type Config struct {
	// RunTimeout is the wall-clock budget of one run.
	RunTimeout time.Duration `yaml:"run_timeout" json:"run_timeout" validate:"gt=0"`
	// Interval separates runs in serve mode.
	Interval    time.Duration `yaml:"interval" json:"interval" validate:"gt=0"`
	TargetsPath string        `yaml:"targets_path" json:"targets_path"`
	OutputPath  string        `yaml:"output_path" json:"output_path"`
	Keywords    []string      `yaml:"keywords" json:"keywords"`

	Engine    engine.Config    `yaml:"engine" json:"engine"`
	RateLimit ratelimit.Config `yaml:"rate_limit" json:"rate_limit"`
	Dedup     dedup.Config     `yaml:"dedup" json:"dedup"`
	AI        ai.Config        `yaml:"ai" json:"ai"`

	// AIEnabled switches on ai_extraction; it also needs a usable client.
	AIEnabled        bool   `yaml:"ai_enabled" json:"ai_enabled"`
	BrowserEnabled   bool   `yaml:"browser_enabled" json:"browser_enabled"`
	CloudflareBypass bool   `yaml:"cloudflare_bypass" json:"cloudflare_bypass"`
	UserAgent        string `yaml:"user_agent" json:"user_agent"`

	RedisURL    string        `yaml:"redis_url" json:"redis_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl" json:"cache_ttl" validate:"gte=0"`
	DatabaseURL string        `yaml:"database_url" json:"database_url"`
	// Retention deletes stored jobs not seen for this long; zero keeps them.
	Retention time.Duration `yaml:"retention" json:"retention" validate:"gte=0"`

	Port     string `yaml:"port" json:"port" validate:"required,numeric"`
	LogLevel string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
}

func Default() Config {
	return Config{
		RunTimeout: 55 * time.Second,
		Interval:   30 * time.Minute,
		Engine:     engine.DefaultConfig(),
		RateLimit:  ratelimit.DefaultConfig(),
		Dedup:      dedup.DefaultConfig(),
		CacheTTL:   30 * time.Minute,
		Port:       "8080",
		LogLevel:   "info",
	}
}

// Load reads .env, then the config file at path (YAML or JSON5, optional),
// then the environment. Non-zero file values replace defaults; set env vars
// replace both.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("merge config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Default overridden by the environment.
func FromEnv() Config {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

func readFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := decode(path, data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// decode picks the format from the file extension.
func decode(path string, data []byte, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, out)
	case ".json", ".json5":
		return json5.Unmarshal(data, out)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func applyEnv(cfg *Config) {
	cfg.RunTimeout = getEnvDuration("RUN_TIMEOUT", cfg.RunTimeout)
	cfg.Interval = getEnvDuration("SCRAPE_INTERVAL", cfg.Interval)
	cfg.TargetsPath = getEnv("TARGETS_FILE", cfg.TargetsPath)
	cfg.OutputPath = getEnv("OUTPUT_PATH", cfg.OutputPath)
	cfg.Keywords = getEnvList("KEYWORDS", cfg.Keywords)

	cfg.Engine.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", cfg.Engine.RequestTimeout)
	cfg.Engine.BatchSize = getEnvInt("BATCH_SIZE", cfg.Engine.BatchSize)
	cfg.Engine.BatchPause = getEnvDuration("BATCH_PAUSE", cfg.Engine.BatchPause)
	cfg.Engine.DeadlineMargin = getEnvDuration("DEADLINE_MARGIN", cfg.Engine.DeadlineMargin)
	cfg.Engine.HumanDelay = getEnvBool("HUMAN_DELAY", cfg.Engine.HumanDelay)
	cfg.Engine.RespectRobots = getEnvBool("RESPECT_ROBOTS", cfg.Engine.RespectRobots)

	cfg.RateLimit.Global.Capacity = getEnvInt("RATE_GLOBAL_CAPACITY", cfg.RateLimit.Global.Capacity)
	cfg.RateLimit.Global.RefillPerMinute = getEnvFloat("RATE_GLOBAL_PER_MINUTE", cfg.RateLimit.Global.RefillPerMinute)
	cfg.RateLimit.PerDomain.Capacity = getEnvInt("RATE_DOMAIN_CAPACITY", cfg.RateLimit.PerDomain.Capacity)
	cfg.RateLimit.PerDomain.RefillPerMinute = getEnvFloat("RATE_DOMAIN_PER_MINUTE", cfg.RateLimit.PerDomain.RefillPerMinute)

	cfg.Dedup.SimilarityThreshold = getEnvFloat("DEDUP_THRESHOLD", cfg.Dedup.SimilarityThreshold)
	cfg.Dedup.TimeWindow = getEnvDuration("DEDUP_WINDOW", cfg.Dedup.TimeWindow)

	cfg.AI.Provider = getEnv("AI_PROVIDER", cfg.AI.Provider)
	cfg.AI.APIKey = getEnv("GEMINI_API_KEY", cfg.AI.APIKey)
	cfg.AI.Model = getEnv("AI_MODEL", cfg.AI.Model)

	cfg.AIEnabled = getEnvBool("AI_ENABLED", cfg.AIEnabled)
	cfg.BrowserEnabled = getEnvBool("BROWSER_ENABLED", cfg.BrowserEnabled)
	cfg.CloudflareBypass = getEnvBool("CLOUDFLARE_BYPASS", cfg.CloudflareBypass)
	cfg.UserAgent = getEnv("USER_AGENT", cfg.UserAgent)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Retention = getEnvDuration("RETENTION", cfg.Retention)

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if t := c.Dedup.SimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("invalid config: dedup similarity threshold %v outside (0, 1]", t)
	}
	if c.RateLimit.Global.Capacity <= 0 || c.RateLimit.PerDomain.Capacity <= 0 {
		return errors.New("invalid config: rate limit capacities must be positive")
	}
	return nil
}

// Level maps LogLevel onto slog; unknown values mean info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid env value", "key", key, "value", v)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring invalid env value", "key", key, "value", v)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid env value", "key", key, "value", v)
		return fallback
	}
	return d
}

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring invalid env value", "key", key, "value", v)
		return fallback
	}
	return b
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
