// Command scraper runs the career page extraction engine once or as a
// service.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/baxromumarov/job-scraper/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "scraper",
	Short: "Multi-strategy job listing scraper",
	Long: `Scrapes employer career targets through ATS APIs, structured data, HTML
parsing, model-assisted extraction and browser rendering, then normalizes and
deduplicates the postings before handing them to the configured sinks.`,
	SilenceUsage: true,
}

var (
	configPath  string
	targetsPath string
	logLevel    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or JSON5 config file")
	rootCmd.PersistentFlags().StringVarP(&targetsPath, "targets", "t", "", "Path to the targets file (defaults to TARGETS_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// loadConfig merges flags over the file and environment and installs the
// JSON logger.
func loadConfig() (config.Config, error) {
	cfg, err := loadSettings()
	if err != nil {
		return cfg, err
	}
	if cfg.TargetsPath == "" {
		return cfg, fmt.Errorf("no targets file: pass --targets or set TARGETS_FILE")
	}
	return cfg, nil
}

// loadSettings is loadConfig for commands that do not read targets.
func loadSettings() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if targetsPath != "" {
		cfg.TargetsPath = targetsPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	return cfg, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
