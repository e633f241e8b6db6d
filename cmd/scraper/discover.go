package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/baxromumarov/job-scraper/internal/antidetect"
	"github.com/baxromumarov/job-scraper/internal/discovery"
	"github.com/baxromumarov/job-scraper/internal/httpx"
	"github.com/baxromumarov/job-scraper/internal/scraper"
)

var discoverCommand = &cobra.Command{
	Use:   "discover <homepage>...",
	Short: "Find career pages and propose target entries",
	Long: `Crawls each company homepage, its common career paths and sitemaps,
scores the candidate pages with the static extractors and prints a targets
file fragment. Evidence for each proposal is written to stderr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: discoverCmd,
}

var discoverJSON bool

func init() {
	discoverCommand.Flags().BoolVar(&discoverJSON, "json", false, "Print the full suggestions as JSON")

	rootCmd.AddCommand(discoverCommand)
}

// targetEntry is the subset of a target a suggestion fills in.
type targetEntry struct {
	ID         string                 `yaml:"id"`
	Name       string                 `yaml:"name"`
	URL        string                 `yaml:"url"`
	ATS        *scraper.ATSBinding    `yaml:"ats,omitempty"`
	Strategies []scraper.StrategyKind `yaml:"strategies,flow"`
}

func discoverCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := httpx.NewCollyFetcher(cfg.UserAgent, fetcherOptions(cfg.Engine.RequestTimeout, cfg.CloudflareBypass)...)
	headers := antidetect.New(nil)

	var (
		suggestions []discovery.Suggestion
		errs        []error
	)
	for _, homepage := range args {
		crawler := discovery.NewCrawler(fetcher, httpx.RequestOptions{
			Headers:       headers.Headers(homepage),
			RespectRobots: cfg.Engine.RespectRobots,
		})
		sug, err := crawler.Suggest(ctx, homepage)
		if err != nil {
			slog.Warn("discovery failed", "homepage", homepage, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", homepage, err))
			continue
		}
		suggestions = append(suggestions, sug)
	}

	out := cmd.OutOrStdout()
	if discoverJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(suggestions); err != nil {
			return err
		}
		return errors.Join(errs...)
	}

	if len(suggestions) > 0 {
		renderSignals(cmd.ErrOrStderr(), suggestions)
		if err := writeTargets(out, suggestions); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// writeTargets prints the suggestions as a targets file.
func writeTargets(w io.Writer, suggestions []discovery.Suggestion) error {
	doc := struct {
		Targets []targetEntry `yaml:"targets"`
	}{}
	for _, s := range suggestions {
		doc.Targets = append(doc.Targets, targetEntry{
			ID:         s.Target.ID,
			Name:       s.Target.Name,
			URL:        s.Target.URL,
			ATS:        s.Target.ATS,
			Strategies: s.Target.Strategies,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode targets: %w", err)
	}
	return enc.Close()
}

func renderSignals(w io.Writer, suggestions []discovery.Suggestion) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Target", "Page", "ATS", "JSON-LD", "Island", "HTML", "Candidates"})
	for _, s := range suggestions {
		ats := s.Signals.ATS
		if s.Signals.BoardID != "" {
			ats += "/" + s.Signals.BoardID
		}
		t.AppendRow(table.Row{
			s.Target.ID,
			s.Signals.PageURL,
			ats,
			s.Signals.JSONLD,
			s.Signals.DataIsland,
			s.Signals.HTML,
			len(s.Candidates),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
