package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/baxromumarov/job-scraper/internal/core"
	"github.com/baxromumarov/job-scraper/internal/engine"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Scrape every target once and print the outcomes",
	Long: `Runs one scrape cycle within the run timeout: every target is tried through
its strategies in order, the jobs are normalized and deduplicated and the batch
goes to the configured sinks. An outcome table is printed to stdout.`,
	RunE: runOnceCmd,
}

var (
	runOutput   string
	runJSON     bool
	runKeywords []string
	runTimeout  time.Duration
)

func init() {
	runCommand.Flags().StringVarP(&runOutput, "output", "o", "", "Write the batch as JSON to this file (defaults to OUTPUT_PATH)")
	runCommand.Flags().BoolVar(&runJSON, "json", false, "Print the run report as JSON instead of a table")
	runCommand.Flags().StringSliceVarP(&runKeywords, "keywords", "k", nil, "Only keep jobs mentioning one of these keywords")
	runCommand.Flags().DurationVar(&runTimeout, "timeout", 0, "Run wall-clock budget (defaults to RUN_TIMEOUT)")

	rootCmd.AddCommand(runCommand)
}

func runOnceCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runOutput != "" {
		cfg.OutputPath = runOutput
	}
	if len(runKeywords) > 0 {
		cfg.Keywords = runKeywords
	}
	if runTimeout > 0 {
		cfg.RunTimeout = runTimeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, runErr := a.runner.RunOnce(ctx)

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		renderOutcomes(out, report)
	}
	return runErr
}

// renderOutcomes prints one row per target and a summary footer.
func renderOutcomes(w io.Writer, report core.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Target", "Status", "Strategy", "Jobs", "Attempts", "Duration", "Error"})

	for _, o := range report.Outcomes {
		t.AppendRow(table.Row{
			o.TargetID,
			outcomeStatus(o),
			string(o.Strategy),
			len(o.Jobs),
			attemptTrail(o.Attempts),
			o.Duration.Round(time.Millisecond).String(),
			outcomeError(o),
		})
	}

	s := report.Summary
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d targets", len(report.Outcomes)),
		fmt.Sprintf("%d ok / %d failed / %d skipped", s.Succeeded, s.Failed, s.Skipped),
		"",
		s.JobsFound,
		"",
		"",
		fmt.Sprintf("%d ingested", report.Batch.Stats.JobsIngested),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func outcomeStatus(o engine.Outcome) string {
	switch {
	case o.Skipped:
		return "skipped"
	case o.Success && o.FromCache:
		return "cached"
	case o.Success:
		return "ok"
	case o.Retryable():
		return "retry"
	default:
		return "failed"
	}
}

func attemptTrail(attempts []engine.Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		mark := "ok"
		if a.Err != nil {
			mark = string(a.Err.Kind)
		} else if a.Jobs == 0 {
			mark = "empty"
		}
		parts = append(parts, fmt.Sprintf("%s:%s", a.Strategy, mark))
	}
	return strings.Join(parts, " > ")
}

func outcomeError(o engine.Outcome) string {
	if o.Success || o.Err == nil {
		return ""
	}
	msg := []rune(o.Err.Error())
	if len(msg) > 60 {
		return string(msg[:57]) + "..."
	}
	return string(msg)
}
