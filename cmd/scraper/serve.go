package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/baxromumarov/job-scraper/internal/api"
	"github.com/baxromumarov/job-scraper/internal/core"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Scrape on an interval and serve the observability API",
	RunE:  serveCmd,
}

var (
	servePort     string
	serveInterval time.Duration
)

func init() {
	serveCommand.Flags().StringVarP(&servePort, "port", "p", "", "HTTP port (defaults to PORT)")
	serveCommand.Flags().DurationVar(&serveInterval, "interval", 0, "Time between runs (defaults to SCRAPE_INTERVAL)")

	rootCmd.AddCommand(serveCommand)
}

func serveCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	if serveInterval > 0 {
		cfg.Interval = serveInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		jobs   api.JobLister
		pruner core.Pruner
	)
	if a.store != nil {
		jobs = a.store
		pruner = a.store
	}
	a.runner.Start(ctx, cfg.Interval, pruner, cfg.Retention)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(a.runner, a.metrics, a.limiter, jobs).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.Port, "targets", len(a.targets), "interval", cfg.Interval)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
