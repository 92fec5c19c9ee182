package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/tadash/internal/api"
	"github.com/newthinker/tadash/internal/metrics"
	"github.com/newthinker/tadash/internal/warmup"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Initialize logger
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := build(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("starting tadash server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("provider", a.provider),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("archive", cfg.Export.Archive.Enabled),
	)

	server, err := api.NewServer(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		APIKey:       cfg.Server.APIKey,
		TemplatesDir: cfg.Server.TemplatesDir,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MetricsPath:  cfg.Metrics.Path,
	}, api.Dependencies{
		Analysis:     a.service,
		Searcher:     a.searcher,
		Metrics:      reg,
		Provider:     a.provider,
		CacheBackend: cfg.Cache.Backend,
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	sched, err := startWarmup(a, reg, log)
	if err != nil {
		return err
	}
	if sched != nil {
		defer sched.Stop()
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down tadash server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// startWarmup returns nil when warmup is disabled or there is no cache to warm
func startWarmup(a *app, reg *metrics.Registry, log *zap.Logger) (*warmup.Scheduler, error) {
	wc := a.cfg.Warmup
	if !wc.Enabled {
		return nil, nil
	}
	if a.cached == nil {
		log.Warn("warmup enabled but cache backend is none, skipping")
		return nil, nil
	}

	sched, err := warmup.New(warmup.Config{
		Schedule: wc.Schedule,
		Symbols:  wc.Symbols,
		Period:   wc.Period,
		Interval: wc.Interval,
	}, a.cached, log.Named("warmup"))
	if err != nil {
		return nil, fmt.Errorf("creating warmup scheduler: %w", err)
	}
	if reg != nil {
		sched.SetRecorder(reg)
	}
	if p, ok := a.store.(warmup.Purger); ok {
		sched.SetPurger(p)
	}
	sched.Start()
	return sched, nil
}
