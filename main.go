// RxWriter serves the prescription form and medication lookup backed by
// Health Canada's Drug Product Database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giygas/rxwriter/config"
	"github.com/giygas/rxwriter/dpd"
	"github.com/giygas/rxwriter/handlers"
	"github.com/giygas/rxwriter/health"
	"github.com/giygas/rxwriter/logging"
	"github.com/giygas/rxwriter/lookup"
	"github.com/giygas/rxwriter/scheduler"
	"github.com/giygas/rxwriter/server"
	"github.com/giygas/rxwriter/session"
	"github.com/giygas/rxwriter/validation"
)

func main() {
	startTime := time.Now()

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		// Logger is not set up yet
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggingService := logging.InitLoggerWithOptions(logging.Options{
		Dir:            cfg.LogDir,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer loggingService.Close()

	logging.Info("Configuration loaded",
		"env", cfg.Env,
		"address", cfg.Address,
		"port", cfg.Port,
		"dpd_base_url", cfg.DPDBaseURL,
		"dpd_lang", cfg.DPDLang,
	)

	directory, err := dpd.NewClient(dpd.Options{
		BaseURL: cfg.DPDBaseURL,
		Lang:    cfg.DPDLang,
		Timeout: cfg.DPDTimeout,
		Rate:    cfg.DPDRate,
		Burst:   cfg.DPDBurst,
	})
	if err != nil {
		logging.Error("Failed to create drug directory client", "error", err)
		os.Exit(1)
	}

	engine := lookup.NewEngine(directory, lookup.Config{
		MaxResults:  cfg.LookupMaxResults,
		Concurrency: cfg.LookupConcurrency,
	})
	sessions := session.NewStore(cfg.SessionTTL, cfg.MaxSessions)
	limiter := server.NewRateLimiter(cfg.RateLimitRate, cfg.RateLimitCapacity)

	healthChecker := health.NewHealthChecker(sessions, directory, startTime)
	handler := handlers.NewHTTPHandler(sessions, engine, validation.NewValidator(), healthChecker)

	jobs := scheduler.NewScheduler(sessions, limiter, cfg.SessionSweepInterval)
	if err := jobs.Start(); err != nil {
		logging.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(cfg, handler, limiter)

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until a signal is received or the listener fails
	select {
	case sig := <-quit:
		logging.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		logging.Error("Server failed to start", "error", err)
		jobs.Stop()
		os.Exit(1)
	}

	jobs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("Server shutdown failed", "error", err)
	}
}
