// Package main wires together the job scraper service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mhatretamish/linkedin/internal/api"
	"github.com/mhatretamish/linkedin/internal/cache"
	"github.com/mhatretamish/linkedin/internal/clock/system"
	"github.com/mhatretamish/linkedin/internal/config"
	"github.com/mhatretamish/linkedin/internal/fetcher"
	collyfetcher "github.com/mhatretamish/linkedin/internal/fetcher/colly"
	"github.com/mhatretamish/linkedin/internal/fetcher/detector"
	headlessfetcher "github.com/mhatretamish/linkedin/internal/fetcher/headless"
	"github.com/mhatretamish/linkedin/internal/handler"
	"github.com/mhatretamish/linkedin/internal/id/uuid"
	"github.com/mhatretamish/linkedin/internal/logging"
	"github.com/mhatretamish/linkedin/internal/metrics"
	"github.com/mhatretamish/linkedin/internal/ratelimit"
	"github.com/mhatretamish/linkedin/internal/scraper"
	"github.com/mhatretamish/linkedin/internal/webhook"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	clock := system.New()
	idGen := uuid.New()
	resultCache := cache.New(cfg.Cache.MaxSize, cfg.CacheTTL(), clock)
	limiter := ratelimit.NewSlidingWindow(cfg.Scraper.RateLimit, cfg.RateWindow(), clock)

	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		PerDomainRPS: cfg.HTTP.PerDomainRPS,
	})
	var rendered scraper.PageFetcher = headlessfetcher.Noop{}
	if cfg.Headless.Enabled {
		chromeFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			defer chromeFetcher.Close()
			rendered = chromeFetcher
		}
	}
	pipeline := fetcher.New(probe, rendered, detector.NewHeuristic(0), clock, logger.Named("fetcher"),
		fetcher.WithRetryDelays(fetcher.RetrySchedule(cfg.HTTP.MaxRetries)))

	scrapeHandler := handler.New(handler.Config{
		Workers:     cfg.Scraper.MaxWorkers,
		QueueSize:   cfg.Scraper.MaxQueueSize,
		TaskTimeout: cfg.TaskTimeout(),
	}, handler.Deps{
		Fetcher: pipeline,
		Cache:   resultCache,
		Limiter: limiter,
		Clock:   clock,
		IDGen:   idGen,
		Logger:  logger.Named("handler"),
	})

	notifier := webhook.New(nil, logger.Named("webhook"))
	apiServer := api.NewServer(scrapeHandler, resultCache, notifier, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		return scrapeHandler.Shutdown(shutdownCtx, true)
	})

	if err := g.Wait(); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
