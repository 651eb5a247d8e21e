package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lmoreira/bookharvest/config"
	"github.com/lmoreira/bookharvest/discovery"
	"github.com/lmoreira/bookharvest/models"
	"github.com/lmoreira/bookharvest/pipeline"
	"github.com/lmoreira/bookharvest/scraper"
)

func main() {
	defaultCfg := config.DefaultConfig()
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	workersDefault := defaultCfg.Workers
	if value, ok, err := config.EnvInt("SCRAPER_WORKERS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_WORKERS: %v\n", err)
		os.Exit(1)
	} else if ok {
		workersDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	maxPages := flag.Int("pages", pagesDefault, "Maximum listing pages to walk")
	workers := flag.Int("workers", workersDefault, "Number of fetch workers (0 or 1 = serial)")
	delayMs := flag.Int("delay", int(defaultCfg.SerialDelay/time.Millisecond), "Inter-request delay in serial mode (milliseconds)")
	maxAttempts := flag.Int("max-attempts", defaultCfg.MaxAttempts, "Maximum fetch attempts per URL")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", "csv", "Output format: csv, json, or dual")
	verbose := flag.Bool("v", false, "Enable verbose logging and progress reporting")
	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Catalogue root URL")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	failOnEmpty := flag.Bool("fail-on-empty", false, "Exit non-zero when every discovered item failed")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := buildConfigFromFlags(*baseURL, *maxPages, *workers, *delayMs, *maxAttempts, *retryBackoffMs, *retryBackoffMaxMs, *respectRobots, *outputFile, *outputFormat, *verbose, *metricsAddr, *failOnEmpty)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("workers", cfg.Workers),
		slog.Bool("serial", cfg.Serial()),
	)

	s, err := scraper.New(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	disc, err := discovery.New(cfg)
	if err != nil {
		slog.Error("initialising discovery", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	summary, runErr := s.Run(ctx, disc, writer)

	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if runErr != nil {
		var discErr *discovery.Error
		if errors.As(runErr, &discErr) {
			slog.Error("discovery failed, no tasks were created", slog.Any("error", runErr))
		} else {
			slog.Error("scrape failed", slog.Any("error", runErr))
		}
		// the pool still drained; report what the run achieved before failing
		if summary != nil {
			printSummary(summary, cfg.OutputFile)
		}
		os.Exit(1)
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	printSummary(summary, cfg.OutputFile)

	if cfg.FailOnZeroSuccess && summary.Discovered > 0 && summary.Succeeded == 0 {
		slog.Error("every discovered item failed")
		os.Exit(1)
	}
}

func buildConfigFromFlags(baseURL string, maxPages, workers, delayMs, maxAttempts, retryBackoffMs, retryBackoffMaxMs int, respectRobots bool, outputFile, outputFormat string, verbose bool, metricsAddr string, failOnEmpty bool) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.MaxPages = maxPages
	cfg.Workers = workers
	cfg.SerialDelay = time.Duration(delayMs) * time.Millisecond
	cfg.MaxAttempts = maxAttempts
	cfg.RetryBackoff = time.Duration(retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(retryBackoffMaxMs) * time.Millisecond
	cfg.RespectRobotsTxt = respectRobots
	cfg.OutputFile = outputFile
	cfg.OutputFormat = strings.ToLower(outputFormat)
	cfg.Verbose = verbose
	cfg.MetricsAddr = metricsAddr
	cfg.FailOnZeroSuccess = failOnEmpty
	return cfg
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(summary *models.RunSummary, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Discovered:    %d\n", summary.Discovered)
	fmt.Printf("  Succeeded:     %d\n", summary.Succeeded)
	fmt.Printf("  Failed:        %d\n", summary.Failed)
	fmt.Printf("  Retries:       %d\n", summary.Retries)
	if len(summary.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", summary.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", summary.Duration().Round(time.Millisecond))
	fmt.Printf("  Items/sec:     %.2f\n", summary.ItemsPerSecond())
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
