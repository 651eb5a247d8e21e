// Package scraper coordinates discovery, the fetch worker pool, and the
// output pipeline for a single run.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmoreira/bookharvest/config"
	"github.com/lmoreira/bookharvest/discovery"
	"github.com/lmoreira/bookharvest/models"
	"github.com/lmoreira/bookharvest/parser"
	"github.com/lmoreira/bookharvest/pipeline"
)

// Scraper runs the crawl end to end: ordered URL discovery, bounded
// concurrent fetching, and a single ordered write of the dataset.
type Scraper struct {
	cfg     *config.Config
	fetcher Fetcher
	Metrics *Metrics
}

// New builds a scraper instance configured from cfg.
func New(cfg *config.Config) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Scraper{
		cfg:     cfg,
		fetcher: NewFetcher(cfg, nil),
		Metrics: NewMetrics(),
	}, nil
}

// SetFetcher swaps the fetch implementation. Used by tests and fixtures.
func (s *Scraper) SetFetcher(f Fetcher) {
	s.fetcher = f
}

// Run executes one full scrape. Per-item failures are counted, never fatal;
// only a discovery failure or a dataset write failure returns an error.
func (s *Scraper) Run(ctx context.Context, disc *discovery.Discoverer, writer pipeline.OutputWriter) (*models.RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	urls, err := disc.Discover(ctx)
	if err != nil {
		return nil, err
	}
	s.Metrics.AddDiscovered(len(urls))
	slog.Info("discovery complete", slog.Int("products", len(urls)))

	sink := pipeline.NewCollector(len(urls))

	var progress *pipeline.Progress
	if s.cfg.Verbose {
		progress = pipeline.NewProgress(sink, 5*time.Second)
		progress.Start()
	}

	pool := NewPool(s.cfg, s.fetcher, s.Metrics)
	pool.Run(ctx, urls, sink)

	if progress != nil {
		progress.Stop()
	}

	summary := s.summary(start, urls, sink, pool)

	if err := writer.Write(sink.Records()); err != nil {
		return summary, fmt.Errorf("write dataset: %w", err)
	}
	return summary, nil
}

func (s *Scraper) summary(start time.Time, urls []discovery.ProductURL, sink *pipeline.Collector, pool *Pool) *models.RunSummary {
	succeeded, failed := sink.Counts()
	summary := &models.RunSummary{
		Discovered:   len(urls),
		Succeeded:    succeeded,
		Failed:       failed,
		Retries:      pool.Retries(),
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorsByType: make(map[string]int),
	}
	for _, f := range sink.Failures() {
		summary.FailedURLs = append(summary.FailedURLs, f.URL)
		summary.ErrorsByType[failureLabel(f.Err)]++
	}
	return summary
}

func failureLabel(err error) string {
	var perr *parser.ParseError
	if errors.As(err, &perr) {
		return "parse"
	}
	return errorTypeLabel(err)
}
