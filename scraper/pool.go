package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"

	"github.com/lmoreira/bookharvest/config"
	"github.com/lmoreira/bookharvest/discovery"
	"github.com/lmoreira/bookharvest/parser"
	"github.com/lmoreira/bookharvest/pipeline"
)

// Task is one unit of fetch work. A single worker owns it for its whole
// lifetime; only that worker increments Attempt.
type Task struct {
	Index   int
	URL     string
	Attempt int
}

// Pool is a fixed-size set of workers draining a shared bounded queue of
// detail-page tasks. Every task reaches exactly one terminal outcome in the
// collector; per-item failures never abort the pool.
type Pool struct {
	cfg     *config.Config
	fetcher Fetcher
	backoff Backoff
	metrics *Metrics
	limiter ratelimit.Limiter

	retries atomic.Int64
}

// NewPool builds a pool over the given fetcher. With 0 or 1 workers
// configured the pool runs strictly serially, pacing requests by the
// configured inter-request delay.
func NewPool(cfg *config.Config, fetcher Fetcher, metrics *Metrics) *Pool {
	p := &Pool{
		cfg:     cfg,
		fetcher: fetcher,
		backoff: NewBackoff(cfg.RetryBackoff, cfg.RetryBackoffMax),
		metrics: metrics,
	}
	if cfg.Serial() && cfg.SerialDelay > 0 {
		p.limiter = ratelimit.New(1, ratelimit.Per(cfg.SerialDelay))
	}
	return p
}

// Run drains all tasks and blocks until every one is terminal.
func (p *Pool) Run(ctx context.Context, urls []discovery.ProductURL, sink *pipeline.Collector) {
	if len(urls) == 0 {
		return
	}

	workers := p.cfg.Workers
	if workers <= 1 {
		workers = 1
	}

	tasks := make(chan Task, len(urls))
	for _, u := range urls {
		tasks <- Task{Index: u.Index, URL: u.URL}
	}
	close(tasks)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				p.process(ctx, task, sink)
			}
		}()
	}
	wg.Wait()
}

// Retries reports how many retry waits the run scheduled.
func (p *Pool) Retries() int {
	return int(p.retries.Load())
}

func (p *Pool) process(ctx context.Context, task Task, sink *pipeline.Collector) {
	for {
		task.Attempt++
		if p.limiter != nil {
			p.limiter.Take()
		}
		p.metrics.IncAttempt("started")

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		resp, err := p.fetcher.Fetch(attemptCtx, task.URL)
		cancel()
		p.metrics.ObserveFetchDuration(time.Since(start))

		failure := outcome(resp, err)
		if failure == nil {
			p.finish(task, sink, resp.Body)
			return
		}

		p.metrics.IncFailure(errorTypeLabel(failure))

		if !isTransient(failure) {
			slog.Debug("permanent fetch failure",
				slog.String("url", task.URL),
				slog.Any("error", failure),
			)
			p.fail(task, sink, failure)
			return
		}
		if task.Attempt >= p.cfg.MaxAttempts {
			slog.Debug("retries exhausted",
				slog.String("url", task.URL),
				slog.Int("attempts", task.Attempt),
				slog.Any("error", failure),
			)
			p.fail(task, sink, failure)
			return
		}

		p.retries.Add(1)
		p.metrics.IncRetries()
		delay := p.backoff.Delay(task.Attempt)
		slog.Debug("retrying fetch",
			slog.String("url", task.URL),
			slog.Int("attempt", task.Attempt),
			slog.Duration("backoff", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			p.fail(task, sink, classify(ctx.Err(), 0))
			return
		}
	}
}

// outcome folds a fetch attempt into nil (success) or a classified error.
func outcome(resp *Response, err error) error {
	if err != nil {
		return classify(err, 0)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return classify(nil, resp.StatusCode)
	}
	return nil
}

func (p *Pool) finish(task Task, sink *pipeline.Collector, body []byte) {
	record, err := parser.ParseBookPage(body, task.URL)
	if err != nil {
		p.metrics.IncFailure("parse")
		slog.Debug("parse failure",
			slog.String("url", task.URL),
			slog.Any("error", err),
		)
		p.fail(task, sink, err)
		return
	}
	p.metrics.IncRecords()
	if err := sink.Put(task.Index, record); err != nil {
		slog.Error("collector rejected record", slog.Int("index", task.Index), slog.Any("error", err))
	}
}

func (p *Pool) fail(task Task, sink *pipeline.Collector, cause error) {
	if err := sink.Fail(task.Index, task.URL, cause); err != nil {
		slog.Error("collector rejected failure", slog.Int("index", task.Index), slog.Any("error", err))
	}
}
