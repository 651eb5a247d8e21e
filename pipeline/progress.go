package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Progress periodically logs collector counters while the pool drains. It
// only reads snapshots; it cannot influence scheduling or ordering.
type Progress struct {
	collector *Collector
	interval  time.Duration
	start     time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

// NewProgress builds a reporter over the collector.
func NewProgress(c *Collector, interval time.Duration) *Progress {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Progress{
		collector: c,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start launches the reporting loop.
func (p *Progress) Start() {
	p.start = time.Now()
	go p.loop()
}

// Stop terminates the reporting loop. Safe to call more than once.
func (p *Progress) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

func (p *Progress) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			done, succeeded, failed, total := p.collector.Snapshot()
			rate := 0.0
			if elapsed := time.Since(p.start).Seconds(); elapsed > 0 {
				rate = float64(done) / elapsed
			}
			slog.Info("progress",
				slog.Int("done", done),
				slog.Int("total", total),
				slog.Int("succeeded", succeeded),
				slog.Int("failed", failed),
				slog.String("rate", fmt.Sprintf("%.1f items/sec", rate)),
			)
		case <-p.done:
			return
		}
	}
}
