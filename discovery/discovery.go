// Package discovery walks the paginated catalogue listing and produces the
// ordered, deduplicated sequence of product-page URLs. A listing page that
// cannot be fetched or parsed after bounded retries aborts the run before
// any fetch task is created.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lmoreira/bookharvest/config"
)

// Error is fatal: fetching must not start from a partial URL list.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discovery %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ProductURL is an absolute detail-page URL with its global catalogue index,
// assigned in order of first discovery.
type ProductURL struct {
	Index int
	URL   string
}

type listingPage struct {
	links []string
	next  string
}

// Discoverer follows the listing "next" pointer page by page. Walks are
// sequential; page handlers mutate only the current-page state.
type Discoverer struct {
	cfg       *config.Config
	collector *colly.Collector
	page      listingPage
}

// New builds a discoverer for the configured catalogue root.
func New(cfg *config.Config) (*Discoverer, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt

	d := &Discoverer{cfg: cfg, collector: collector}

	collector.OnHTML("article.product_pod h3 a", func(e *colly.HTMLElement) {
		if href := e.Attr("href"); href != "" {
			d.page.links = append(d.page.links, e.Request.AbsoluteURL(href))
		}
	})
	collector.OnHTML("li.next a", func(e *colly.HTMLElement) {
		if href := e.Attr("href"); href != "" {
			d.page.next = e.Request.AbsoluteURL(href)
		}
	})

	return d, nil
}

// WithTransport swaps the HTTP transport. Used by tests.
func (d *Discoverer) WithTransport(rt http.RoundTripper) {
	d.collector.WithTransport(rt)
}

// Discover returns every product URL in catalogue order, deduplicated by
// canonical URL at its first-seen position. The walk stops when the next
// pointer is absent, a page recurs, or the page bound is reached.
func (d *Discoverer) Discover(ctx context.Context) ([]ProductURL, error) {
	seen, err := lru.New[string, struct{}](d.cfg.DedupeCacheSize)
	if err != nil {
		return nil, &Error{URL: d.cfg.BaseURL, Err: err}
	}

	visited := make(map[string]struct{})
	var urls []ProductURL

	current := d.cfg.BaseURL
	for pages := 0; current != "" && pages < d.cfg.MaxPages; pages++ {
		canon := canonical(current)
		if _, looped := visited[canon]; looped {
			slog.Debug("pagination loops back, stopping walk", slog.String("url", current))
			break
		}
		visited[canon] = struct{}{}

		d.page = listingPage{}
		if err := d.visit(ctx, current); err != nil {
			return nil, &Error{URL: current, Err: err}
		}
		if len(d.page.links) == 0 {
			return nil, &Error{URL: current, Err: errors.New("no product links on listing page")}
		}

		added := 0
		for _, link := range d.page.links {
			key := canonical(link)
			if _, dup := seen.Get(key); dup {
				continue
			}
			seen.Add(key, struct{}{})
			urls = append(urls, ProductURL{Index: len(urls), URL: link})
			added++
		}

		slog.Debug("listing page walked",
			slog.String("url", current),
			slog.Int("links", len(d.page.links)),
			slog.Int("new", added),
		)

		current = d.page.next
	}

	return urls, nil
}

// visit fetches one listing page under its own bounded retry. Listing
// failures are rarer and cheaper than detail failures, so a plain doubling
// delay suffices here.
func (d *Discoverer) visit(ctx context.Context, pageURL string) error {
	delay := d.cfg.RetryBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= d.cfg.DiscoveryRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if max := d.cfg.RetryBackoffMax; max > 0 && delay > max {
				delay = max
			}
		}

		if lastErr = d.collector.Visit(pageURL); lastErr == nil {
			return nil
		}
		slog.Debug("listing fetch failed",
			slog.String("url", pageURL),
			slog.Int("attempt", attempt+1),
			slog.Any("error", lastErr),
		)
	}
	return lastErr
}

func canonical(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.Fragment = ""
	return parsed.String()
}
