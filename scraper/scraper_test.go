package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/lmoreira/bookharvest/config"
	"github.com/lmoreira/bookharvest/discovery"
	"github.com/lmoreira/bookharvest/models"
)

// bookPage builds a minimal but complete product detail page.
func bookPage(title, price, rating string) string {
	return fmt.Sprintf(`<html><body>
<ul class="breadcrumb">
  <li><a href="/index.html">Home</a></li>
  <li><a href="/catalogue/category/books_1/index.html">Books</a></li>
  <li><a href="/catalogue/category/books/fiction_10/index.html">Fiction</a></li>
  <li class="active">%s</li>
</ul>
<article class="product_page">
  <div class="item active"><img src="../../media/cache/cover.jpg"/></div>
  <div class="product_main">
    <h1>%s</h1>
    <p class="star-rating %s"></p>
    <p class="availability">In stock (7 available)</p>
  </div>
  <div id="product_description"><h2>Product Description</h2></div>
  <p>A story worth reading twice.</p>
  <table class="table table-striped">
    <tr><th>UPC</th><td>upc-%s</td></tr>
    <tr><th>Product Type</th><td>Books</td></tr>
    <tr><th>Price (excl. tax)</th><td>£%s</td></tr>
    <tr><th>Price (incl. tax)</th><td>£%s</td></tr>
    <tr><th>Tax</th><td>£0.00</td></tr>
    <tr><th>Availability</th><td>In stock (7 available)</td></tr>
  </table>
</article>
</body></html>`, title, title, rating, strings.ToLower(strings.ReplaceAll(title, " ", "-")), price, price)
}

func listingPage(page, perPage int, hasNext bool) string {
	var builder strings.Builder
	builder.WriteString(`<html><body><section class="products">`)
	for i := 1; i <= perPage; i++ {
		id := (page-1)*perPage + i
		fmt.Fprintf(&builder, `<article class="product_pod"><h3><a href="book-%d/index.html" title="Book %d">Book %d</a></h3></article>`, id, id, id)
	}
	if hasNext {
		fmt.Fprintf(&builder, `<ul class="pager"><li class="next"><a href="page-%d.html">next</a></li></ul>`, page+1)
	}
	builder.WriteString(`</section></body></html>`)
	return builder.String()
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

type memoryWriter struct {
	mu      sync.Mutex
	records []*models.BookRecord
	writes  int
}

func (mw *memoryWriter) Write(records []*models.BookRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.records = append(mw.records, records...)
	mw.writes++
	return nil
}

func (mw *memoryWriter) Close() error {
	return nil
}

func (mw *memoryWriter) Validate() error {
	return nil
}

// TestScraperEndToEnd runs the full fixture catalogue: 3 listing pages with
// 5 items each, 2 workers, one item succeeding on its third attempt and one
// item that never recovers.
func TestScraperEndToEnd(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/catalogue/page-1.html"
	cfg.MaxPages = 10
	cfg.Workers = 2
	cfg.MaxAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	cfg.DiscoveryRetries = 1

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/catalogue/page-1.html", htmlResponder(listingPage(1, 5, true)))
	transport.RegisterResponder("GET", "http://example.test/catalogue/page-2.html", htmlResponder(listingPage(2, 5, true)))
	transport.RegisterResponder("GET", "http://example.test/catalogue/page-3.html", htmlResponder(listingPage(3, 5, false)))

	for id := 1; id <= 15; id++ {
		url := fmt.Sprintf("http://example.test/catalogue/book-%d/index.html", id)
		switch id {
		case 4:
			// two transient failures, then success
			var mu sync.Mutex
			calls := 0
			transport.RegisterResponder("GET", url, func(req *http.Request) (*http.Response, error) {
				mu.Lock()
				defer mu.Unlock()
				calls++
				if calls <= 2 {
					return httpmock.NewStringResponse(503, "try later"), nil
				}
				resp := httpmock.NewStringResponse(200, bookPage("Book 4", "4.00", "Four"))
				resp.Header.Set("Content-Type", "text/html")
				return resp, nil
			})
		case 9:
			transport.RegisterResponder("GET", url, httpmock.NewStringResponder(500, "permanently broken"))
		default:
			transport.RegisterResponder("GET", url, htmlResponder(bookPage(fmt.Sprintf("Book %d", id), fmt.Sprintf("%d.00", id), "Two")))
		}
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.SetFetcher(NewFetcher(cfg, transport))

	disc, err := discovery.New(cfg)
	if err != nil {
		t.Fatalf("new discoverer: %v", err)
	}
	disc.WithTransport(transport)

	writer := &memoryWriter{}
	summary, err := s.Run(context.Background(), disc, writer)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Discovered != 15 {
		t.Fatalf("discovered=%d, want 15", summary.Discovered)
	}
	if summary.Succeeded != 14 || summary.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 14/1", summary.Succeeded, summary.Failed)
	}
	if len(summary.FailedURLs) != 1 || !strings.Contains(summary.FailedURLs[0], "book-9") {
		t.Fatalf("failed urls=%v, want book-9", summary.FailedURLs)
	}
	if summary.ErrorsByType["server_error"] != 1 {
		t.Fatalf("errors by type=%v, want one server_error", summary.ErrorsByType)
	}
	if summary.Retries < 2 {
		t.Fatalf("retries=%d, want at least 2 for book-4", summary.Retries)
	}

	if writer.writes != 1 {
		t.Fatalf("writer invoked %d times, want exactly once", writer.writes)
	}
	if len(writer.records) != 14 {
		t.Fatalf("rows=%d, want 14", len(writer.records))
	}

	// catalogue order with the failed item omitted
	want := make([]string, 0, 14)
	for id := 1; id <= 15; id++ {
		if id == 9 {
			continue
		}
		want = append(want, fmt.Sprintf("Book %d", id))
	}
	for i, record := range writer.records {
		if record.Title != want[i] {
			t.Fatalf("row %d = %q, want %q", i, record.Title, want[i])
		}
	}

	// the retried item carries the value from its successful attempt
	if writer.records[3].Title != "Book 4" || writer.records[3].Rating != 4 {
		t.Fatalf("retried item=%+v, want Book 4 with rating 4", writer.records[3])
	}
}

type failingWriter struct {
	writes int
}

func (fw *failingWriter) Write(records []*models.BookRecord) error {
	fw.writes++
	return errors.New("disk full")
}

func (fw *failingWriter) Close() error {
	return nil
}

func (fw *failingWriter) Validate() error {
	return nil
}

func TestScraperWriteFailureStillReturnsSummary(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/catalogue/page-1.html"
	cfg.Workers = 2
	cfg.DiscoveryRetries = 1
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.BaseURL, htmlResponder(listingPage(1, 2, false)))
	for id := 1; id <= 2; id++ {
		url := fmt.Sprintf("http://example.test/catalogue/book-%d/index.html", id)
		transport.RegisterResponder("GET", url, htmlResponder(bookPage(fmt.Sprintf("Book %d", id), "1.00", "One")))
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.SetFetcher(NewFetcher(cfg, transport))

	disc, err := discovery.New(cfg)
	if err != nil {
		t.Fatalf("new discoverer: %v", err)
	}
	disc.WithTransport(transport)

	writer := &failingWriter{}
	summary, err := s.Run(context.Background(), disc, writer)

	if err == nil || !strings.Contains(err.Error(), "write dataset") {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
	if summary == nil {
		t.Fatalf("write failure must not discard the run summary")
	}
	if summary.Discovered != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Fatalf("summary=%+v, want 2 discovered, 2 succeeded", summary)
	}
	if writer.writes != 1 {
		t.Fatalf("writer invoked %d times, want exactly once", writer.writes)
	}
}

func TestScraperDiscoveryFailureCreatesNoTasks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/catalogue/page-1.html"
	cfg.DiscoveryRetries = 1
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.BaseURL, httpmock.NewStringResponder(500, "down"))

	fetched := 0
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.SetFetcher(FetcherFunc(func(_ context.Context, url string) (*Response, error) {
		fetched++
		return &Response{StatusCode: 200}, nil
	}))

	disc, err := discovery.New(cfg)
	if err != nil {
		t.Fatalf("new discoverer: %v", err)
	}
	disc.WithTransport(transport)

	writer := &memoryWriter{}
	_, err = s.Run(context.Background(), disc, writer)

	var discErr *discovery.Error
	if !errors.As(err, &discErr) {
		t.Fatalf("expected discovery error, got %v", err)
	}
	if fetched != 0 {
		t.Fatalf("no fetch task may be created after a discovery failure, got %d", fetched)
	}
	if writer.writes != 0 {
		t.Fatalf("writer must not run after a discovery failure")
	}
}
