package scraper

import (
	"context"
	"net/http"

	"resty.dev/v3"

	"github.com/lmoreira/bookharvest/config"
)

// Response is the raw outcome of a single fetch attempt.
type Response struct {
	StatusCode int
	Body       []byte
}

// Fetcher performs one fetch attempt for a product page. Implementations
// must honour ctx cancellation; retry is the pool's concern, never the
// fetcher's.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Response, error) {
	return f(ctx, url)
}

type restyFetcher struct {
	client *resty.Client
}

// NewFetcher builds the default resty-backed fetcher. Resty's built-in
// retries stay disabled. A non-nil transport overrides the default, which
// tests use to serve fixtures.
func NewFetcher(cfg *config.Config, transport http.RoundTripper) Fetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.5")
	if transport != nil {
		client.SetTransport(transport)
	}
	return &restyFetcher{client: client}
}

func (f *restyFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode(), Body: resp.Bytes()}, nil
}
