package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL           string
	MaxPages          int
	Workers           int // 0 or 1 means strictly serial execution
	SerialDelay       time.Duration
	Timeout           time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
	RetryBackoffMax   time.Duration
	DiscoveryRetries  int
	DedupeCacheSize   int
	OutputFile        string
	OutputFormat      string // csv, json, or dual
	UserAgent         string
	Verbose           bool
	RespectRobotsTxt  bool
	MetricsAddr       string
	FailOnZeroSuccess bool
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://books.toscrape.com/catalogue/page-1.html",
		MaxPages:          60,
		Workers:           12,
		SerialDelay:       100 * time.Millisecond,
		Timeout:           15 * time.Second,
		MaxAttempts:       3,
		RetryBackoff:      250 * time.Millisecond,
		RetryBackoffMax:   5 * time.Second,
		DiscoveryRetries:  2,
		DedupeCacheSize:   4096,
		OutputFile:        "output/books.csv",
		OutputFormat:      "csv",
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		Verbose:           false,
		RespectRobotsTxt:  false,
		MetricsAddr:       "",
		FailOnZeroSuccess: false,
	}
}

// Serial reports whether the run executes with a single worker and an
// inter-request delay instead of concurrency.
func (c *Config) Serial() bool {
	return c.Workers <= 1
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	if c.SerialDelay < 0 {
		return fmt.Errorf("serial delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DiscoveryRetries < 0 {
		return fmt.Errorf("discovery retries cannot be negative")
	}
	if c.DedupeCacheSize <= 0 {
		return fmt.Errorf("dedupe cache size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
