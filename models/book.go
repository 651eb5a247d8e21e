// Package models defines data structures for the scraper.
package models

import "time"

// BookRecord is one fully extracted catalogue item. The parser either fills
// every field or reports a parse failure; partially populated records are
// never emitted.
type BookRecord struct {
	Title        string    `csv:"title" json:"title"`
	Category     string    `csv:"category" json:"category"`
	ImageURL     string    `csv:"image_url" json:"image_url"`
	Description  string    `csv:"description" json:"description"`
	Rating       int       `csv:"rating" json:"rating"`
	UPC          string    `csv:"upc" json:"upc"`
	ProductType  string    `csv:"product_type" json:"product_type"`
	PriceExclTax float64   `csv:"price_excl_tax" json:"price_excl_tax"`
	PriceInclTax float64   `csv:"price_incl_tax" json:"price_incl_tax"`
	Tax          float64   `csv:"tax" json:"tax"`
	Availability int       `csv:"availability" json:"availability"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

// RunSummary holds the overall result of a scrape run.
type RunSummary struct {
	Discovered   int
	Succeeded    int
	Failed       int
	Retries      int
	StartTime    time.Time
	EndTime      time.Time
	FailedURLs   []string
	ErrorsByType map[string]int
}

// Duration reports the wall-clock time of the run.
func (s *RunSummary) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// ItemsPerSecond reports extraction throughput over the whole run.
func (s *RunSummary) ItemsPerSecond() float64 {
	secs := s.Duration().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Succeeded) / secs
}
