// Package parser turns raw product-page HTML into BookRecords. It performs
// no I/O and holds no state; extraction either fully succeeds or reports a
// ParseError.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lmoreira/bookharvest/models"
)

// ParseError reports a product page whose required structure is missing or
// malformed. It is terminal for the item and never retried.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Field, e.Reason)
}

var ratingWords = map[string]int{
	"one":   1,
	"two":   2,
	"three": 3,
	"four":  4,
	"five":  5,
}

var (
	priceRe  = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	digitsRe = regexp.MustCompile(`\d+`)
)

// ParseBookPage extracts a full BookRecord from a product detail page.
// pageURL is used to resolve relative links such as the cover image.
func ParseBookPage(body []byte, pageURL string) (*models.BookRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Field: "document", Reason: err.Error()}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &ParseError{Field: "page_url", Reason: err.Error()}
	}

	title := strings.TrimSpace(doc.Find("div.product_main h1").First().Text())
	if title == "" {
		return nil, &ParseError{Field: "title", Reason: "missing product title"}
	}

	rating, err := ratingOf(doc)
	if err != nil {
		return nil, err
	}

	info := productInfo(doc)

	upc := strings.TrimSpace(info["UPC"])
	if upc == "" {
		return nil, &ParseError{Field: "upc", Reason: "missing UPC row"}
	}

	priceExcl, err := requiredPrice(info, "Price (excl. tax)")
	if err != nil {
		return nil, err
	}
	priceIncl, err := requiredPrice(info, "Price (incl. tax)")
	if err != nil {
		return nil, err
	}
	tax, err := requiredPrice(info, "Tax")
	if err != nil {
		return nil, err
	}

	availabilityText := info["Availability"]
	if availabilityText == "" {
		availabilityText = doc.Find("div.product_main p.availability").First().Text()
	}

	return &models.BookRecord{
		Title:        title,
		Category:     categoryOf(doc),
		ImageURL:     imageOf(doc, base),
		Description:  descriptionOf(doc),
		Rating:       rating,
		UPC:          upc,
		ProductType:  strings.TrimSpace(info["Product Type"]),
		PriceExclTax: priceExcl,
		PriceInclTax: priceIncl,
		Tax:          tax,
		Availability: ExtractQuantity(availabilityText),
		ExtractedAt:  time.Now().UTC(),
	}, nil
}

// ParsePrice extracts a decimal value from a price string, tolerating
// currency symbols and surrounding noise.
func ParsePrice(text string) (float64, error) {
	match := priceRe.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("no numeric value in %q", text)
	}
	match = strings.ReplaceAll(match, ",", ".")
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", text, err)
	}
	return value, nil
}

// ExtractQuantity pulls the first integer out of free-text stock copy such
// as "In stock (22 available)". Absence of a number means zero, not an
// error.
func ExtractQuantity(text string) int {
	match := digitsRe.FindString(text)
	if match == "" {
		return 0
	}
	value, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return value
}

// RatingFromClass maps the star-rating class attribute to an integer 1..5.
func RatingFromClass(classAttr string) (int, error) {
	for _, class := range strings.Fields(classAttr) {
		if value, ok := ratingWords[strings.ToLower(class)]; ok {
			return value, nil
		}
	}
	return 0, &ParseError{Field: "rating", Reason: fmt.Sprintf("unrecognised star-rating class %q", classAttr)}
}

func ratingOf(doc *goquery.Document) (int, error) {
	marker := doc.Find("p.star-rating").First()
	if marker.Length() == 0 {
		return 0, &ParseError{Field: "rating", Reason: "missing star-rating marker"}
	}
	return RatingFromClass(marker.AttrOr("class", ""))
}

func categoryOf(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("ul.breadcrumb li").Eq(2).Find("a").Text())
}

func descriptionOf(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("#product_description").NextAllFiltered("p").First().Text())
}

func imageOf(doc *goquery.Document, base *url.URL) string {
	img := doc.Find("article.product_page img").First()
	if img.Length() == 0 {
		img = doc.Find("div.thumbnail img, div.item.active img").First()
	}
	if img.Length() == 0 {
		img = doc.Find("img").First()
	}
	src := img.AttrOr("src", "")
	if src == "" {
		return ""
	}
	resolved, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return base.ResolveReference(resolved).String()
}

// productInfo flattens the "Product Information" table into a th→td map.
func productInfo(doc *goquery.Document) map[string]string {
	info := make(map[string]string)
	doc.Find("table.table-striped tr").Each(func(_ int, row *goquery.Selection) {
		key := strings.TrimSpace(row.Find("th").Text())
		value := strings.TrimSpace(row.Find("td").Text())
		if key != "" {
			info[key] = value
		}
	})
	return info
}

func requiredPrice(info map[string]string, key string) (float64, error) {
	raw, ok := info[key]
	if !ok {
		return 0, &ParseError{Field: key, Reason: "missing product information row"}
	}
	value, err := ParsePrice(raw)
	if err != nil {
		return 0, &ParseError{Field: key, Reason: err.Error()}
	}
	return value, nil
}
