package extract

import (
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

// ErrIncomplete is returned for a region that lacks a title, a price or a
// link. Such regions are dropped, never returned as partial records.
var ErrIncomplete = errors.New("extract: region lacks title, price or link")

// Extractor turns a candidate region into a product record by running one
// ordered rule chain per field. It is safe for concurrent use.
type Extractor struct {
	source string
	title  []Rule[string]
	price  []Rule[float64]
	link   []Rule[string]
	image  []Rule[string]
}

// NewExtractor builds the rule chains for site.
func NewExtractor(site config.SiteConfig, cfg config.ExtractConfig) (*Extractor, error) {
	base, err := url.Parse(site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("extractor: invalid base URL %q: %w", site.BaseURL, err)
	}
	return &Extractor{
		source: site.Name,
		title:  titleRules(),
		price:  priceRules(cfg.NoiseFloor),
		link:   linkRules(base, site.ProductMarker),
		image:  imageRules(base),
	}, nil
}

// Extract derives a record from r. A panic while evaluating rules on broken
// markup is reported as MALFORMED_MARKUP so the caller can skip the region.
func (e *Extractor) Extract(r *Region) (rec models.ProductRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec = models.ProductRecord{}
			err = models.NewScrapeError(models.ErrCodeMalformed,
				fmt.Sprintf("candidate %s region: %v", r.Pass(), p), nil)
		}
	}()

	title, ok := First(r, e.title)
	if !ok {
		return rec, ErrIncomplete
	}
	price, ok := First(r, e.price)
	if !ok || price <= 0 {
		return rec, ErrIncomplete
	}
	link, ok := First(r, e.link)
	if !ok {
		return rec, ErrIncomplete
	}
	image, _ := First(r, e.image)

	return models.ProductRecord{
		Title:     truncateRunes(title, models.MaxTitleLength),
		Price:     price,
		Link:      link,
		Image:     image,
		Source:    e.source,
		Condition: Condition(r.Text()),
		Shipping:  Shipping(r.Text()),
	}, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
