package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/pricescout/config"
)

// containerTags are the element types the generic passes consider.
const containerTags = "div, li, article, section, tr, td, p"

// productKeywords mark container classes in the keyword pass.
var productKeywords = []string{"product", "item", "result", "detail"}

// Locator finds candidate product regions in a search-results page.
// It holds no per-page state and is safe for concurrent use.
type Locator struct {
	curated       []cascadia.Sel
	base          *url.URL
	productMarker string
	scanLimit     int
	minText       int
	maxText       int
}

// NewLocator compiles the site's container selectors. An invalid selector
// is a configuration error.
func NewLocator(site config.SiteConfig, cfg config.ExtractConfig) (*Locator, error) {
	base, err := url.Parse(site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("locator: invalid base URL %q: %w", site.BaseURL, err)
	}
	curated := make([]cascadia.Sel, 0, len(site.ContainerSelectors))
	for _, s := range site.ContainerSelectors {
		sel, err := cascadia.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("locator: invalid container selector %q: %w", s, err)
		}
		curated = append(curated, sel)
	}
	return &Locator{
		curated:       curated,
		base:          base,
		productMarker: site.ProductMarker,
		scanLimit:     cfg.ScanLimit,
		minText:       cfg.MinRegionText,
		maxText:       cfg.MaxRegionText,
	}, nil
}

// Locate returns the page's candidate regions, most precise pass first,
// deduplicated and capped at the scan limit. Identical markup always
// yields the same regions in the same order.
func (l *Locator) Locate(doc *goquery.Document) []*Region {
	c := &collector{limit: l.scanLimit, seen: make(map[string]struct{})}

	// (a) curated selectors.
	for _, sel := range l.curated {
		for _, n := range cascadia.QueryAll(doc.Get(0), sel) {
			if c.full() {
				return c.regions
			}
			s := doc.FindNodes(n)
			links := l.productLinks(s)
			if len(links) > 1 {
				continue
			}
			c.add(s, l.keyFor(s, links), PassCurated)
		}
	}

	// (b) keyword classes. Fragments without an amount (a title or image
	// block inside a card) would claim the card's link key.
	doc.Find(containerTags).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !hasProductKeyword(s.AttrOr("class", "")) || !hasAmount(collapsedText(s)) {
			return true
		}
		links := l.productLinks(s)
		if len(links) > 1 {
			return true
		}
		c.add(s, l.keyFor(s, links), PassKeyword)
		return !c.full()
	})
	if c.full() {
		return c.regions
	}

	// (c) bounded blocks holding a currency amount.
	doc.Find(containerTags).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapsedText(s)
		if !hasAmount(text) || len(text) < l.minText || len(text) > l.maxText {
			return true
		}
		links := l.productLinks(s)
		if len(links) > 1 {
			return true
		}
		c.add(s, l.keyFor(s, links), PassCurrency)
		return !c.full()
	})
	return c.regions
}

// productLinks returns the distinct resolved product-detail links under s,
// in document order.
func (l *Locator) productLinks(s *goquery.Selection) []string {
	var links []string
	seen := make(map[string]struct{})
	s.Filter("a[href]").AddSelection(s.Find("a[href]")).Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if l.productMarker == "" || !strings.Contains(href, l.productMarker) {
			return
		}
		abs := resolve(l.base, href)
		if abs == "" {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

// keyFor prefers the region's product link and falls back to its markup.
func (l *Locator) keyFor(s *goquery.Selection, links []string) string {
	if len(links) > 0 {
		return "link:" + links[0]
	}
	return "html:" + renderedKey(s.Get(0))
}

// hasAmount reports whether text holds a currency-prefixed amount.
func hasAmount(text string) bool {
	return currencyRe.MatchString(text)
}

func hasProductKeyword(class string) bool {
	class = strings.ToLower(class)
	if class == "" {
		return false
	}
	for _, kw := range productKeywords {
		if strings.Contains(class, kw) {
			return true
		}
	}
	return false
}

type collector struct {
	regions []*Region
	seen    map[string]struct{}
	limit   int
}

func (c *collector) full() bool { return c.limit > 0 && len(c.regions) >= c.limit }

func (c *collector) add(s *goquery.Selection, key string, pass Pass) {
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}
	c.regions = append(c.regions, newRegion(s, key, pass))
}

// resolve returns href as an absolute http(s) URL against base, or "" when
// it does not point at a navigable page.
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
