package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// imageSourceAttrs lists lazy-load attributes before src; lazy loaders park
// the real URL there and leave a placeholder in src.
var imageSourceAttrs = []string{"data-src", "data-lazy-src", "data-original", "src"}

func titleRules() []Rule[string] {
	return []Rule[string]{
		textOf("h2 a"),
		textOf(".pDescription a"),
		attrOf("[data-name]", "data-name"),
		textOf(".product-title"),
		textOf(".title"),
		textOf("h1, h2, h3, h4, h5, h6"),
	}
}

func priceRules(floor float64) []Rule[float64] {
	return []Rule[float64]{
		priceFrom(attrOf("[data-price]", "data-price"), floor),
		priceFrom(attrOf("[itemprop=price]", "content"), floor),
		priceFrom(textOf(".price"), floor),
		priceFrom(textOf(".yourPrice"), floor),
		priceFrom(textOf("[class*=price]"), floor),
		func(r *Region) (float64, bool) {
			return ScanPrice(r.Text(), floor)
		},
	}
}

// priceFrom parses the string produced by src.
func priceFrom(src Rule[string], floor float64) Rule[float64] {
	return func(r *Region) (float64, bool) {
		s, ok := src(r)
		if !ok {
			return 0, false
		}
		return ParsePrice(s, floor)
	}
}

func linkRules(base *url.URL, marker string) []Rule[string] {
	rules := make([]Rule[string], 0, 2)
	if marker != "" {
		rules = append(rules, anchorRule(base, func(href string) bool {
			return strings.Contains(href, marker)
		}))
	}
	return append(rules, anchorRule(base, func(string) bool { return true }))
}

// anchorRule yields the first resolvable anchor href accepted by keep.
func anchorRule(base *url.URL, keep func(href string) bool) Rule[string] {
	return func(r *Region) (string, bool) {
		var out string
		r.within("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href := a.AttrOr("href", "")
			if !keep(href) {
				return true
			}
			out = resolve(base, href)
			return out == ""
		})
		return out, out != ""
	}
}

func imageRules(base *url.URL) []Rule[string] {
	return []Rule[string]{
		imageRule(base, "img.productImage"),
		imageRule(base, "img[data-src]"),
		imageRule(base, "img"),
	}
}

// imageRule yields the first usable source among the matches of selector,
// lazy attributes before src. Inline data: placeholders are skipped.
func imageRule(base *url.URL, selector string) Rule[string] {
	return func(r *Region) (string, bool) {
		var out string
		r.within(selector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			for _, attr := range imageSourceAttrs {
				src := strings.TrimSpace(img.AttrOr(attr, ""))
				if src == "" || strings.HasPrefix(src, "data:") {
					continue
				}
				if out = resolve(base, src); out != "" {
					return false
				}
			}
			return true
		})
		return out, out != ""
	}
}
