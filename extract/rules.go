package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Rule derives one field from a region. ok is false when the rule cannot
// produce a usable value and the next rule should be tried.
type Rule[T any] func(r *Region) (value T, ok bool)

// First evaluates rules in order and returns the first usable value.
func First[T any](r *Region, rules []Rule[T]) (T, bool) {
	for _, rule := range rules {
		if v, ok := rule(r); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// textOf yields the collapsed text of the first non-empty match of selector.
func textOf(selector string) Rule[string] {
	return func(r *Region) (string, bool) {
		var out string
		r.within(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = collapsedText(s)
			return out == ""
		})
		return out, out != ""
	}
}

// attrOf yields the trimmed attr of the first match of selector carrying a
// non-empty value.
func attrOf(selector, attr string) Rule[string] {
	return func(r *Region) (string, bool) {
		var out string
		r.within(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = strings.TrimSpace(s.AttrOr(attr, ""))
			return out == ""
		})
		return out, out != ""
	}
}
