package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Pass identifies the locator pass that produced a region.
type Pass int

const (
	// PassCurated matched one of the site's container selectors.
	PassCurated Pass = iota
	// PassKeyword matched a container whose class names a product keyword.
	PassKeyword
	// PassCurrency matched a bounded block holding a currency amount.
	PassCurrency
)

func (p Pass) String() string {
	switch p {
	case PassCurated:
		return "curated"
	case PassKeyword:
		return "keyword"
	case PassCurrency:
		return "currency"
	}
	return "unknown"
}

// Region is one candidate product listing: a subtree of the parsed page and
// its lowercase, whitespace-collapsed text, computed once.
type Region struct {
	sel  *goquery.Selection
	text string
	key  string
	pass Pass
}

// NewRegion wraps sel as a candidate. The dedupe key is left empty; regions
// built by a Locator always carry one.
func NewRegion(sel *goquery.Selection) *Region {
	return newRegion(sel, "", PassCurated)
}

func newRegion(sel *goquery.Selection, key string, pass Pass) *Region {
	return &Region{
		sel:  sel,
		text: strings.ToLower(collapsedText(sel)),
		key:  key,
		pass: pass,
	}
}

// Selection returns the region's subtree.
func (r *Region) Selection() *goquery.Selection { return r.sel }

// Text returns the lowercase full text of the region.
func (r *Region) Text() string { return r.text }

// Key returns the dedupe key: the product link, or the normalized subtree.
func (r *Region) Key() string { return r.key }

// Pass returns the locator pass that produced the region.
func (r *Region) Pass() Pass { return r.pass }

// within returns the elements matching selector among the region root and
// its descendants, root first.
func (r *Region) within(selector string) *goquery.Selection {
	return r.sel.Filter(selector).AddSelection(r.sel.Find(selector))
}

// collapsedText joins all text nodes under sel with single spaces, skipping
// script and style bodies. goquery's Text() concatenates adjacent elements
// without a separator ("RTX 4090$1599.99").
func collapsedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" || n.Data == "noscript" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// renderedKey serializes n and collapses whitespace, so two regions with the
// same markup modulo formatting share a key.
func renderedKey(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}
