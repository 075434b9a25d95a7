package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pricescout/config"
)

func testSite() config.SiteConfig {
	return config.SiteConfig{
		Name:          "Micro Center",
		BaseURL:       "https://www.microcenter.com",
		ProductMarker: "/product/",
		ContainerSelectors: []string{
			".product_wrapper",
			".details",
			"[data-price][data-name]",
		},
	}
}

func testExtractConfig() config.ExtractConfig {
	return config.ExtractConfig{
		NoiseFloor:    10,
		ResultCap:     10,
		ScanLimit:     30,
		MinRegionText: 20,
		MaxRegionText: 1500,
	}
}

func parse(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

// regionOf wraps the first element matching selector.
func regionOf(t *testing.T, markup, selector string) *Region {
	t.Helper()
	sel := parse(t, markup).Find(selector).First()
	require.Equal(t, 1, sel.Length(), "no element matches %q", selector)
	return NewRegion(sel)
}

const rtx4090Listing = `<html><body>
<ul class="results-list">
  <li class="product_wrapper">
    <div class="details">
      <div class="pDescription"><a href="/product/123">NVIDIA GeForce RTX 4090 Founders Edition</a></div>
      <span class="price">$1,599.99</span>
      <img class="productImage" src="data:image/gif;base64,R0lGODlhAQABAAAAACw=" data-src="/images/4090.jpg">
      <div class="inventory">In stock at Tustin store</div>
    </div>
  </li>
  <li class="product_wrapper">
    <div class="details">
      <div class="pDescription"><a href="/product/456">AMD Radeon RX 7900 XTX</a></div>
      <span class="price">$899.99</span>
    </div>
  </li>
</ul>
</body></html>`
