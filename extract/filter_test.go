package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/pricescout/models"
)

func TestFilter_Admit(t *testing.T) {
	rec := models.ProductRecord{Title: "NVIDIA GeForce RTX 4090", Price: 1599.99, Link: "https://www.microcenter.com/product/1"}
	tests := []struct {
		name       string
		markup     string
		price      float64
		wantOK     bool
		wantReason Reason
	}{
		{"admitted", `<div class="card">RTX 4090 $1,599.99 in stock</div>`, rec.Price, true, ReasonAdmitted},
		{"out of stock", `<div class="card">RTX 4090 $1,599.99 <b>Sold Out</b></div>`, rec.Price, false, ReasonOutOfStock},
		{"store only", `<div class="card">RTX 4090 $1,599.99 <i>In-Store Only</i></div>`, rec.Price, false, ReasonStoreOnly},
		{"sponsored class", `<div class="card sponsored-tile">RTX 4090 $1,599.99</div>`, rec.Price, false, ReasonSponsored},
		{"sponsored prefix", `<div class="card"><small>Sponsored</small> RTX 4090 $1,599.99</div>`, rec.Price, false, ReasonSponsored},
		{"price at floor", `<div class="card">RTX 4090 cable $10</div>`, 10, false, ReasonPrice},
	}
	f := NewFilter(testExtractConfig()).ForQuery("rtx 4090")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rec
			r.Price = tt.price
			ok, reason := f.Admit(regionOf(t, tt.markup, "div.card"), r)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestFilter_StockCheckedBeforePrice(t *testing.T) {
	f := NewFilter(testExtractConfig())
	ok, reason := f.Admit(regionOf(t, `<div class="card">out of stock $1</div>`, "div.card"), models.ProductRecord{Price: 1})
	assert.False(t, ok)
	assert.Equal(t, ReasonOutOfStock, reason)
}

func TestFilter_QueryMatch(t *testing.T) {
	cfg := testExtractConfig()
	cfg.RequireQueryMatch = true
	f := NewFilter(cfg).ForQuery("RTX 4090")
	region := regionOf(t, `<div class="card">graphics card $899.99</div>`, "div.card")

	ok, reason := f.Admit(region, models.ProductRecord{Title: "AMD Radeon RX 7900 XTX", Price: 899.99})
	assert.False(t, ok)
	assert.Equal(t, ReasonQueryMismatch, reason)

	ok, _ = f.Admit(region, models.ProductRecord{Title: "NVIDIA GeForce RTX4090 24GB", Price: 899.99})
	assert.True(t, ok)

	ok, _ = NewFilter(testExtractConfig()).ForQuery("RTX 4090").Admit(region, models.ProductRecord{Title: "AMD Radeon RX 7900 XTX", Price: 899.99})
	assert.True(t, ok, "query match is off by default")
}
