package extract

import (
	"strings"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

// Reason says why the filter rejected a region.
type Reason string

const (
	ReasonAdmitted      Reason = ""
	ReasonOutOfStock    Reason = "out_of_stock"
	ReasonStoreOnly     Reason = "store_only"
	ReasonSponsored     Reason = "sponsored"
	ReasonPrice         Reason = "price"
	ReasonQueryMismatch Reason = "query_mismatch"
)

var (
	outOfStockPhrases = []string{"out of stock", "sold out", "no longer available", "unavailable"}
	storeOnlyPhrases  = []string{"in-store only", "store only", "pickup only", "not available online", "not sold online"}
	sponsoredMarkers  = []string{"sponsored", "advert"}
	sponsoredPrefixes = []string{"sponsored", "advertisement"}
)

// Filter decides whether an extracted listing can be returned. A Filter is
// immutable; ForQuery derives the per-run copy.
type Filter struct {
	noiseFloor        float64
	requireQueryMatch bool
	query             string
}

// NewFilter creates a Filter from the extraction settings.
func NewFilter(cfg config.ExtractConfig) *Filter {
	return &Filter{
		noiseFloor:        cfg.NoiseFloor,
		requireQueryMatch: cfg.RequireQueryMatch,
	}
}

// ForQuery returns a copy of f that matches titles against query.
func (f *Filter) ForQuery(query string) *Filter {
	c := *f
	c.query = strings.ToLower(strings.Join(strings.Fields(query), ""))
	return &c
}

// Admit checks the region's full text for stock and purchase-channel
// language before looking at the record, since availability is often
// printed outside any labeled element.
func (f *Filter) Admit(r *Region, rec models.ProductRecord) (bool, Reason) {
	text := r.Text()
	if containsAny(text, outOfStockPhrases) {
		return false, ReasonOutOfStock
	}
	if containsAny(text, storeOnlyPhrases) {
		return false, ReasonStoreOnly
	}
	if isSponsored(r) {
		return false, ReasonSponsored
	}
	if rec.Price <= f.noiseFloor {
		return false, ReasonPrice
	}
	if f.requireQueryMatch && f.query != "" {
		title := strings.ToLower(strings.Join(strings.Fields(rec.Title), ""))
		if !strings.Contains(title, f.query) {
			return false, ReasonQueryMismatch
		}
	}
	return true, ReasonAdmitted
}

func isSponsored(r *Region) bool {
	attrs := strings.ToLower(r.Selection().AttrOr("class", "") + " " + r.Selection().AttrOr("id", ""))
	if containsAny(attrs, sponsoredMarkers) {
		return true
	}
	for _, p := range sponsoredPrefixes {
		if strings.HasPrefix(r.Text(), p) {
			return true
		}
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
