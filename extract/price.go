package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// amountRe matches a bare decimal amount with optional thousands
	// separators: "1,599.99", "1599.99", "1599".
	amountRe = regexp.MustCompile(`((?:\d{1,3}(?:,\d{3})+)|\d+)(\.\d{1,2})?`)

	// currencyRe matches a dollar-prefixed amount in free text. A bare
	// number in running text is a model number or a count, not a price.
	currencyRe = regexp.MustCompile(`\$\s?((?:\d{1,3}(?:,\d{3})+)|\d+)(\.\d{1,2})?`)
)

// ParsePrice returns the first amount in s that is above floor.
// Thousands separators are stripped and the value is rounded to cents.
func ParsePrice(s string, floor float64) (float64, bool) {
	return firstAbove(amountRe, s, floor)
}

// ScanPrice is ParsePrice restricted to currency-prefixed amounts.
func ScanPrice(s string, floor float64) (float64, bool) {
	return firstAbove(currencyRe, s, floor)
}

func firstAbove(re *regexp.Regexp, s string, floor float64) (float64, bool) {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "")+m[2], 64)
		if err != nil {
			continue
		}
		v = roundCents(v)
		if v > floor {
			return v, true
		}
	}
	return 0, false
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
