package extract

import (
	"regexp"
	"strings"

	"github.com/use-agent/pricescout/models"
)

var usedRe = regexp.MustCompile(`\bused\b|\bpre-owned\b`)

// Condition classifies region text. Earlier matches win: a refurbished
// open-box unit is "Refurbished".
func Condition(text string) models.Condition {
	switch {
	case strings.Contains(text, "refurbished"):
		return models.ConditionRefurbished
	case strings.Contains(text, "open box"), strings.Contains(text, "open-box"):
		return models.ConditionOpenBox
	case usedRe.MatchString(text):
		return models.ConditionUsed
	}
	return models.ConditionNew
}

// Shipping classifies region text, defaulting to in-store pickup.
func Shipping(text string) models.Shipping {
	switch {
	case strings.Contains(text, "free shipping"):
		return models.ShippingFree
	case strings.Contains(text, "shipping available"):
		return models.ShippingAvailable
	case strings.Contains(text, "online only"):
		return models.ShippingOnlineOnly
	case strings.Contains(text, "check availability"):
		return models.ShippingCheckAvailability
	}
	return models.ShippingInStorePickup
}
