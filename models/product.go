package models

// Condition is the item condition advertised by a listing.
type Condition string

const (
	ConditionNew         Condition = "New"
	ConditionOpenBox     Condition = "Open Box"
	ConditionRefurbished Condition = "Refurbished"
	ConditionUsed        Condition = "Used"
)

// Shipping is the fulfilment channel advertised by a listing.
type Shipping string

const (
	ShippingInStorePickup     Shipping = "InStorePickup"
	ShippingFree              Shipping = "FreeShipping"
	ShippingAvailable         Shipping = "ShippingAvailable"
	ShippingOnlineOnly        Shipping = "OnlineOnly"
	ShippingCheckAvailability Shipping = "CheckAvailability"
)

// MaxTitleLength is the rune limit for ProductRecord.Title.
const MaxTitleLength = 200

// ProductRecord is one admitted product listing.
//
// Title is non-empty, Price is above the configured noise floor and Link is
// an absolute URL; records violating this never leave the extractor.
type ProductRecord struct {
	Title     string    `json:"title"`
	Price     float64   `json:"price"`
	Link      string    `json:"link"`
	Image     string    `json:"image"`
	Source    string    `json:"source"`
	Condition Condition `json:"condition"`
	Shipping  Shipping  `json:"shipping"`
	InStock   bool      `json:"in_stock"`
}
