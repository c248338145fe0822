// Package invoice computes a project's billable total from room pricing,
// flat delivery and pickup fees, and a location-keyed tax rate.
package invoice

import (
	"strings"

	"github.com/shopspring/decimal"

	"stageline/internal/config"
	"stageline/internal/domain"
)

// TaxRule maps address keywords to a tax rate.
type TaxRule struct {
	Name     string
	Keywords []string
	Rate     decimal.Decimal
}

// DefaultTaxRate applies when no rule matches.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// TaxRules are checked in order and the first match wins. Overlapping
// keywords resolve by position, so the order must not change.
var TaxRules = []TaxRule{
	{Name: "california", Keywords: []string{"california", ", ca", "los angeles", "san francisco", "san diego", "san jose", "beverly hills", "santa monica", "pasadena", "malibu"}, Rate: decimal.RequireFromString("0.1025")},
	{Name: "new_york", Keywords: []string{"new york", ", ny", "nyc", "brooklyn", "manhattan", "queens", "bronx", "staten island"}, Rate: decimal.RequireFromString("0.08875")},
	{Name: "texas", Keywords: []string{"texas", ", tx", "houston", "dallas", "austin", "san antonio"}, Rate: decimal.RequireFromString("0.0825")},
	{Name: "florida", Keywords: []string{"florida", ", fl", "miami", "orlando", "tampa", "jacksonville"}, Rate: decimal.RequireFromString("0.075")},
	{Name: "illinois", Keywords: []string{"illinois", ", il", "chicago"}, Rate: decimal.RequireFromString("0.1025")},
	{Name: "washington", Keywords: []string{"washington", ", wa", "seattle", "tacoma", "bellevue"}, Rate: decimal.RequireFromString("0.101")},
}

// Invoice is the breakdown of a project's billable total.
type Invoice struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	PickupFee    decimal.Decimal `json:"pickup_fee"`
	FeesSubtotal decimal.Decimal `json:"fees_subtotal"`
	TaxRule      string          `json:"tax_rule"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
}

// Calculate returns the invoice for a project. A project without room
// pricing has no invoice yet and totals exactly zero.
func Calculate(p domain.Project, s config.Settings) Invoice {
	if len(p.RoomPricing) == 0 {
		return Invoice{}
	}
	subtotal := Subtotal(p.RoomPricing)
	fees := subtotal.Add(s.DeliveryFee).Add(s.PickupFee)
	rule, rate := TaxRate(p.TaxAddress())
	tax := fees.Mul(rate)
	return Invoice{
		Subtotal:     subtotal,
		DeliveryFee:  s.DeliveryFee,
		PickupFee:    s.PickupFee,
		FeesSubtotal: fees,
		TaxRule:      rule,
		TaxRate:      rate,
		Tax:          tax,
		Total:        fees.Add(tax),
	}
}

func Total(p domain.Project, s config.Settings) decimal.Decimal {
	return Calculate(p, s).Total
}

// Subtotal sums price*quantity over rooms where both are positive.
func Subtotal(rooms map[string]domain.RoomPrice) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rooms {
		if r.Quantity <= 0 || !r.Price.IsPositive() {
			continue
		}
		sum = sum.Add(r.Price.Mul(decimal.NewFromInt(int64(r.Quantity))))
	}
	return sum
}

// TaxRate resolves the rate for an address by case-insensitive substring
// match against TaxRules. State codes (", ca") only match as a whole token,
// so "Cambridge, MA" does not read as California.
func TaxRate(address string) (string, decimal.Decimal) {
	lowered := strings.ToLower(address)
	if lowered != "" {
		for _, rule := range TaxRules {
			for _, kw := range rule.Keywords {
				if matchKeyword(lowered, kw) {
					return rule.Name, rule.Rate
				}
			}
		}
	}
	return "default", DefaultTaxRate
}

func matchKeyword(address, kw string) bool {
	if !strings.HasPrefix(kw, ", ") {
		return strings.Contains(address, kw)
	}
	for from := 0; ; {
		i := strings.Index(address[from:], kw)
		if i < 0 {
			return false
		}
		end := from + i + len(kw)
		if end == len(address) || !isLetter(address[end]) {
			return true
		}
		from += i + 1
	}
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
