package bahn

import (
	"github.com/shopspring/decimal"
)

// Constraint bounds the offers a user wants to see.
type Constraint struct {
	MaxPrice    decimal.Decimal
	MaxDuration int // minutes
	MaxChanges  int
}

// FilterOffers keeps offers within all three bounds and groups them by
// exact price, keyed by the two-decimal price string. Extraction order is
// preserved inside each group. The map is empty when nothing survives.
func FilterOffers(offers []Offer, c Constraint) map[string][]Offer {
	groups := make(map[string][]Offer)
	for _, o := range offers {
		if o.Changes > c.MaxChanges {
			continue
		}
		if o.Price.GreaterThan(c.MaxPrice) {
			continue
		}
		if o.Duration > c.MaxDuration {
			continue
		}
		key := o.Price.StringFixed(2)
		groups[key] = append(groups[key], o)
	}
	return groups
}

// CountAtPrice counts offers shorter than maxHours whose price equals
// price exactly. Decimal-value equality, not string or tolerance based.
func CountAtPrice(offers []Offer, price decimal.Decimal, maxHours float64) int {
	n := 0
	for _, o := range offers {
		if float64(o.Duration)/60 >= maxHours {
			continue
		}
		if o.Price.Equal(price) {
			n++
		}
	}
	return n
}
