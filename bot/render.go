package bot

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"sparpreis-bot/bahn"
)

// formatPrice renders a price the German way, comma decimal plus euro sign.
func formatPrice(p decimal.Decimal) string {
	return strings.Replace(p.StringFixed(2), ".", ",", 1) + "€"
}

// renderOfferGroups lists filtered offers grouped by price, cheapest
// group first, extraction order inside a group.
func renderOfferGroups(groups map[string][]bahn.Offer) string {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := decimal.NewFromString(keys[i])
		b, _ := decimal.NewFromString(keys[j])
		return a.LessThan(b)
	})

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString("*" + strings.Replace(key, ".", ",", 1) + "€:*\n")
		for _, o := range groups[key] {
			fmt.Fprintf(&sb, "%s Uhr - %s Uhr (%dh%02dmin), %dx umsteigen\n",
				o.StartTime, o.ArrivalTime, o.Duration/60, o.Duration%60, o.Changes)
		}
	}
	return sb.String()
}

// upstreamMessage turns a backend failure into the text shown to the
// user. Backend-reported errors are shown verbatim.
func upstreamMessage(err error) string {
	var upstream *bahn.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Text
	}
	return "Die Preissuche ist gerade nicht erreichbar. Bitte später nochmal versuchen."
}
