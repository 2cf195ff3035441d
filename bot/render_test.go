package bot

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"sparpreis-bot/bahn"
)

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "29,90€", formatPrice(decimal.RequireFromString("29.9")))
	assert.Equal(t, "200,00€", formatPrice(decimal.NewFromInt(200)))
}

func TestRenderOfferGroups(t *testing.T) {
	groups := map[string][]bahn.Offer{
		"59.00": {
			{Price: decimal.RequireFromString("59.00"), Duration: 231, Changes: 0, StartTime: "9:01", ArrivalTime: "12:52"},
		},
		"29.90": {
			{Price: decimal.RequireFromString("29.90"), Duration: 242, Changes: 1, StartTime: "8:34", ArrivalTime: "10:20"},
		},
	}

	rendered := renderOfferGroups(groups)
	assert.Equal(t, "*29,90€:*\n"+
		"8:34 Uhr - 10:20 Uhr (4h02min), 1x umsteigen\n"+
		"*59,00€:*\n"+
		"9:01 Uhr - 12:52 Uhr (3h51min), 0x umsteigen\n",
		rendered)
}

func TestUpstreamMessage(t *testing.T) {
	assert.Equal(t, "Zu viele Anfragen.",
		upstreamMessage(&bahn.UpstreamError{Text: "Zu viele Anfragen."}))
	assert.Equal(t, "Die Preissuche ist gerade nicht erreichbar. Bitte später nochmal versuchen.",
		upstreamMessage(bahn.ErrTokenUnavailable))
	assert.Equal(t, "Die Preissuche ist gerade nicht erreichbar. Bitte später nochmal versuchen.",
		upstreamMessage(errors.New("dial tcp: timeout")))
}

func TestButtonPayloads(t *testing.T) {
	assert.Equal(t, "1$17", btn("x", 1, "17").Data)
	assert.Equal(t, "8$17$2", btn("x", 8, "17", "2").Data)
}
