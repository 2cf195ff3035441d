package monitor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sparpreis-bot/bahn"
	"sparpreis-bot/model"
)

// Reference prices and the duration ceiling for the count comparison.
var (
	cheapPrice  = decimal.RequireFromString("29.90")
	secondPrice = decimal.RequireFromString("47.90")
)

const maxTripHours = 9

// Reference date slots, in the same fixed order as the snapshot arrays.
var slotLabels = [5]string{
	"Gewünschter Tag",
	"Vorheriger Tag",
	"Nächster Tag",
	"Vorherige Woche",
	"Nächste Woche",
}

var priceLabels = [2]string{"29,90€", "47,90€"}

// FareSource yields the raw result for one route and date.
type FareSource interface {
	Search(origin, dest string, date time.Time) (*bahn.RawResult, error)
}

// Detector walks all watches, recomputes the offer counts at the two
// reference prices for the five reference dates and notifies the owner
// about every count that moved since the last cycle.
type Detector struct {
	db       *gorm.DB
	source   FareSource
	notifier *Notifier
	log      zerolog.Logger
}

func NewDetector(db *gorm.DB, source FareSource, notifier *Notifier, log zerolog.Logger) *Detector {
	return &Detector{db: db, source: source, notifier: notifier, log: log}
}

// Run performs one monitoring cycle. Watches and date slots are
// independent units of work; a failure aborts only the affected slot.
func (d *Detector) Run() {
	today := time.Now().Truncate(24 * time.Hour)

	var watches []model.Watch
	if err := d.db.Where("date >= ?", today).Find(&watches).Error; err != nil {
		d.log.Error().Err(err).Msg("load watches")
		return
	}

	for i := range watches {
		d.checkWatch(&watches[i])
	}
}

func (d *Detector) checkWatch(w *model.Watch) {
	dates := [5]time.Time{
		w.Date,
		w.Date.AddDate(0, 0, -1),
		w.Date.AddDate(0, 0, 1),
		w.Date.AddDate(0, 0, -7),
		w.Date.AddDate(0, 0, 7),
	}

	cheapest, err := decodeCounts(w.Cheapest)
	if err != nil {
		d.log.Error().Err(err).Int64("watch", w.ID).Msg("decode cheapest counts")
		return
	}
	secondCheapest, err := decodeCounts(w.SecondCheapest)
	if err != nil {
		d.log.Error().Err(err).Int64("watch", w.ID).Msg("decode second cheapest counts")
		return
	}

	var changes strings.Builder
	for i, date := range dates {
		raw, err := d.source.Search(w.Origin, w.Dest, date)
		if err != nil {
			d.log.Warn().Err(err).Int64("watch", w.ID).Str("date", date.Format("02.01.06")).Msg("slot skipped")
			continue
		}
		offers, err := bahn.ExtractOffers(raw)
		if err != nil {
			d.log.Warn().Err(err).Int64("watch", w.ID).Str("date", date.Format("02.01.06")).Msg("slot skipped")
			continue
		}

		cheap := bahn.CountAtPrice(offers, cheapPrice, maxTripHours)
		second := bahn.CountAtPrice(offers, secondPrice, maxTripHours)

		// Every divergence is committed on its own so partial
		// progress survives a crash mid-cycle.
		if cheap != cheapest[i] {
			fmt.Fprintf(&changes, "%s %s Angebote verändert von %d auf %d\n",
				slotLabels[i], priceLabels[0], cheapest[i], cheap)
			cheapest[i] = cheap
			if err := d.saveCounts(w, "cheapest", cheapest); err != nil {
				d.log.Error().Err(err).Int64("watch", w.ID).Msg("persist cheapest counts")
			}
		}
		if second != secondCheapest[i] {
			fmt.Fprintf(&changes, "%s %s Angebote verändert von %d auf %d\n",
				slotLabels[i], priceLabels[1], secondCheapest[i], second)
			secondCheapest[i] = second
			if err := d.saveCounts(w, "second_cheapest", secondCheapest); err != nil {
				d.log.Error().Err(err).Int64("watch", w.ID).Msg("persist second cheapest counts")
			}
		}
	}

	if changes.Len() == 0 || w.ChatID == 0 {
		return
	}

	message := fmt.Sprintf("Änderungen auf der Verbindung von %s nach %s am %s erkannt: \n%s",
		w.OriginName, w.DestName, formatDateGerman(w.Date), changes.String())
	if err := d.notifier.Send(w, message); err != nil {
		d.log.Error().Err(err).Int64("watch", w.ID).Msg("notify")
	}
}

func (d *Detector) saveCounts(w *model.Watch, column string, counts []int) error {
	encoded, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return d.db.Model(w).Update(column, string(encoded)).Error
}

var germanWeekdays = [7]string{"So", "Mo", "Di", "Mi", "Do", "Fr", "Sa"}

// formatDateGerman renders a date as "Mi, 24.12.25". time.Format has no
// locale support, so the weekday is mapped by hand.
func formatDateGerman(t time.Time) string {
	return germanWeekdays[t.Weekday()] + t.Format(", 02.01.06")
}

func decodeCounts(s string) ([]int, error) {
	var counts []int
	if err := json.Unmarshal([]byte(s), &counts); err != nil {
		return nil, err
	}
	if len(counts) != len(slotLabels) {
		return nil, fmt.Errorf("expected %d slot counts, got %d", len(slotLabels), len(counts))
	}
	return counts, nil
}
