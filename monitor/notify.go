package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/telebot.v3"
	"gorm.io/gorm"

	"sparpreis-bot/model"
)

const maxSendAttempts = 3

// Sender is the delivery half of the bot API.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Notifier delivers change messages to watch owners. Unreachable and
// migrated chats are fixed up in the store rather than surfaced as
// errors; only retry exhaustion and unexpected API failures bubble up.
type Notifier struct {
	api     Sender
	db      *gorm.DB
	log     zerolog.Logger
	backoff time.Duration
}

func NewNotifier(api Sender, db *gorm.DB, log zerolog.Logger) *Notifier {
	return &Notifier{api: api, db: db, log: log, backoff: 5 * time.Second}
}

// Send attempts delivery with bounded retry and linear backoff on
// transient failures.
func (n *Notifier) Send(w *model.Watch, text string) error {
	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		_, err := n.api.Send(&telebot.User{ID: w.ChatID}, text)
		if err == nil {
			return nil
		}

		var migrated telebot.GroupError
		if errors.As(err, &migrated) {
			return n.migrateChat(w, migrated.MigratedTo)
		}
		if errors.Is(err, telebot.ErrBlockedByUser) ||
			errors.Is(err, telebot.ErrUserIsDeactivated) ||
			errors.Is(err, telebot.ErrChatNotFound) {
			return n.detachWatch(w)
		}

		var flood telebot.FloodError
		if errors.As(err, &flood) {
			time.Sleep(time.Duration(flood.RetryAfter) * time.Second)
			lastErr = err
			continue
		}

		var apiErr *telebot.Error
		if errors.As(err, &apiErr) {
			// Non-transient API failure, retrying won't help.
			return err
		}

		// Transport failure
		lastErr = err
		time.Sleep(time.Duration(attempt) * n.backoff)
	}
	return fmt.Errorf("delivery to chat %d failed after %d attempts: %w", w.ChatID, maxSendAttempts, lastErr)
}

// detachWatch zeroes the owner so the watch keeps its snapshots but is
// never notified again. Subscriber rows belong to the interactive path
// and are not touched here.
func (n *Notifier) detachWatch(w *model.Watch) error {
	n.log.Info().Int64("watch", w.ID).Int64("chat", w.ChatID).Msg("chat unreachable, detaching watch")
	w.ChatID = 0
	return n.db.Model(w).Update("chat_id", 0).Error
}

// migrateChat rewrites the stored chat after it moved to a new
// identifier. The pending message is considered handled.
func (n *Notifier) migrateChat(w *model.Watch, newID int64) error {
	n.log.Info().Int64("watch", w.ID).Int64("from", w.ChatID).Int64("to", newID).Msg("chat migrated")
	w.ChatID = newID
	return n.db.Model(w).Update("chat_id", newID).Error
}
