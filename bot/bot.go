package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/telebot.v3"
	"gorm.io/gorm"

	"sparpreis-bot/bahn"
	"sparpreis-bot/model"
)

type Bot struct {
	B      *telebot.Bot
	DB     *gorm.DB
	Client *bahn.Client

	log     zerolog.Logger
	backoff time.Duration
}

const maxDeliverAttempts = 3

func New(token string, db *gorm.DB, client *bahn.Client, log zerolog.Logger) (*Bot, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			log.Error().Err(err).Msg("update handler")
		},
	}

	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{B: b, DB: db, Client: client, log: log, backoff: 5 * time.Second}
	bot.registerHandlers()
	return bot, nil
}

func (bot *Bot) Start() {
	bot.B.Start()
}

func (bot *Bot) registerHandlers() {
	bot.B.Handle("/start", bot.handleStart)
	bot.B.Handle(telebot.OnCallback, bot.handleCallback)
	bot.B.Handle(telebot.OnText, bot.handleText)
}

// checkUser loads or creates the user behind an update and bumps the
// interaction counter. The second return reports a first contact.
func (bot *Bot) checkUser(c telebot.Context) (*model.User, bool) {
	chat := c.Chat()

	var user model.User
	err := bot.DB.First(&user, chat.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = model.User{
			ID:        chat.ID,
			FirstName: chat.FirstName,
			LastName:  chat.LastName,
			Username:  chat.Username,
			Title:     chat.Title,
		}
		bot.DB.Create(&user)
		c.Send("Mit diesem Bot kannst du die Preisentwicklung von DB Sparpreisen überwachen. Richte gleich eine Verbindung ein.")
		return &user, true
	}

	user.Counter++
	bot.DB.Model(&user).Update("counter", user.Counter)
	return &user, false
}

func (bot *Bot) setPending(user *model.User, action int, connID int64) {
	user.PendingAction = action
	user.PendingConnID = connID
	bot.DB.Model(user).Updates(map[string]interface{}{
		"pending_action":  action,
		"pending_conn_id": connID,
	})
}

func (bot *Bot) clearPending(user *model.User) {
	bot.setPending(user, model.ActionHome, 0)
}

// reply edits the triggering inline message in place when the update is a
// button press, otherwise sends a new message.
func (bot *Bot) reply(c telebot.Context, text string, markup *telebot.ReplyMarkup) error {
	opts := []interface{}{telebot.ModeMarkdown, telebot.NoPreview}
	if markup != nil {
		opts = append([]interface{}{markup}, opts...)
	}
	return bot.deliver(c.Chat().ID, func() error {
		if c.Callback() != nil {
			return c.Edit(text, opts...)
		}
		return c.Send(text, opts...)
	})
}

// deliver runs one send or edit with bounded retry. A permanently
// unreachable chat drops the subscriber, a migrated chat rewrites the
// stored identity; both count as handled.
func (bot *Bot) deliver(chatID int64, send func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxDeliverAttempts; attempt++ {
		err := send()
		if err == nil {
			return nil
		}

		var migrated telebot.GroupError
		if errors.As(err, &migrated) {
			return bot.migrateUser(chatID, migrated.MigratedTo)
		}
		if errors.Is(err, telebot.ErrBlockedByUser) ||
			errors.Is(err, telebot.ErrUserIsDeactivated) ||
			errors.Is(err, telebot.ErrChatNotFound) {
			return bot.dropUser(chatID)
		}

		var flood telebot.FloodError
		if errors.As(err, &flood) {
			time.Sleep(time.Duration(flood.RetryAfter) * time.Second)
			lastErr = err
			continue
		}

		var apiErr *telebot.Error
		if errors.As(err, &apiErr) {
			return err
		}

		lastErr = err
		time.Sleep(time.Duration(attempt) * bot.backoff)
	}
	return fmt.Errorf("delivery to chat %d failed after %d attempts: %w", chatID, maxDeliverAttempts, lastErr)
}

// dropUser removes a subscriber whose chat reported permanently
// unreachable, together with the routes they configured.
func (bot *Bot) dropUser(chatID int64) error {
	bot.log.Info().Int64("chat", chatID).Msg("chat unreachable, dropping user")
	if err := bot.DB.Where("user_id = ?", chatID).Delete(&model.Connection{}).Error; err != nil {
		return err
	}
	return bot.DB.Delete(&model.User{}, chatID).Error
}

// migrateUser follows a group chat to its new identifier.
func (bot *Bot) migrateUser(oldID, newID int64) error {
	bot.log.Info().Int64("from", oldID).Int64("to", newID).Msg("chat migrated")
	if err := bot.DB.Model(&model.Connection{}).Where("user_id = ?", oldID).Update("user_id", newID).Error; err != nil {
		return err
	}
	return bot.DB.Model(&model.User{}).Where("id = ?", oldID).Update("id", newID).Error
}

// findConnection looks a connection up by owner and id. Past-dated rows
// are treated as missing.
func (bot *Bot) findConnection(user *model.User, id int64) *model.Connection {
	var conn model.Connection
	err := bot.DB.Where("user_id = ? AND id = ? AND date >= ?", user.ID, id, today()).First(&conn).Error
	if err != nil {
		return nil
	}
	return &conn
}

func (bot *Bot) replyNotFound(c telebot.Context) error {
	markup := inlineRows(row(btnHome()))
	return bot.reply(c, "Diese Verbindung kann nicht gefunden werden. Vielleicht liegt sie in der Vergangenheit.", markup)
}

func (bot *Bot) handleStart(c telebot.Context) error {
	user, _ := bot.checkUser(c)
	bot.clearPending(user)
	return bot.showHome(c, user)
}

// handleText feeds free text into whichever edit step is waiting for it.
func (bot *Bot) handleText(c telebot.Context) error {
	user, first := bot.checkUser(c)
	if first {
		return bot.showHome(c, user)
	}

	switch user.PendingAction {
	case model.ActionSetOrigin:
		return bot.applyOrigin(c, user)
	case model.ActionSetDest:
		return bot.applyDest(c, user)
	case model.ActionSetDate:
		return bot.applyDate(c, user)
	case model.ActionSetPrice:
		return bot.applyPrice(c, user)
	case model.ActionSetDuration:
		return bot.applyDuration(c, user)
	case model.ActionSetChanges:
		return bot.applyChanges(c, user)
	default:
		return bot.showHome(c, user)
	}
}

// handleCallback dispatches button presses. Payloads follow the
// "action$argument..." convention.
func (bot *Bot) handleCallback(c telebot.Context) error {
	defer c.Respond()

	user, _ := bot.checkUser(c)
	args := strings.Split(strings.TrimSpace(c.Callback().Data), "$")

	action, err := strconv.Atoi(args[0])
	if err != nil || len(args) < 2 {
		return bot.showHome(c, user)
	}

	switch action {
	case model.ActionShow:
		return bot.showConnection(c, user, args)
	case model.ActionSetOrigin:
		return bot.promptField(c, user, args, model.ActionSetOrigin, "Bitte gib einen Startbahnhof ein:")
	case model.ActionSetDest:
		return bot.promptField(c, user, args, model.ActionSetDest, "Bitte gib einen Zielbahnhof ein:")
	case model.ActionSetDate:
		return bot.promptField(c, user, args, model.ActionSetDate, "Bitte gib ein neues Datum im Format TT.MM.JJJJ ein:")
	case model.ActionSetPrice:
		return bot.promptField(c, user, args, model.ActionSetPrice, "Bitte gib einen neuen Maximalpreis an.")
	case model.ActionSetDuration:
		return bot.promptField(c, user, args, model.ActionSetDuration, "Bitte gib eine neue Maximaldauer in Minuten an.")
	case model.ActionSetChanges:
		return bot.promptField(c, user, args, model.ActionSetChanges, "Bitte gib eine neue Maximalanzahl an Umstiegen an.")
	case model.ActionSetNotify:
		return bot.setNotifications(c, user, args)
	case model.ActionQuery:
		return bot.queryConnection(c, user, args)
	case model.ActionDelete:
		return bot.deleteConnection(c, user, args)
	default:
		return bot.showHome(c, user)
	}
}

func (bot *Bot) promptField(c telebot.Context, user *model.User, args []string, action int, prompt string) error {
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return bot.showHome(c, user)
	}
	bot.setPending(user, action, id)
	return bot.reply(c, prompt, nil)
}

func today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
