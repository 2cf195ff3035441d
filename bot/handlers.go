package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/telebot.v3"

	"sparpreis-bot/bahn"
	"sparpreis-bot/model"
)

var notificationLabels = [3]string{
	"Keine Benachrichtigungen",
	"Wöchentliche Benachrichtigungen",
	"Tägliche Benachrichtigungen",
}

var (
	nonPriceChars = regexp.MustCompile(`[^0-9.,]+`)
	nonDigits     = regexp.MustCompile(`\D+`)
)

// Inline button helpers; the data payload is the routing contract.

func btn(text string, action int, args ...string) telebot.InlineButton {
	data := strconv.Itoa(action)
	for _, a := range args {
		data += "$" + a
	}
	return telebot.InlineButton{Text: text, Data: data}
}

func btnHome() telebot.InlineButton {
	return btn("🏠 Home", model.ActionHome)
}

func btnConn(id int64) telebot.InlineButton {
	return btn("🚄 Verbindung", model.ActionShow, strconv.FormatInt(id, 10))
}

func row(buttons ...telebot.InlineButton) []telebot.InlineButton {
	return buttons
}

func inlineRows(rows ...[]telebot.InlineButton) *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{InlineKeyboard: rows}
}

func connArg(conn *model.Connection) string {
	return strconv.FormatInt(conn.ID, 10)
}

func (bot *Bot) showHome(c telebot.Context, user *model.User) error {
	var conns []model.Connection
	bot.DB.Where("user_id = ? AND date >= ?", user.ID, today()).Find(&conns)

	if len(conns) == 0 {
		markup := inlineRows(row(btn("➕ Neue Benachrichtigung erstellen", model.ActionSetOrigin, "-1")))
		return bot.reply(c, "Noch keine Benachrichtigungen erstellt. Leg gleich los:", markup)
	}

	rows := make([][]telebot.InlineButton, 0, len(conns)+1)
	for _, conn := range conns {
		rows = append(rows, row(btn("🚄 "+conn.OriginName+" - "+conn.DestName, model.ActionShow, connArg(&conn))))
	}
	rows = append(rows, row(btn("➕ Neue Verbindung erstellen", model.ActionSetOrigin, "-1")))
	return bot.reply(c, "Folgende Verbindungen werden überwacht:\n", inlineRows(rows...))
}

func (bot *Bot) showConnection(c telebot.Context, user *model.User, args []string) error {
	id, _ := strconv.ParseInt(args[1], 10, 64)
	conn := bot.findConnection(user, id)
	if conn == nil {
		return bot.replyNotFound(c)
	}

	message := "*Verbindung: *" + conn.OriginName + " - " + conn.DestName +
		"\n*Datum: *" + conn.Date.Format("02.01.2006") +
		"\n*Maximalpreis: *" + formatPrice(conn.MaxPrice) +
		"\n*Maximaldauer: *" + fmt.Sprintf("%d:%02dh", conn.MaxDuration/60, conn.MaxDuration%60) +
		"\n*Maximale Umstiege:* " + strconv.Itoa(conn.MaxChanges) +
		"\n*Benachrichtigungen:* " + notificationLabels[conn.Notifications]

	arg := connArg(conn)
	markup := inlineRows(
		row(btn("🚉 Start ändern", model.ActionSetOrigin, arg), btn("⛱️ Ziel ändern", model.ActionSetDest, arg)),
		row(btn("🗓 Datum ändern", model.ActionSetDate, arg), btn("💶 Maximalpreis ändern", model.ActionSetPrice, arg)),
		row(btn("🕐 Maximaldauer ändern", model.ActionSetDuration, arg), btn("🚏 Maximale Umstiege ändern", model.ActionSetChanges, arg)),
		row(btn("📯 Benachrichtigungen ändern", model.ActionSetNotify, arg), btn("💣 Löschen", model.ActionDelete, arg)),
		row(btnHome(), btn("🎇 Jetzt abrufen", model.ActionQuery, arg)),
	)
	return bot.reply(c, message, markup)
}

// applyOrigin consumes the station name typed after a start prompt.
// With PendingConnID -1 it creates the connection and chains straight
// into the destination step.
func (bot *Bot) applyOrigin(c telebot.Context, user *model.User) error {
	station, err := bot.Client.FindStation(c.Text())
	if err != nil {
		return bot.reply(c, "Das ist kein Bahnhof. Bitte nochmal versuchen.", nil)
	}

	if user.PendingConnID == -1 {
		conn := model.Connection{
			UserID:        user.ID,
			Origin:        station.ID,
			OriginName:    station.Name,
			Dest:          station.ID,
			DestName:      station.Name,
			Date:          today(),
			MaxPrice:      decimal.NewFromInt(200),
			MaxDuration:   3000,
			MaxChanges:    10,
			Notifications: model.NotifyDaily,
		}
		bot.DB.Create(&conn)
		bot.setPending(user, model.ActionSetDest, conn.ID)
		return bot.reply(c, "Wo soll es von "+station.Name+" hingehen?", nil)
	}

	conn := bot.findConnection(user, user.PendingConnID)
	if conn == nil {
		bot.clearPending(user)
		return bot.replyNotFound(c)
	}
	conn.Origin = station.ID
	conn.OriginName = station.Name
	bot.DB.Save(conn)
	bot.clearPending(user)

	markup := inlineRows(row(btnConn(conn.ID), btnHome(), btn("⛱️ Ziel ändern", model.ActionSetDest, connArg(conn))))
	return bot.reply(c, "Start erfolgreich geändert.", markup)
}

func (bot *Bot) applyDest(c telebot.Context, user *model.User) error {
	station, err := bot.Client.FindStation(c.Text())
	if err != nil {
		return bot.reply(c, "Das ist kein Bahnhof. Bitte nochmal versuchen.", nil)
	}

	conn := bot.findConnection(user, user.PendingConnID)
	if conn == nil {
		bot.clearPending(user)
		return bot.replyNotFound(c)
	}
	conn.Dest = station.ID
	conn.DestName = station.Name
	bot.DB.Save(conn)
	bot.clearPending(user)

	markup := inlineRows(row(btnConn(conn.ID), btnHome(), btn("🗓 Datum ändern", model.ActionSetDate, connArg(conn))))
	return bot.reply(c, "Ziel erfolgreich geändert.", markup)
}

func (bot *Bot) applyDate(c telebot.Context, user *model.User) error {
	date, err := time.Parse("02.01.2006", strings.TrimSpace(c.Text()))
	if err != nil || date.Before(today()) {
		return bot.reply(c, "Das ist kein gültiges Datum oder liegt schon in der Vergangenheit. Das Format muss TT.MM.JJJJ sein.", nil)
	}

	conn := bot.findConnection(user, user.PendingConnID)
	if conn == nil {
		bot.clearPending(user)
		return bot.replyNotFound(c)
	}
	conn.Date = date
	bot.DB.Save(conn)
	bot.clearPending(user)

	markup := inlineRows(row(btnConn(conn.ID), btnHome(), btn("💶 Max. Preis ändern", model.ActionSetPrice, connArg(conn))))
	return bot.reply(c, "Datum erfolgreich geändert.", markup)
}

func (bot *Bot) applyPrice(c telebot.Context, user *model.User) error {
	raw := nonPriceChars.ReplaceAllString(c.Text(), "")
	raw = strings.ReplaceAll(raw, ",", ".")
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return bot.reply(c, "Diese Eingabe konnte nicht in eine Zahl umgewandelt werden.", nil)
	}
	price = price.Round(2)

	conn := bot.findConnection(user, user.PendingConnID)
	if conn == nil {
		bot.clearPending(user)
		return bot.replyNotFound(c)
	}
	conn.MaxPrice = price
	bot.DB.Save(conn)
	bot.clearPending(user)

	markup := inlineRows(row(btnConn(conn.ID), btnHome(), btn("🕐 Max. Fahrzeit ändern", model.ActionSetDuration, connArg(conn))))
	return bot.reply(c, "Maximalpreis erfolgreich geändert.", markup)
}

func (bot *Bot) applyDuration(c telebot.Context, user *model.User) error {
	duration, err := strconv.Atoi(nonDigits.ReplaceAllString(c.Text(), ""))
	if err != nil {
		return bot.reply(c, "Diese Eingabe konnte nicht in eine Zahl umgewandelt werden.", nil)
	}

	conn := bot.findConnection(user, user.PendingConnID)
	if conn == nil {
		bot.clearPending(user)
		return bot.replyNotFound(c)
	}
	conn.MaxDuration = duration
	bot.DB.Save(conn)
	bot.clearPending(user)

	markup := inlineRows(row(btnConn(conn.ID), btnHome(), btn("🚏 Max. Umstiege ändern", model.ActionSetChanges, connArg(conn))))
	return bot.reply(c, "Maximaldauer erfolgreich geändert.", markup)
}

func (bot *Bot) applyChanges(c telebot.Context, user *model.User) error {
	changes, err := strconv.Atoi(nonDigits.ReplaceAllString(c.Text(), ""))
	if err != nil {
		return bot.reply(c, "Diese Eingabe konnte nicht in eine Zahl umgewandelt werden.", nil)
	}

	conn := bot.findConnection(user, user.PendingConnID)
	if conn == nil {
		bot.clearPending(user)
		return bot.replyNotFound(c)
	}
	conn.MaxChanges = changes
	bot.DB.Save(conn)
	bot.clearPending(user)

	markup := inlineRows(row(btnConn(conn.ID), btnHome(), btn("📯 Ben. ändern", model.ActionSetNotify, connArg(conn))))
	return bot.reply(c, "Maximalumstiege erfolgreich geändert.", markup)
}

func (bot *Bot) setNotifications(c telebot.Context, user *model.User, args []string) error {
	if len(args) == 2 {
		markup := inlineRows(
			row(btn("Keine Benachrichtigung", model.ActionSetNotify, args[1], "0")),
			row(btn("Wöchentliche Benachrichtigung", model.ActionSetNotify, args[1], "1")),
			row(btn("Tägliche Benachrichtigung", model.ActionSetNotify, args[1], "2")),
		)
		return bot.reply(c, "Wie oft möchtest du über diese Verbindung benachrichtigt werden?", markup)
	}

	frequency, err := strconv.Atoi(args[2])
	if err != nil || frequency < model.NotifyNone || frequency > model.NotifyDaily {
		return bot.showHome(c, user)
	}

	id, _ := strconv.ParseInt(args[1], 10, 64)
	conn := bot.findConnection(user, id)
	if conn == nil {
		return bot.replyNotFound(c)
	}
	conn.Notifications = frequency
	bot.DB.Save(conn)

	markup := inlineRows(row(btnConn(conn.ID), btnHome()))
	return bot.reply(c, "Benachrichtigungen erfolgreich geändert.", markup)
}

func (bot *Bot) queryConnection(c telebot.Context, user *model.User, args []string) error {
	id, _ := strconv.ParseInt(args[1], 10, 64)
	conn := bot.findConnection(user, id)
	if conn == nil {
		return bot.replyNotFound(c)
	}

	message := fmt.Sprintf("Verbindungen von %s nach %s am %s:\n",
		conn.OriginName, conn.DestName, conn.Date.Format("02.01.2006"))

	raw, err := bot.Client.Search(conn.Origin, conn.Dest, conn.Date)
	switch {
	case err != nil:
		bot.log.Warn().Err(err).Int64("connection", conn.ID).Msg("fare query failed")
		message += upstreamMessage(err)
	default:
		offers, err := bahn.ExtractOffers(raw)
		if err != nil {
			message += upstreamMessage(err)
			break
		}
		groups := bahn.FilterOffers(offers, bahn.Constraint{
			MaxPrice:    conn.MaxPrice,
			MaxDuration: conn.MaxDuration,
			MaxChanges:  conn.MaxChanges,
		})
		if len(groups) == 0 {
			message = "Keine Verbindungen unter diesen Kriterien gefunden."
		} else {
			message += renderOfferGroups(groups)
		}
	}

	markup := inlineRows(row(btnConn(conn.ID), btnHome()))
	return bot.reply(c, message, markup)
}

func (bot *Bot) deleteConnection(c telebot.Context, user *model.User, args []string) error {
	if len(args) == 2 {
		markup := inlineRows(
			row(btn("💣 Wirklich löschen", model.ActionDelete, args[1], "1")),
			row(btn("🚄 Zurück", model.ActionShow, args[1])),
		)
		return bot.reply(c, "Willst du wirklich diese Verbindung löschen?", markup)
	}
	if args[2] != "1" {
		return bot.showHome(c, user)
	}

	id, _ := strconv.ParseInt(args[1], 10, 64)
	conn := bot.findConnection(user, id)
	if conn == nil {
		return bot.replyNotFound(c)
	}

	message := fmt.Sprintf("Die Verbindung von %s nach %s am %s wurde erfolgreich gelöscht.",
		conn.OriginName, conn.DestName, conn.Date.Format("02.01.2006"))
	bot.DB.Delete(conn)

	return bot.reply(c, message, inlineRows(row(btnHome())))
}
