package bot

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
	"gorm.io/gorm"

	"sparpreis-bot/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Connection{}, &model.Watch{}))
	return db
}

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	return &Bot{DB: openTestDB(t), log: zerolog.Nop()}
}

func TestFindConnectionExcludesPastDates(t *testing.T) {
	bot := newTestBot(t)
	user := model.User{ID: 42}
	require.NoError(t, bot.DB.Create(&user).Error)

	past := model.Connection{UserID: 42, Date: today().AddDate(0, 0, -1)}
	future := model.Connection{UserID: 42, Date: today().AddDate(0, 0, 14)}
	require.NoError(t, bot.DB.Create(&past).Error)
	require.NoError(t, bot.DB.Create(&future).Error)

	assert.Nil(t, bot.findConnection(&user, past.ID))

	found := bot.findConnection(&user, future.ID)
	require.NotNil(t, found)
	assert.Equal(t, future.ID, found.ID)
}

func TestFindConnectionScopedToOwner(t *testing.T) {
	bot := newTestBot(t)
	owner := model.User{ID: 42}
	other := model.User{ID: 43}
	require.NoError(t, bot.DB.Create(&owner).Error)
	require.NoError(t, bot.DB.Create(&other).Error)

	conn := model.Connection{UserID: other.ID, Date: today().AddDate(0, 0, 14)}
	require.NoError(t, bot.DB.Create(&conn).Error)

	assert.Nil(t, bot.findConnection(&owner, conn.ID))
}

func TestDeliverDropsBlockedUser(t *testing.T) {
	bot := newTestBot(t)
	require.NoError(t, bot.DB.Create(&model.User{ID: 42}).Error)
	require.NoError(t, bot.DB.Create(&model.Connection{UserID: 42, Date: today().AddDate(0, 0, 7)}).Error)

	require.NoError(t, bot.deliver(42, func() error { return telebot.ErrBlockedByUser }))

	var users []model.User
	bot.DB.Find(&users)
	assert.Empty(t, users)

	var conns []model.Connection
	bot.DB.Find(&conns)
	assert.Empty(t, conns)
}

func TestMigrateUserRewritesIdentity(t *testing.T) {
	bot := newTestBot(t)
	require.NoError(t, bot.DB.Create(&model.User{ID: 42}).Error)
	require.NoError(t, bot.DB.Create(&model.Connection{UserID: 42, Date: today().AddDate(0, 0, 7)}).Error)

	require.NoError(t, bot.migrateUser(42, 99))

	var user model.User
	require.NoError(t, bot.DB.First(&user, int64(99)).Error)

	var conns []model.Connection
	bot.DB.Where("user_id = ?", 99).Find(&conns)
	assert.Len(t, conns, 1)
}

func TestDeliverExhaustsRetries(t *testing.T) {
	bot := newTestBot(t)
	require.NoError(t, bot.DB.Create(&model.User{ID: 42}).Error)

	attempts := 0
	err := bot.deliver(42, func() error {
		attempts++
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, attempts)

	// Transport trouble never drops the subscriber.
	var user model.User
	assert.NoError(t, bot.DB.First(&user, int64(42)).Error)
}

func TestDeliverRecoversAfterTransientFailure(t *testing.T) {
	bot := newTestBot(t)

	attempts := 0
	err := bot.deliver(42, func() error {
		attempts++
		if attempts == 1 {
			return errors.New("read: connection timed out")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDeliverGivesUpOnAPIError(t *testing.T) {
	bot := newTestBot(t)

	apiErr := telebot.NewError(400, "Bad Request: message is too long")
	attempts := 0
	err := bot.deliver(42, func() error {
		attempts++
		return apiErr
	})
	assert.ErrorIs(t, err, apiErr)
	assert.Equal(t, 1, attempts)
}
