package main

import (
	"encoding/json"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"sparpreis-bot/bahn"
	"sparpreis-bot/bot"
	"sparpreis-bot/model"
	"sparpreis-bot/monitor"
)

type Config struct {
	BotToken string `json:"bot_token"`
}

func main() {
	godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && level != zerolog.NoLevel {
		log = log.Level(level)
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		// Try reading from config.json
		file, err := os.Open("config.json")
		if err == nil {
			var config Config
			decoder := json.NewDecoder(file)
			if err := decoder.Decode(&config); err == nil {
				token = config.BotToken
			}
			file.Close()
		}
	}
	if token == "" {
		log.Fatal().Msg("BOT_TOKEN is not set and config.json has no bot_token")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "bahn.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	db.AutoMigrate(&model.User{}, &model.Connection{}, &model.Watch{})

	client := bahn.NewClient()

	b, err := bot.New(token, db, client, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create bot")
	}

	notifier := monitor.NewNotifier(b.B, db, log)
	detector := monitor.NewDetector(db, client, notifier, log)

	cronSpec := os.Getenv("MONITOR_CRON")
	if cronSpec == "" {
		cronSpec = "0 7 * * *"
	}

	c := cron.New()
	if _, err := c.AddFunc(cronSpec, detector.Run); err != nil {
		log.Fatal().Err(err).Str("spec", cronSpec).Msg("schedule monitor")
	}
	c.Start()

	log.Info().Msg("bot started")
	b.Start()
}
