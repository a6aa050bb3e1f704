package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airylvat/quizpoll-bot/api"
	"github.com/airylvat/quizpoll-bot/bot"
	"github.com/airylvat/quizpoll-bot/db"
	"github.com/airylvat/quizpoll-bot/logging"
	"github.com/airylvat/quizpoll-bot/quiz"
)

func main() {
	cfg, err := bot.ReadConfig()
	if err != nil {
		logging.Log.Fatalf("Failed to read config: %v", err)
	}
	logging.BootstrapLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.Storage)
	if err != nil {
		logging.Log.Fatalf("Failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer store.Close()

	discord, err := bot.NewBot(cfg)
	if err != nil {
		logging.Log.Fatalf("Failed to create bot: %v", err)
	}

	service := quiz.NewService(quiz.Config{
		PollChat:         cfg.QuizChannelID,
		Prefix:           cfg.Prefix,
		Policy:           cfg.VotePolicy,
		DraftIdleTimeout: cfg.DraftIdleTimeout,
		Limits:           bot.PollLimits,
	}, discord, store)
	if err := service.Start(ctx); err != nil {
		logging.Log.Fatalf("Failed to load quiz state: %v", err)
	}
	discord.Attach(service)

	if err := discord.Start(); err != nil {
		logging.Log.Fatalf("Failed to connect to Discord: %v", err)
	}
	defer discord.Close()

	var readAPI *api.Server
	if cfg.HTTPAddr != "" {
		readAPI = api.NewServer(cfg.HTTPAddr, store)
		readAPI.Start()
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Log.Errorf("Event loop stopped: %v", err)
	}
	logging.Log.Info("Shutting down")

	if readAPI != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := readAPI.Shutdown(shutdownCtx); err != nil {
			logging.Log.Errorf("Read API shutdown: %v", err)
		}
	}
}
