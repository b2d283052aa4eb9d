// cmd/bot/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"expense-tracker/internal/app"
	"expense-tracker/internal/bot"
	"expense-tracker/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if cfg.TelegramBotToken == "" {
		logger.Error("TELEGRAM_BOT_TOKEN not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Error("Failed to initialize Telegram bot", "error", err)
		os.Exit(1)
	}
	logger.Info("Bot started", "username", api.Self.UserName, "backend", a.Store.Name())

	b := bot.New(a.Auth, a.Expenses, a.Budgets)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			logger.Info("Bot stopped")
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			chatID := update.Message.Chat.ID
			// never log message text: /login carries a password
			logger.Debug("Received message", "chat_id", chatID)

			reply := b.Handle(ctx, chatID, update.Message.Text)
			if _, err := api.Send(tgbotapi.NewMessage(chatID, reply)); err != nil {
				logger.Error("Failed to send reply", "chat_id", chatID, "error", err)
			}
		}
	}
}
