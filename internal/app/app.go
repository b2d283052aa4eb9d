// Package app wires configuration, storage and services into what the commands run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/backend"
	"expense-tracker/internal/config"
	"expense-tracker/internal/notify"
	"expense-tracker/internal/service"
	"expense-tracker/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type App struct {
	Config   config.Config
	Store    storage.Store
	Tokens   *auth.TokenService
	Notifier notify.Notifier
	Clock    service.Clock

	Expenses *service.ExpenseService
	Budgets  *service.BudgetService
	Exports  *service.ExportService
	Auth     *service.AuthService
	Admin    *service.AdminService

	closers []func() error
}

// New opens the configured backend, runs startup maintenance and builds the services.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backend.ConfigFromAppConfig(cfg))
	if err != nil {
		return nil, err
	}
	return build(ctx, cfg, logger, res.Store, res.Cleanup)
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger, store storage.Store, cleanup func() error) (*App, error) {
	a := &App{
		Config: cfg,
		Store:  store,
		Tokens: auth.NewTokenService(cfg),
		Clock:  service.SystemClock(cfg.Location()),
	}
	if cleanup != nil {
		a.closers = append(a.closers, cleanup)
	}

	if cfg.MigrateLegacyCategories {
		if _, err := service.MigrateLegacyCategories(ctx, store); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Notifier = a.notifiers(logger)

	a.Expenses = service.NewExpenseService(store, a.Clock)
	a.Budgets = service.NewBudgetService(store, store, a.Clock)
	a.Exports = service.NewExportService(a.Expenses, store, store, a.Clock)
	a.Auth = service.NewAuthService(store, store, a.Tokens, a.Notifier, service.AuthConfig{
		RequireEmailVerification: cfg.RequireEmailVerification,
		PasswordResetEnabled:     cfg.PasswordResetEnabled,
	}, a.Clock)
	a.Admin = service.NewAdminService(store)
	return a, nil
}

// notifiers builds every configured channel. A channel that fails to start is
// logged and left out so registration keeps working.
func (a *App) notifiers(logger *slog.Logger) notify.Notifier {
	cfg := a.Config
	var out notify.Fanout

	if cfg.AMQPURL != "" {
		n, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.FrontendURL)
		if err != nil {
			logger.Error("AMQP notifier disabled", "error", err)
		} else {
			out = append(out, n)
			a.closers = append(a.closers, n.Close)
			logger.Info("AMQP notifier enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	if cfg.TelegramBotToken != "" && cfg.TelegramAdminChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			logger.Error("Telegram notifier disabled", "error", err)
		} else {
			out = append(out, notify.NewTelegramNotifier(bot, cfg.TelegramAdminChatID, cfg.FrontendURL))
			logger.Info("Telegram notifier enabled", "chat_id", cfg.TelegramAdminChatID)
		}
	}

	if len(out) == 0 {
		return notify.LogNotifier{FrontendURL: cfg.FrontendURL}
	}
	return out
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}
