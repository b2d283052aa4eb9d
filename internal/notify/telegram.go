package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier forwards verification links to an admin chat, which
// passes them on to the user by hand.
type TelegramNotifier struct {
	bot         Sender
	chatID      int64
	frontendURL string
}

func NewTelegramNotifier(bot Sender, chatID int64, frontendURL string) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID, frontendURL: frontendURL}
}

func (n *TelegramNotifier) SendVerificationEmail(ctx context.Context, email, token string) bool {
	text := fmt.Sprintf("New registration: %s\nVerification link: %s",
		email, VerificationLink(n.frontendURL, token))
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		slog.ErrorContext(ctx, "Failed to send verification link to admin chat", "email", email, "error", err)
		return false
	}
	return true
}
