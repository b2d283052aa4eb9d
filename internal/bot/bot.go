// Package bot turns Telegram chat commands into service calls.
// It knows nothing about the Telegram transport, so it can be tested with plain strings.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/service"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const listLimit = 10

const helpText = "💸 Expense Tracker\n\n" +
	"/login <email> <password> - link this chat to your account\n" +
	"/logout - unlink this chat\n" +
	"/add <amount> <category> <description> - record an expense for today\n" +
	"/list - your latest expenses\n" +
	"/budget - this month against your budget\n" +
	"/setbudget <amount> [threshold] - set the monthly budget\n" +
	"/summary - totals of recent months\n" +
	"/delete <id> - remove an expense\n\n" +
	"Categories: Food, Travelling, Entertainment, Shopping, Bills, Other"

type Bot struct {
	auth     *service.AuthService
	expenses *service.ExpenseService
	budgets  *service.BudgetService
	printer  *message.Printer

	mu       sync.Mutex
	sessions map[int64]string
}

func New(auth *service.AuthService, expenses *service.ExpenseService, budgets *service.BudgetService) *Bot {
	return &Bot{
		auth:     auth,
		expenses: expenses,
		budgets:  budgets,
		printer:  message.NewPrinter(language.English),
		sessions: make(map[int64]string),
	}
}

func (b *Bot) session(chatID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.sessions[chatID]
	return id, ok
}

func (b *Bot) setSession(chatID int64, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if userID == "" {
		delete(b.sessions, chatID)
		return
	}
	b.sessions[chatID] = userID
}

func (b *Bot) money(d decimal.Decimal) string {
	return b.printer.Sprintf("₹%.2f", d.InexactFloat64())
}

// Handle answers one chat message.
func (b *Bot) Handle(ctx context.Context, chatID int64, raw string) string {
	text := SanitizeInput(fixEncoding(raw))
	cmd, args, _ := strings.Cut(text, " ")
	// commands may arrive as /cmd@BotName in groups
	cmd, _, _ = strings.Cut(cmd, "@")

	switch cmd {
	case "/start", "/help":
		return helpText
	case "/login":
		return b.login(ctx, chatID, args)
	case "/logout":
		b.setSession(chatID, "")
		return "👋 Logged out"
	}

	userID, ok := b.session(chatID)
	if !ok {
		if strings.HasPrefix(cmd, "/") {
			return "🔒 Please /login <email> <password> first"
		}
		return "Unknown command. Send /help"
	}

	var (
		reply string
		err   error
	)
	switch cmd {
	case "/add":
		reply, err = b.add(ctx, userID, args)
	case "/list":
		reply, err = b.list(ctx, userID)
	case "/budget":
		reply, err = b.budget(ctx, userID)
	case "/setbudget":
		reply, err = b.setBudget(ctx, userID, args)
	case "/summary":
		reply, err = b.summary(ctx, userID)
	case "/delete":
		reply, err = b.delete(ctx, userID, args)
	default:
		return "Unknown command. Send /help"
	}
	if err != nil {
		return b.errorReply(ctx, chatID, err)
	}
	return reply
}

func (b *Bot) errorReply(ctx context.Context, chatID int64, err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		msgs := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			msgs = append(msgs, f.Message)
		}
		if len(msgs) == 0 {
			msgs = append(msgs, verr.Message)
		}
		return "❌ " + strings.Join(msgs, "\n❌ ")
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return "❌ " + de.Message
	}
	slog.ErrorContext(ctx, "Bot command failed", "chat_id", chatID, "error", err)
	return "❌ Something went wrong, please try again later"
}

func (b *Bot) login(ctx context.Context, chatID int64, args string) string {
	email, password, ok := strings.Cut(args, " ")
	if !ok || email == "" || password == "" {
		return "Usage: /login <email> <password>"
	}
	res, err := b.auth.Login(ctx, service.LoginInput{Email: email, Password: password})
	if err != nil {
		return b.errorReply(ctx, chatID, err)
	}
	b.setSession(chatID, res.User.ID)
	slog.InfoContext(ctx, "Chat linked", "chat_id", chatID, "user_id", res.User.ID)
	return "✅ Logged in as " + res.User.Name
}

func (b *Bot) add(ctx context.Context, userID, args string) (string, error) {
	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 3 {
		return "Usage: /add <amount> <category> <description>", nil
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(fields[0], ",", "."))
	if err != nil {
		return "❌ Amount must be a positive number", nil
	}
	e, err := b.expenses.Create(ctx, userID, service.ExpenseInput{
		Description: fields[2],
		Amount:      amount,
		Category:    canonicalCategory(fields[1]),
	})
	if err != nil {
		return "", err
	}
	return b.printer.Sprintf("✅ Saved %s for %s (%s)\nid: %s", b.money(e.Amount), e.Description, e.Category, e.ID), nil
}

// canonicalCategory matches category names case-insensitively.
func canonicalCategory(s string) string {
	for _, c := range domain.Categories() {
		if strings.EqualFold(s, string(c)) {
			return string(c)
		}
	}
	return s
}

func (b *Bot) list(ctx context.Context, userID string) (string, error) {
	items, err := b.expenses.List(ctx, userID, domain.ExpenseFilter{})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "📭 No expenses yet", nil
	}
	if len(items) > listLimit {
		items = items[:listLimit]
	}
	lines := []string{"🧾 Latest expenses"}
	for _, e := range items {
		lines = append(lines, b.printer.Sprintf("%s  %s  %s (%s)\nid: %s",
			e.Date.Format(domain.DateLayout), b.money(e.Amount), e.Description, e.Category, e.ID))
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Bot) budget(ctx context.Context, userID string) (string, error) {
	s, err := b.budgets.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if s.Budget == nil {
		return b.printer.Sprintf("📊 %s\nSpent: %s\nNo budget set. Use /setbudget <amount>", s.Month, b.money(s.TotalSpent)), nil
	}
	lines := []string{
		"📊 " + s.Month,
		"Budget: " + b.money(*s.Budget),
		"Spent: " + b.money(s.TotalSpent),
		"Remaining: " + b.money(s.Remaining),
		b.printer.Sprintf("Used: %s%%", s.PercentageUsed.StringFixed(2)),
	}
	switch {
	case s.IsExceeded:
		lines = append(lines, "🚨 Budget exceeded")
	case s.IsWarning:
		lines = append(lines, b.printer.Sprintf("⚠️ Over %d%% of your budget", s.WarningThreshold))
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Bot) setBudget(ctx context.Context, userID, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return "Usage: /setbudget <amount> [threshold]", nil
	}
	amount, err := decimal.NewFromString(fields[0])
	if err != nil {
		return "❌ Budget must be a number", nil
	}
	in := service.BudgetInput{MonthlyBudget: &amount}
	if len(fields) == 2 {
		threshold, err := strconv.Atoi(strings.TrimSuffix(fields[1], "%"))
		if err != nil {
			return "❌ Warning threshold must be between 0 and 100", nil
		}
		in.WarningThreshold = &threshold
	}
	saved, err := b.budgets.Set(ctx, userID, in)
	if err != nil {
		return "", err
	}
	return b.printer.Sprintf("✅ Budget set to %s, warning at %d%%", b.money(saved.MonthlyBudget), saved.WarningThreshold), nil
}

func (b *Bot) summary(ctx context.Context, userID string) (string, error) {
	months, err := b.expenses.MonthlySummary(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(months) == 0 {
		return "📭 No expenses yet", nil
	}
	if len(months) > 3 {
		months = months[:3]
	}
	var lines []string
	for _, m := range months {
		first, _ := domain.MonthRange(m.Year, time.Month(m.Month))
		lines = append(lines, b.printer.Sprintf("📅 %s: %s in %d expenses", first.Format("January 2006"), b.money(m.TotalAmount), m.TotalCount))
		for _, c := range m.ByCategory {
			lines = append(lines, b.printer.Sprintf("  • %s: %s", c.Category, b.money(c.Amount)))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Bot) delete(ctx context.Context, userID, args string) (string, error) {
	id := strings.TrimSpace(args)
	if id == "" {
		return "Usage: /delete <id>", nil
	}
	if err := b.expenses.Delete(ctx, userID, id); err != nil {
		return "", err
	}
	return "🗑 Expense deleted", nil
}
