// Package notify delivers email verification links through whatever channels are configured.
package notify

import (
	"context"
	"log/slog"
	"net/url"
)

// Notifier reports whether the verification link reached the user.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, token string) bool
}

// VerificationLink points the user at the frontend page that calls verify-email.
func VerificationLink(frontendURL, token string) string {
	return frontendURL + "/verify-email?token=" + url.QueryEscape(token)
}

// LogNotifier is used when no delivery channel is configured.
// It never delivers, so registration tells the user to contact support.
// The token itself is never logged.
type LogNotifier struct {
	FrontendURL string
	Logger      *slog.Logger
}

func (n LogNotifier) SendVerificationEmail(ctx context.Context, email, _ string) bool {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "Email delivery not configured, verification link not sent",
		"email", email,
		"link", n.FrontendURL+"/verify-email?token=[redacted]",
	)
	return false
}

// Fanout sends through every notifier and succeeds if any one of them did.
type Fanout []Notifier

func (f Fanout) SendVerificationEmail(ctx context.Context, email, token string) bool {
	delivered := false
	for _, n := range f {
		if n.SendVerificationEmail(ctx, email, token) {
			delivered = true
		}
	}
	return delivered
}
