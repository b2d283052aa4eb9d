// Package service holds the application logic behind the HTTP API, the bot and the CLI.
// Services take storage contracts, never concrete backends.
package service

import (
	"time"

	"expense-tracker/internal/domain"
)

// Clock decides what "today" and "this month" mean for a deployment.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

func SystemClock(loc *time.Location) Clock {
	return Clock{Now: time.Now, Location: loc}
}

func (c Clock) now() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

// Today is the current calendar date in the clock's location.
func (c Clock) Today() time.Time {
	return domain.DateOf(c.now())
}

func (c Clock) CurrentMonth() (int, time.Month) {
	y, m, _ := c.now().Date()
	return y, m
}

// invalid reports a single-field failure with the field message as the headline.
func invalid(field, message string) error {
	return &domain.ValidationError{
		Message: message,
		Fields:  []domain.FieldError{{Field: field, Message: message}},
	}
}
