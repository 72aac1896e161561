package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const notificationTimeout = 30 * time.Second

// Dispatcher sends notifications in the background. Failures are logged and
// never reach the caller, so an incident write is never undone by a broken
// mail or chat integration.
type Dispatcher struct {
	Notifier Notifier
	Email    EmailSender

	wg sync.WaitGroup
}

func NewDispatcher(notifier Notifier, email EmailSender) *Dispatcher {
	return &Dispatcher{Notifier: notifier, Email: email}
}

func (d *Dispatcher) run(ctx context.Context, channel, target string, send func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("notification panic recovered", "channel", channel, "target", target, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			err = newError(ErrNotification, err, "%s to %s", channel, target)
			slog.Warn("notification failed", "channel", channel, "target", target, "error", err)
			return
		}
		slog.Debug("notification sent", "channel", channel, "target", target)
	}()
}

// NotifyTeam posts message to the team's chat destination.
func (d *Dispatcher) NotifyTeam(ctx context.Context, teamID, message string) {
	if d == nil || d.Notifier == nil {
		return
	}
	d.run(ctx, "slack", teamID, func(ctx context.Context) error {
		return d.Notifier.Notify(ctx, teamID, message)
	})
}

// SendEmail mails msg to address.
func (d *Dispatcher) SendEmail(ctx context.Context, address string, msg EmailMessage) {
	if d == nil || d.Email == nil || address == "" {
		return
	}
	d.run(ctx, "email", address, func(ctx context.Context) error {
		return d.Email.Send(ctx, address, msg)
	})
}

// Wait blocks until every notification started so far has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
