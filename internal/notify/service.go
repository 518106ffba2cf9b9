package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

// EmailNotifier renders a Notification and hands one message per recipient
// to an EmailSender.
type EmailNotifier struct {
	sender EmailSender
	name   string
	logger *logging.Logger
}

// NewEmailNotifier wraps sender. name labels the provider in logs and metrics.
func NewEmailNotifier(name string, sender EmailSender, logger *logging.Logger) *EmailNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &EmailNotifier{sender: sender, name: name, logger: logger}
}

// NewStubNotifier logs notifications without delivering them.
func NewStubNotifier(logger *logging.Logger) *EmailNotifier {
	return NewEmailNotifier("stub", NewStubEmailSender(logger), logger)
}

// Name implements Notifier.
func (e *EmailNotifier) Name() string { return e.name }

// Notify sends to every recipient and joins the per-recipient failures.
func (e *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	if e.sender == nil {
		return fmt.Errorf("notify: %s sender not configured", e.name)
	}
	if len(n.Recipients) == 0 {
		return errors.New("notify: no recipients")
	}

	rendered, err := BuildEmail(n)
	if err != nil {
		return err
	}

	var errs []error
	for _, recipient := range n.Recipients {
		msg := rendered
		msg.To = recipient
		if err := e.sender.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		e.logger.Warn("notification partially delivered", "provider", e.name, "failed", len(errs), "recipients", len(n.Recipients))
	}
	return errors.Join(errs...)
}

var _ Notifier = (*EmailNotifier)(nil)
