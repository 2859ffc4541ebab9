// Package notify delivers operational alerts to configured recipients.
// Delivery is fire-and-forget: a failed notification is logged by the
// caller, never escalated into the operation that triggered it.
package notify

import "context"

// Notifier is the interface for sending a single notification.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Noop discards every notification. Used when alerting is disabled.
type Noop struct{}

// Send implements Notifier.
func (Noop) Send(context.Context, string, string, string) error {
	return nil
}
