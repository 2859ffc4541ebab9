package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPNotifier sends notifications as plain-text email through an SMTP
// relay.
type SMTPNotifier struct {
	host     string
	port     int
	from     string
	password string
}

// NewSMTP creates an SMTP notifier.
func NewSMTP(host string, port int, from, password string) *SMTPNotifier {
	return &SMTPNotifier{
		host:     host,
		port:     port,
		from:     from,
		password: password,
	}
}

// Send implements Notifier.
func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.from, recipient, subject, body)

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	auth := smtp.PlainAuth("", n.from, n.password, n.host)
	if err := smtp.SendMail(addr, auth, n.from, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient, err)
	}
	return nil
}

var _ Notifier = (*SMTPNotifier)(nil)
