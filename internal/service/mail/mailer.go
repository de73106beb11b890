package mail

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/bookverse/identity/internal/logger"
)

// Mailer is the outgoing notification boundary. Implementations must
// not be relied on for anything but delivery: callers decide whether a
// failure is fatal (password reset) or merely logged (welcome mail)
type Mailer interface {
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

// SMTPMailer delivers mail over SMTP
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTP(host string, port int, username string, password string, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send delivers the message or gives up when the context ends.
// gomail knows nothing about contexts, so delivery runs on its own
// goroutine and an expired context abandons it mid-flight
func (m *SMTPMailer) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("error while sending mail. Err: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mail not sent. Err: %w", ctx.Err())
	}
}

// LogMailer writes mail to the log instead of delivering it.
// Used in development and in tests
type LogMailer struct {
	Logger logger.Logger
}

func (m LogMailer) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	m.Logger.Info("mail sent", "to", to, "subject", subject)
	return nil
}
