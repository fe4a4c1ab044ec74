// Package mail sends outbound email over SMTP. The only message the portal
// sends is the verification-code email, dispatched fire-and-forget from the
// verification flow: a delivery failure is logged, never surfaced to the
// caller, so response shape and latency stay uniform.
package mail

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer sends portal email. Implemented by SMTPMailer in production and by
// fakes in tests.
type Mailer interface {
	SendVerificationCode(email, code, hubName string) error
}

// SMTPMailer sends email through a configured SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer creates a Mailer backed by the given SMTP relay.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// SendVerificationCode emails a 6-digit access code for a hub.
func (m *SMTPMailer) SendVerificationCode(email, code, hubName string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", fmt.Sprintf("Your access code for %s", hubName))

	body := fmt.Sprintf(`
		<h3>Your access code</h3>
		<p>Use the following code to access <strong>%s</strong>:</p>
		<p style="font-size:24px;letter-spacing:4px"><strong>%s</strong></p>
		<p>The code expires in 10 minutes. If you did not request it, you can ignore this email.</p>
	`, hubName, code)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send verification code email: %w", err)
	}
	return nil
}
