package email

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"sentra-backend/internal/config"
)

// Mailer sends transactional email through SendGrid. When no API key is
// configured it logs the message instead, which keeps local development
// working without credentials.
type Mailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	baseURL   string
}

// NewMailer builds a Mailer from environment configuration.
func NewMailer() *Mailer {
	m := &Mailer{
		fromEmail: config.GetEnv("EMAIL_FROM", "no-reply@sentra.app"),
		fromName:  config.GetEnv("EMAIL_FROM_NAME", "Sentra"),
		baseURL:   config.GetEnv("FRONTEND_URL", "http://localhost:3000"),
	}
	if key := config.GetEnv("SENDGRID_API_KEY", ""); key != "" {
		m.client = sendgrid.NewSendClient(key)
	}
	return m
}

func (m *Mailer) send(toEmail, toName, subject, plain, html string) error {
	if m.client == nil {
		logrus.WithFields(logrus.Fields{
			"to":      toEmail,
			"subject": subject,
		}).Info("email delivery skipped (no SENDGRID_API_KEY), logging instead")
		logrus.Debug(plain)
		return nil
	}

	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plain, html)

	resp, err := m.client.Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// SendInvitation emails an organization invite link.
func (m *Mailer) SendInvitation(toEmail, orgName, inviterName, token string) error {
	acceptURL := fmt.Sprintf("%s/invitations/accept?token=%s", m.baseURL, token)
	subject := fmt.Sprintf("You've been invited to join %s", orgName)
	plain := fmt.Sprintf(
		"%s has invited you to join %s.\n\nAccept the invitation: %s\n\nThis invitation expires in 7 days.",
		inviterName, orgName, acceptURL,
	)
	html := fmt.Sprintf(
		"<p>%s has invited you to join <strong>%s</strong>.</p><p><a href=%q>Accept the invitation</a></p><p>This invitation expires in 7 days.</p>",
		inviterName, orgName, acceptURL,
	)
	return m.send(toEmail, "", subject, plain, html)
}

// SendWelcome emails a greeting to a freshly registered user.
func (m *Mailer) SendWelcome(toEmail, toName, orgName string) error {
	subject := fmt.Sprintf("Welcome to %s", orgName)
	plain := fmt.Sprintf(
		"Hi %s,\n\nYour account for %s is ready.\n\nSign in: %s",
		toName, orgName, m.baseURL,
	)
	html := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your account for <strong>%s</strong> is ready.</p><p><a href=%q>Sign in</a></p>",
		toName, orgName, m.baseURL,
	)
	return m.send(toEmail, toName, subject, plain, html)
}

// SendPasswordReset emails a password reset link.
func (m *Mailer) SendPasswordReset(toEmail, toName, token string) error {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", m.baseURL, token)
	subject := "Reset your password"
	plain := fmt.Sprintf(
		"We received a request to reset your password.\n\nReset it here: %s\n\nThis link expires in 1 hour. If you didn't request a reset, you can ignore this email.",
		resetURL,
	)
	html := fmt.Sprintf(
		"<p>We received a request to reset your password.</p><p><a href=%q>Reset your password</a></p><p>This link expires in 1 hour. If you didn't request a reset, you can ignore this email.</p>",
		resetURL,
	)
	return m.send(toEmail, toName, subject, plain, html)
}

// SendInvoiceReceipt emails a payment receipt for an invoice.
func (m *Mailer) SendInvoiceReceipt(toEmail, toName, invoiceNumber string, amount float64, currency string) error {
	subject := fmt.Sprintf("Payment received for invoice %s", invoiceNumber)
	plain := fmt.Sprintf(
		"We received your payment of %.2f %s for invoice %s. Thank you.",
		amount, currency, invoiceNumber,
	)
	html := fmt.Sprintf(
		"<p>We received your payment of <strong>%.2f %s</strong> for invoice <strong>%s</strong>. Thank you.</p>",
		amount, currency, invoiceNumber,
	)
	return m.send(toEmail, toName, subject, plain, html)
}
