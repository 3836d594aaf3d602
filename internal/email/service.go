package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"

	"gopkg.in/gomail.v2"

	"github.com/redmonkez12/go-auth-service/internal/logging"
)

// Recipient is the addressee of a transactional email and the token the link carries
type Recipient struct {
	Email string
	Name  string
	Token string
}

// Dialer delivers messages; *gomail.Dialer satisfies it
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// NewSMTPDialer returns a gomail dialer for the given SMTP server
func NewSMTPDialer(host string, port int, user, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, user, password)
}

type Service struct {
	dialer      Dialer
	fromEmail   string
	publicURL   string
	frontendURL string
}

// NewService creates the mail service. Verification links point at publicURL
// (this API); password reset links point at frontendURL.
func NewService(dialer Dialer, fromEmail, publicURL, frontendURL string) *Service {
	return &Service{
		dialer:      dialer,
		fromEmail:   fromEmail,
		publicURL:   publicURL,
		frontendURL: frontendURL,
	}
}

// SendRegistrationEmail sends the welcome email with the verification link.
// This method is designed to be called in a goroutine
func (s *Service) SendRegistrationEmail(ctx context.Context, to Recipient) error {
	logger := logging.GetLoggerFromContext(ctx)

	body, err := renderTemplate(registrationTemplate, templateData{
		Name: to.Name,
		Link: s.verificationLink(to.Token),
	})
	if err != nil {
		logger.Error("failed to render registration email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.sendEmail(to.Email, "Welcome! Please confirm your email", body); err != nil {
		logger.Error("failed to send registration email", "email", to.Email, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("registration email sent", "email", to.Email)
	return nil
}

// SendForgotPasswordEmail sends a password reset link to the user.
// This method is designed to be called in a goroutine
func (s *Service) SendForgotPasswordEmail(ctx context.Context, to Recipient) error {
	logger := logging.GetLoggerFromContext(ctx)

	body, err := renderTemplate(forgotPasswordTemplate, templateData{
		Name: to.Name,
		Link: s.resetLink(to.Token),
	})
	if err != nil {
		logger.Error("failed to render password reset email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.sendEmail(to.Email, "Reset your password", body); err != nil {
		logger.Error("failed to send password reset email", "email", to.Email, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("password reset email sent", "email", to.Email)
	return nil
}

func (s *Service) verificationLink(token string) string {
	return fmt.Sprintf("%s/auth/verify?token=%s", s.publicURL, url.QueryEscape(token))
}

func (s *Service) resetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, url.QueryEscape(token))
}

func (s *Service) sendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.fromEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	return s.dialer.DialAndSend(m)
}

type templateData struct {
	Name string
	Link string
}

func renderTemplate(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// LogDialer stands in for SMTP when no server is configured
type LogDialer struct {
	logger *logging.Logger
}

func NewLogDialer(logger *logging.Logger) *LogDialer {
	return &LogDialer{logger: logger}
}

func (d *LogDialer) DialAndSend(messages ...*gomail.Message) error {
	for _, m := range messages {
		d.logger.Warn("SMTP not configured, email not delivered",
			"to", m.GetHeader("To"),
			"subject", m.GetHeader("Subject"),
		)
	}
	return nil
}
