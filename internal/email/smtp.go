package email

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/gomail.v2"
)

// SMTPConfig is read from SMTP_* environment variables.
type SMTPConfig struct {
	Host     string `default:"localhost"`
	Port     int    `default:"587"`
	Username string
	Password string
	From     string `default:"no-reply@localhost"`
	ResetURL string `split_words:"true" default:"http://localhost:8080/reset-password"`
}

func LoadSMTPConfig() (SMTPConfig, error) {
	var cfg SMTPConfig
	if err := envconfig.Process("smtp", &cfg); err != nil {
		return SMTPConfig{}, fmt.Errorf("failed to load smtp config: %w", err)
	}
	return cfg, nil
}

type smtpService struct {
	cfg  SMTPConfig
	send func(m *gomail.Message) error
}

func NewSMTPService(cfg SMTPConfig) Service {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &smtpService{
		cfg:  cfg,
		send: func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
}

func (s *smtpService) SendPasswordReset(ctx context.Context, to string, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	link, err := resetLink(s.cfg.ResetURL, token)
	if err != nil {
		return err
	}

	m := gomail.NewMessage(gomail.SetEncoding(gomail.Unencoded))
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Reset your password")
	m.SetBody("text/plain", fmt.Sprintf(
		"Someone requested a password reset for this account.\n\nTo reset your password, visit:\n%s\n\nIf this was a mistake, ignore this email.\n",
		link))
	m.AddAlternative("text/html", fmt.Sprintf(
		`<p>Someone requested a password reset for this account.</p><p><a href="%s">Reset your password</a></p>`,
		link))

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
