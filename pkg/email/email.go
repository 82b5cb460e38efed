package email

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/harunnryd/serena/pkg/errorsx"
	"github.com/harunnryd/serena/pkg/lead"
	"github.com/harunnryd/serena/pkg/logging"
)

// Sender delivers the lead confirmation mail. Implemented by the SMTP
// service and stubbed in tests.
type Sender interface {
	SendLeadConfirmation(ctx context.Context, l lead.Lead) error
}

type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	CompanyName string
}

// Enabled reports whether the config is complete enough to send.
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Service sends lead confirmations over SMTP with STARTTLS.
type Service struct {
	cfg    Config
	logger *slog.Logger
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(cfg Config) *Service {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.CompanyName == "" {
		cfg.CompanyName = "Serena Properties"
	}
	return &Service{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "email"),
		send:   smtp.SendMail,
	}
}

// SendLeadConfirmation mails the caller that an agent will follow up.
// Skips quietly when the service is unconfigured or the lead carries
// no email address.
func (s *Service) SendLeadConfirmation(_ context.Context, l lead.Lead) error {
	to := l.EmailAddress()
	if to == "" {
		return nil
	}
	if !s.cfg.Enabled() {
		s.logger.Debug("smtp not configured, skipping confirmation", "to", to)
		return nil
	}

	msg := BuildConfirmation(s.cfg, to, l)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonEmailSend)
	}
	s.logger.Info("lead confirmation sent", "to", to)
	return nil
}

// BuildConfirmation renders the multipart plain+HTML confirmation.
func BuildConfirmation(cfg Config, to string, l lead.Lead) []byte {
	name := strings.TrimSpace(l.Name)
	if name == "" {
		name = "there"
	}

	var plain strings.Builder
	fmt.Fprintf(&plain, "Hi %s,\r\n\r\n", name)
	fmt.Fprintf(&plain, "Thank you for calling %s. One of our agents will be in touch shortly.\r\n\r\n", cfg.CompanyName)
	writeDetails(&plain, l, "- %s: %s\r\n")
	fmt.Fprintf(&plain, "\r\nBest regards,\r\n%s\r\n", cfg.CompanyName)

	var html strings.Builder
	fmt.Fprintf(&html, "<p>Hi %s,</p>", name)
	fmt.Fprintf(&html, "<p>Thank you for calling %s. One of our agents will be in touch shortly.</p><ul>", cfg.CompanyName)
	writeDetails(&html, l, "<li><b>%s:</b> %s</li>")
	fmt.Fprintf(&html, "</ul><p>Best regards,<br>%s</p>", cfg.CompanyName)

	boundary := "serena-" + fmt.Sprintf("%d", time.Now().UnixNano())
	subject := mime.QEncoding.Encode("utf-8", fmt.Sprintf("%s: we received your enquiry", cfg.CompanyName))

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(plain.String())
	fmt.Fprintf(&msg, "\r\n--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	msg.WriteString(html.String())
	fmt.Fprintf(&msg, "\r\n--%s--\r\n", boundary)
	return []byte(msg.String())
}

func writeDetails(w *strings.Builder, l lead.Lead, format string) {
	details := []struct {
		label, value string
	}{
		{"Budget", l.Budget},
		{"Location", l.Location},
		{"Property type", l.PropertyType},
		{"Notes", l.Notes},
	}
	for _, d := range details {
		if d.value != "" {
			fmt.Fprintf(w, format, d.label, d.value)
		}
	}
}

var _ Sender = (*Service)(nil)
