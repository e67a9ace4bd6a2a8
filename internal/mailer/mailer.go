// Package mailer sends transactional HTML email over SMTP.
package mailer

import (
	"bytes"
	"crypto/tls"
	"embed"
	"html/template"
	"strings"

	"github.com/goldleaf/storefront/config"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var ErrNotConfigured = errors.New("smtp is not configured")

// Sender delivers a rendered HTML email
type Sender interface {
	Send(to, subject, html string) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.SmtpConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, ErrNotConfigured
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Passwd)
	if cfg.TLS {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return &SMTPMailer{dialer: d, from: cfg.From}, nil
}

func (m *SMTPMailer) Send(to, subject, html string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("mailer: empty recipient")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return errors.Wrapf(err, "mailer: send to %s", to)
	}
	zap.L().Info("mailer: email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// LogMailer logs messages instead of sending them, used when SMTP is not configured
type LogMailer struct{}

func (LogMailer) Send(to, subject, _ string) error {
	zap.L().Info("mailer: smtp disabled, email dropped", zap.String("to", to), zap.String("subject", subject))
	return nil
}

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"amount": FormatAmount,
}).ParseFS(templateFS, "templates/*.html"))

// Render executes the named template (e.g. "welcome.html")
func Render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrapf(err, "mailer: render %s", name)
	}
	return buf.String(), nil
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders a money value with thousands grouping, e.g. "₹1,234.50"
func FormatAmount(currency string, v decimal.Decimal) string {
	f, _ := v.Round(2).Float64()
	s := printer.Sprintf("%.2f", f)
	switch strings.ToUpper(currency) {
	case "", "INR":
		return "₹" + s
	case "USD":
		return "$" + s
	default:
		return strings.ToUpper(currency) + " " + s
	}
}
