// Package mailer delivers transactional email.
package mailer

import (
	"context"
	"crypto/tls"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &SMTPMailer{dialer: d, from: cfg.From}
}

// Send delivers msg. Failures are returned to the caller, not logged.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		gm.AddAlternative("text/html", msg.HTML)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return errors.Wrapf(err, "send email to %s", msg.To)
	}
	log.WithField("to", msg.To).WithField("subject", msg.Subject).Info("email sent")
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.WithFields(log.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info(msg.Text)
	return nil
}

// New returns an SMTP mailer, or a LogMailer when no host is configured.
func New(cfg SMTPConfig) Mailer {
	if cfg.Host == "" || cfg.From == "" {
		log.Warn("SMTP is not configured, emails will only be logged")
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}
