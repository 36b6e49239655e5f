package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"affiliate-commission/internal/config"
	"affiliate-commission/internal/metrics"

	"go.uber.org/zap"
)

type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func NewSMTPMailer(cfg config.SMTP) *SMTPMailer {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     from,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", m.from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body,
	)

	// Implicit TLS (port 465)
	conn, err := tls.Dial("tcp", m.host+":"+m.port, &tls.Config{ServerName: m.host})
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Quit()

	if m.username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

// DirectPublisher mails the affiliate from a goroutine. It is used when no
// Kafka brokers are configured.
type DirectPublisher struct {
	mailer Mailer
	logger *zap.Logger
}

func NewDirectPublisher(mailer Mailer, logger *zap.Logger) *DirectPublisher {
	return &DirectPublisher{mailer: mailer, logger: logger}
}

func (p *DirectPublisher) PublishAffiliateCreated(_ context.Context, event AffiliateCreated) error {
	go func() {
		subject, body := affiliateCreatedMail(event)
		if err := p.mailer.Send(event.Email, subject, body); err != nil {
			metrics.NotificationErrors.Inc()
			p.logger.Warn("affiliate welcome mail failed",
				zap.String("affiliate_id", event.AffiliateID),
				zap.Error(err),
			)
		}
	}()
	return nil
}
