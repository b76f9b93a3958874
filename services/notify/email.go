package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"text/template"
	"time"
)

// ErrMailDisabled is returned when no mail transport is configured
var ErrMailDisabled = errors.New("email transport is not configured")

// Mailer sends a plain text email
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig configures SMTPMailer
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPMailer delivers mail over SMTP. Port 465 uses implicit TLS, other
// ports upgrade with STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer returns a mailer, or a disabled one when cfg has no host
func NewSMTPMailer(cfg SMTPConfig) Mailer {
	if cfg.Host == "" || cfg.Port == 0 {
		return disabledMailer{}
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	address := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))
	tlsConfig := &tls.Config{ServerName: m.cfg.Host}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	var conn net.Conn
	var err error
	if m.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if m.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if m.cfg.User != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(composeMessage(m.cfg.From, to, subject, body)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}

var headerBreaks = strings.NewReplacer("\r", " ", "\n", " ")

func composeMessage(from, to, subject, body string) []byte {
	headers := []string{
		"From: " + headerBreaks.Replace(from),
		"To: " + headerBreaks.Replace(to),
		"Subject: " + headerBreaks.Replace(subject),
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n" + body)
}

type disabledMailer struct{}

func (disabledMailer) Send(ctx context.Context, to, subject, body string) error {
	return ErrMailDisabled
}

var (
	subjectTemplate = template.Must(template.New("subject").Parse(
		`Price alert: {{.Symbol}} is {{.Direction}} {{.Target}}`))

	bodyTemplate = template.Must(template.New("body").Parse(`Hello{{if .RecipientName}} {{.RecipientName}}{{end}},

Your price alert for {{.AssetName}} ({{.Symbol}}) has been triggered.

  Condition:     price {{.Direction}} {{.Target}}
  Current price: {{.Price}}
  Triggered at:  {{.TriggeredAt}}

This alert is now closed and will not fire again. Create a new alert to keep watching {{.Symbol}}.
`))
)

type emailData struct {
	RecipientName string
	AssetName     string
	Symbol        string
	Direction     string
	Target        string
	Price         string
	TriggeredAt   string
}

func renderEmail(event Event, recipient Recipient) (string, string, error) {
	alert := event.Alert
	symbol := alert.AssetSymbol
	if symbol == "" {
		symbol = strings.ToUpper(alert.AssetID)
	}
	name := alert.AssetName
	if name == "" {
		name = symbol
	}
	data := emailData{
		RecipientName: recipient.Name,
		AssetName:     name,
		Symbol:        symbol,
		Direction:     string(alert.Direction),
		Target:        alert.TargetPrice.String(),
		Price:         event.Price.String(),
		TriggeredAt:   event.At.UTC().Format(time.RFC1123),
	}

	var subject, body bytes.Buffer
	if err := subjectTemplate.Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}

// EmailChannel renders a triggered alert and mails it to the owner
type EmailChannel struct {
	mailer     Mailer
	recipients RecipientResolver
}

func NewEmailChannel(mailer Mailer, recipients RecipientResolver) *EmailChannel {
	return &EmailChannel{mailer: mailer, recipients: recipients}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Deliver(ctx context.Context, event Event) error {
	recipient, err := c.recipients.Resolve(ctx, event.Alert.OwnerID)
	if err != nil {
		return err
	}
	subject, body, err := renderEmail(event, recipient)
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	return c.mailer.Send(ctx, recipient.Email, subject, body)
}
