package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/pkg/errors"

	brokererrors "github.com/emberlink/go-identity-broker/internal/errors"
)

const defaultDialTimeout = 10 * time.Second

// SMTPMailer sends one-time codes through a plain SMTP relay with
// STARTTLS when the server offers it.
type SMTPMailer struct {
	host     string
	port     string
	account  string
	password string
	sender   string
	appName  string
}

// NewSMTPMailer creates an SMTPMailer. account may be empty for relays
// that do not require authentication.
func NewSMTPMailer(host, port, account, password, sender, appName string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		account:  account,
		password: password,
		sender:   sender,
		appName:  appName,
	}
}

func (m *SMTPMailer) Deliver(ctx context.Context, recipient, code, link string) error {
	if err := m.send(ctx, recipient, code, link); err != nil {
		return errors.Wrap(brokererrors.ErrMailDeliveryFailed, err.Error())
	}
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, recipient, code, link string) error {
	addr := net.JoinHostPort(m.host, m.port)

	timeout := defaultDialTimeout
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		timeout = time.Until(deadline)
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return errors.Wrap(err, "[SMTPMailer.send] dial")
	}
	if hasDeadline {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "[SMTPMailer.send] handshake")
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return errors.Wrap(err, "[SMTPMailer.send] starttls")
		}
	}

	if m.account != "" {
		auth := smtp.PlainAuth("", m.account, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return errors.Wrap(err, "[SMTPMailer.send] auth")
		}
	}

	if err := client.Mail(m.sender); err != nil {
		return errors.Wrap(err, "[SMTPMailer.send] mail from")
	}
	if err := client.Rcpt(recipient); err != nil {
		return errors.Wrap(err, "[SMTPMailer.send] rcpt to")
	}

	w, err := client.Data()
	if err != nil {
		return errors.Wrap(err, "[SMTPMailer.send] data")
	}
	if _, err := fmt.Fprint(w, m.message(recipient, code, link)); err != nil {
		return errors.Wrap(err, "[SMTPMailer.send] write body")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "[SMTPMailer.send] close body")
	}

	return client.Quit()
}

func (m *SMTPMailer) message(recipient, code, link string) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Finish logging in to %s\r\n\r\n"+
			"Enter this code to confirm your email address:\r\n\r\n"+
			"\t%s\r\n\r\n"+
			"Or open this link in the same browser you started from:\r\n\r\n"+
			"\t%s\r\n\r\n"+
			"If you did not request this, you can ignore this message.\r\n",
		m.sender, recipient, m.appName, code, link)
}
