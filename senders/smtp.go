package senders

import (
	"context"

	"github.com/fiffu/verimail/senders/email"
	"github.com/wneessen/go-mail"
)

type smtpSender struct {
	base
}

func (e *smtpSender) client() (*mail.Client, error) {
	smtp := e.cfg.SMTP
	tls := mail.TLSOpportunistic
	if smtp.TLS {
		tls = mail.TLSMandatory
	}
	opts := []mail.Option{
		mail.WithPort(smtp.Port),
		mail.WithTimeout(e.timeout()),
		mail.WithTLSPolicy(tls),
	}
	if smtp.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(smtp.Username),
			mail.WithPassword(smtp.Password),
		)
	}
	return mail.NewClient(smtp.Host, opts...)
}

func (e *smtpSender) Send(ctx context.Context, subject, body, recipient string) (string, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.Mail.From); err != nil {
		return "", err
	}
	if err := msg.To(recipient); err != nil {
		return "", err
	}
	msg.Subject(subject)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, email.PlainText(body))
	msg.AddAlternativeString(mail.TypeTextHTML, body)

	c, err := e.client()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return "", err
	}
	return msg.GetMessageID(), nil
}
