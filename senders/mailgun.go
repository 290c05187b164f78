package senders

import (
	"context"
	"net/http"

	"github.com/fiffu/verimail/senders/email"
	"github.com/mailgun/mailgun-go/v4"
)

type mailgunSender struct {
	base
}

func (e *mailgunSender) Send(ctx context.Context, subject, body, recipient string) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.SetClient(&http.Client{Transport: e.transport})

	// Plain text goes in as the main body, SetHtml adds the HTML alternative.
	message := mg.NewMessage(e.cfg.Mail.From, subject, email.PlainText(body), recipient)
	message.SetHtml(body)

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	return id, err
}
