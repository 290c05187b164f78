package senders

import (
	"context"

	"github.com/fiffu/verimail/senders/email"
	"github.com/google/uuid"
)

// logSender writes messages to the log instead of delivering them.
type logSender struct {
	base
}

func (e *logSender) Send(ctx context.Context, subject, body, recipient string) (string, error) {
	id := uuid.NewString()
	e.log.Sugar().Infow("Mail",
		"message_id", id,
		"recipient", recipient,
		"subject", subject,
		"body", email.PlainText(body),
	)
	return id, nil
}
