package senders

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fiffu/verimail/config"
	"go.uber.org/zap"
)

// Sender delivers a single HTML message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, subject, body, recipient string) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		"log":     &logSender{base},
		"mailgun": &mailgunSender{base},
		"smtp":    &smtpSender{base},
	}
}

// Pick returns the sender configured by MAIL_PROVIDER.
func (r Registry) Pick(provider string) (Sender, error) {
	s, ok := r[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
	return s, nil
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}

func (b base) timeout() time.Duration {
	return time.Duration(b.cfg.Mail.TimeoutSecs) * time.Second
}
