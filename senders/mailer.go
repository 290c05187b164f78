package senders

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiffu/verimail/config"
	"github.com/fiffu/verimail/senders/email"
	"go.uber.org/zap"
)

var ErrMailSendFailed = errors.New("mail send failed")

// Site is the sender's identity as shown in mail bodies.
type Site struct {
	Name string
	URL  string
}

// Mailer renders template keys and hands the result to a Sender.
type Mailer struct {
	sender    Sender
	templates email.Templates
	site      Site
	log       *zap.Logger
}

func NewMailer(cfg *config.Config, log *zap.Logger, registry Registry) (*Mailer, error) {
	sender, err := registry.Pick(cfg.Mail.Provider)
	if err != nil {
		return nil, err
	}

	pol := cfg.Policy()
	templates := email.Templates{
		MailSubject:         pol.MailSubject(),
		MailBody:            pol.MailBody(),
		ExtendedMailSubject: pol.ExtendedMailSubject(),
		ExtendedMailBody:    pol.ExtendedMailBody(),
	}
	log.Sugar().Infow("Mailer configured", "provider", cfg.Mail.Provider)
	return New(sender, templates, Site{cfg.Site.Name, cfg.ServerDNS}, log), nil
}

func New(sender Sender, templates email.Templates, site Site, log *zap.Logger) *Mailer {
	return &Mailer{sender, templates, site, log}
}

// Send reports false with ErrMailSendFailed when the message could not be
// composed or delivered. Locale is recorded but templates are not translated.
func (m *Mailer) Send(ctx context.Context, key email.TemplateKey, recipient, locale string, params email.Params) (bool, error) {
	if params.SiteName == "" {
		params.SiteName = m.site.Name
	}
	if params.SiteURL == "" {
		params.SiteURL = m.site.URL
	}

	msg, err := email.Compose(key, params, m.templates)
	if err != nil {
		m.log.Sugar().Errorw("Failed to compose mail", "template", key, "err", err)
		return false, fmt.Errorf("%w: %w", ErrMailSendFailed, err)
	}

	id, err := m.sender.Send(ctx, msg.Subject, msg.HTML, recipient)
	if err != nil {
		m.log.Sugar().Warnw("Failed to send mail", "template", key, "recipient", recipient, "err", err)
		return false, fmt.Errorf("%w: %w", ErrMailSendFailed, err)
	}

	m.log.Sugar().Infow("Sent mail", "template", key, "recipient", recipient, "locale", locale, "message_id", id)
	return true, nil
}
