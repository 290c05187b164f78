package lib

import (
	"context"

	"github.com/fiffu/verimail/config"
	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/escalation"
	"github.com/fiffu/verimail/lib/models"
	"github.com/fiffu/verimail/lib/store"
	"github.com/fiffu/verimail/lib/verification"
	"github.com/fiffu/verimail/senders/email"
	"go.uber.org/zap"
)

type Mailer interface {
	Send(ctx context.Context, key email.TemplateKey, recipient, locale string, params email.Params) (bool, error)
}

// Service is the entry point for the HTTP API and the CLI.
type Service struct {
	cfg       *config.Config
	log       *zap.Logger
	engine    *verification.Engine
	scheduler *escalation.Scheduler

	*verifyLink
	*provisionAccount
	*requestLink
}

func NewService(
	cfg *config.Config,
	log *zap.Logger,
	engine *verification.Engine,
	st *store.Store,
	accts accounts.Accounts,
	mailer Mailer,
	scheduler *escalation.Scheduler,
) *Service {
	return &Service{
		cfg, log, engine, scheduler,
		&verifyLink{cfg, log, engine, accts, mailer},
		&provisionAccount{log, engine, st, accts},
		&requestLink{cfg, log, engine, mailer},
	}
}

// Link returns the absolute verification URL for userID.
func (svc *Service) Link(userID uint, extended bool) string {
	var link models.Link
	if extended {
		link = svc.engine.BuildExtendedVerificationLink(userID)
	} else {
		link = svc.engine.BuildVerificationLink(userID)
	}
	return link.URL(svc.cfg.ServerDNS)
}

func (svc *Service) RunTick(ctx context.Context) (escalation.TickResult, error) {
	return svc.scheduler.Tick(ctx)
}
