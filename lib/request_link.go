package lib

import (
	"context"
	"errors"

	"github.com/fiffu/verimail/config"
	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/verification"
	"github.com/fiffu/verimail/senders/email"
	"go.uber.org/zap"
)

type requestLink struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *verification.Engine
	mailer Mailer
}

// RequestVerification mails a fresh link to an active account that still has
// to verify. Unknown accounts are not reported to the caller, so the answer
// never reveals whether an address is registered.
func (svc *requestLink) RequestVerification(ctx context.Context, nameOrEmail string) error {
	acct, err := svc.engine.FindAccountByNameOrEmail(ctx, nameOrEmail)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		svc.log.Sugar().Infow("Verification requested for unknown account")
		return nil
	} else if err != nil {
		return err
	}

	needed, err := svc.engine.IsVerificationNeeded(ctx, acct.ID)
	if err != nil {
		return err
	}
	if !needed {
		svc.log.Sugar().Infow("Verification requested but not needed", "user_id", acct.ID)
		return nil
	}

	link := svc.engine.BuildVerificationLink(acct.ID)
	_, err = svc.mailer.Send(ctx, email.Verify, acct.Email, acct.Locale, email.Params{
		Account:   acct,
		VerifyURL: link.URL(svc.cfg.ServerDNS),
	})
	if err != nil {
		svc.log.Sugar().Warnw("Failed to send requested verification", "user_id", acct.ID, "err", err)
	}
	return nil
}
