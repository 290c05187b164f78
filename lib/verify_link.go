package lib

import (
	"context"
	"fmt"

	"github.com/fiffu/verimail/config"
	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/models"
	"github.com/fiffu/verimail/lib/verification"
	"github.com/fiffu/verimail/senders/email"
	"go.uber.org/zap"
)

type verifyLink struct {
	cfg      *config.Config
	log      *zap.Logger
	engine   *verification.Engine
	accounts accounts.Accounts
	mailer   Mailer
}

// Verify handles a followed link. When a blocked account verifies, the site
// administrator is told so they can unblock it.
func (svc *verifyLink) Verify(ctx context.Context, attempt verification.Attempt, who models.Requester) (models.Outcome, error) {
	outcome, err := svc.engine.ProcessAttempt(ctx, attempt, who)
	if err != nil {
		svc.log.Sugar().Errorw("Verification could not be processed", "user_id", attempt.UserID, "err", err)
		return 0, err
	}

	svc.log.Sugar().Infow("Verification attempt", "user_id", attempt.UserID, "outcome", outcome)
	if outcome == models.OutcomeVerifiedButBlocked {
		svc.notifyAdministrator(ctx, attempt.UserID)
	}
	return outcome, nil
}

func (svc *verifyLink) notifyAdministrator(ctx context.Context, userID uint) {
	if svc.cfg.Site.Mail == "" {
		svc.log.Sugar().Warnw("SITE_MAIL is not set, blocked account verification not reported", "user_id", userID)
		return
	}

	acct, err := svc.accounts.Load(ctx, userID)
	if err != nil {
		svc.log.Sugar().Warnw("Failed to load verified blocked account", "user_id", userID, "err", err)
		return
	}

	_, err = svc.mailer.Send(ctx, email.VerifyBlocked, svc.cfg.Site.Mail, svc.cfg.Site.DefaultLocale, email.Params{
		Account: acct,
		EditURL: fmt.Sprintf("%s/user/%d/edit", svc.cfg.ServerDNS, userID),
	})
	if err != nil {
		svc.log.Sugar().Warnw("Administrator not notified of blocked account verification", "user_id", userID, "err", err)
		return
	}
	svc.log.Sugar().Infow("Notified administrator of blocked account verification", "user_id", userID)
}
