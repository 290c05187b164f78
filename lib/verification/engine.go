// Package verification decides whether an account has to verify its e-mail
// address, issues signed links and classifies link clicks.
package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/clock"
	"github.com/fiffu/verimail/lib/models"
	"github.com/fiffu/verimail/lib/policy"
	"github.com/fiffu/verimail/lib/store"
	"github.com/fiffu/verimail/lib/token"
	"go.uber.org/zap"
)

// Store is the subset of the verification store the engine needs.
type Store interface {
	Load(ctx context.Context, userID uint) (*models.VerificationRecord, error)
	Create(ctx context.Context, userID uint, verifiedNow bool) error
	MarkVerified(ctx context.Context, userID uint) error
	Delete(ctx context.Context, userID uint) error
	NeedsVerification(ctx context.Context, userID uint, skipRoles []string) (bool, error)
}

// Attempt is what the requester presented when following a link.
type Attempt struct {
	UserID    uint
	IssuedAt  int64
	Signature string
	Extended  bool
}

type Engine struct {
	store    Store
	accounts accounts.Accounts
	codec    *token.Codec
	policy   *policy.Policy
	clock    clock.Clock
	log      *zap.Logger
}

func NewEngine(
	st Store,
	accts accounts.Accounts,
	codec *token.Codec,
	pol *policy.Policy,
	clk clock.Clock,
	log *zap.Logger,
) *Engine {
	return &Engine{st, accts, codec, pol, clk, log}
}

func (e *Engine) now() int64 { return e.clock.Now().Unix() }

func (e *Engine) BuildVerificationLink(userID uint) models.Link {
	now := e.now()
	return models.Link{UserID: userID, IssuedAt: now, Signature: e.codec.Build(userID, now)}
}

func (e *Engine) BuildExtendedVerificationLink(userID uint) models.Link {
	link := e.BuildVerificationLink(userID)
	link.Extended = true
	return link
}

// ProcessAttempt classifies a link click and marks the record verified when
// the link is good. The checks run in a fixed order: expiry, ownership,
// verified state, then account and signature. An error is returned only when
// a collaborator fails.
func (e *Engine) ProcessAttempt(ctx context.Context, a Attempt, who models.Requester) (models.Outcome, error) {
	now := e.now()
	window := e.policy.ValidateInterval()

	if now-a.IssuedAt > window {
		return models.OutcomeExpired, nil
	}

	rec, err := e.store.Load(ctx, a.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return models.OutcomeMismatch, nil
	case err != nil:
		return 0, err
	}
	if who.Authenticated && who.UserID != a.UserID {
		return models.OutcomeMismatch, nil
	}

	if rec.Verified() {
		return models.OutcomeAlreadyVerified, nil
	}

	acct, err := e.accounts.Load(ctx, a.UserID)
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		return models.OutcomeInvalidSignature, nil
	case err != nil:
		return 0, fmt.Errorf("load account %d: %w", a.UserID, err)
	}
	if !e.codec.Validate(a.UserID, a.IssuedAt, a.Signature, now, window) {
		return models.OutcomeInvalidSignature, nil
	}

	if err := e.store.MarkVerified(ctx, a.UserID); err != nil {
		return 0, err
	}
	e.log.Sugar().Infow("Verified email", "user_id", a.UserID, "extended", a.Extended)

	if acct.Blocked() {
		return models.OutcomeVerifiedButBlocked, nil
	}
	return models.OutcomeVerified, nil
}

func (e *Engine) IsVerificationNeeded(ctx context.Context, userID uint) (bool, error) {
	return e.store.NeedsVerification(ctx, userID, e.policy.SkipRoles())
}

// IsReminderNeeded re-checks a queued reminder against the current record.
func (e *Engine) IsReminderNeeded(ctx context.Context, userID uint) (bool, error) {
	rec, err := e.store.Load(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if rec.Verified() || rec.ReminderCount >= e.policy.NumReminders() {
		return false, nil
	}
	return e.now()-rec.LastReminderAt >= e.policy.ReminderInterval(), nil
}

// CreateVerification starts tracking a newly provisioned account. Holders of a
// skip role are recorded as verified straight away.
func (e *Engine) CreateVerification(ctx context.Context, acct *models.Account, verified bool) error {
	verified = verified || e.policy.HasSkipRole(acct.RoleNames())
	if err := e.store.Create(ctx, acct.ID, verified); err != nil {
		return err
	}
	e.log.Sugar().Infow("Created verification", "user_id", acct.ID, "verified", verified)
	return nil
}

func (e *Engine) DeleteVerification(ctx context.Context, userID uint) error {
	return e.store.Delete(ctx, userID)
}

// FindAccountByNameOrEmail only returns active accounts.
func (e *Engine) FindAccountByNameOrEmail(ctx context.Context, nameOrEmail string) (*models.Account, error) {
	if nameOrEmail == "" {
		return nil, accounts.ErrAccountNotFound
	}
	acct, err := e.accounts.FindByNameOrEmail(ctx, nameOrEmail)
	if err != nil {
		return nil, err
	}
	if !acct.Active() {
		return nil, accounts.ErrAccountNotFound
	}
	return acct, nil
}
