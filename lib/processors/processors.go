// Package processors performs the side effects for queued escalation batches.
package processors

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/clock"
	"github.com/fiffu/verimail/lib/models"
	"github.com/fiffu/verimail/lib/policy"
	"github.com/fiffu/verimail/lib/store"
	"github.com/fiffu/verimail/queue"
	"github.com/fiffu/verimail/senders/email"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	actionBlock  = "block"
	actionRemind = "remind"
	actionDelete = "delete"

	defaultConcurrency = 5
)

type Store interface {
	Load(ctx context.Context, userID uint) (*models.VerificationRecord, error)
	IncrementReminder(ctx context.Context, userID uint, now int64) error
	Delete(ctx context.Context, userID uint) error
}

type Engine interface {
	IsReminderNeeded(ctx context.Context, userID uint) (bool, error)
	BuildVerificationLink(userID uint) models.Link
	BuildExtendedVerificationLink(userID uint) models.Link
}

type Mailer interface {
	Send(ctx context.Context, key email.TemplateKey, recipient, locale string, params email.Params) (bool, error)
}

type Settings struct {
	BaseURL      string
	CancelMethod accounts.CancelMethod
	Concurrency  int
}

type Processors struct {
	accounts accounts.Accounts
	store    Store
	engine   Engine
	mailer   Mailer
	policy   *policy.Policy
	clock    clock.Clock
	log      *zap.Logger
	settings Settings
}

func New(
	accts accounts.Accounts,
	st Store,
	engine Engine,
	mailer Mailer,
	pol *policy.Policy,
	clk clock.Clock,
	log *zap.Logger,
	settings Settings,
) *Processors {
	if settings.Concurrency <= 0 {
		settings.Concurrency = defaultConcurrency
	}
	if settings.CancelMethod == "" {
		settings.CancelMethod = accounts.CancelBlock
	}
	return &Processors{accts, st, engine, mailer, pol, clk, log, settings}
}

// Handlers binds each processor to its queue.
func (p *Processors) Handlers() queue.Handlers {
	return queue.Handlers{
		queue.BlockAccount:  p.handler(p.BlockAccounts),
		queue.RemindAccount: p.handler(p.RemindAccounts),
		queue.DeleteAccount: p.handler(p.DeleteAccounts),
	}
}

func (p *Processors) handler(fn func(context.Context, []uint) error) queue.Handler {
	return func(ctx context.Context, item queue.Item) error {
		return fn(ctx, item.UserIDs)
	}
}

func (p *Processors) BlockAccounts(ctx context.Context, userIDs []uint) error {
	return p.processBatch(ctx, actionBlock, userIDs, p.BlockAccount)
}

func (p *Processors) RemindAccounts(ctx context.Context, userIDs []uint) error {
	return p.processBatch(ctx, actionRemind, userIDs, p.RemindAccount)
}

func (p *Processors) DeleteAccounts(ctx context.Context, userIDs []uint) error {
	return p.processBatch(ctx, actionDelete, userIDs, p.DeleteAccount)
}

// processBatch runs fn for every id. One failing id never stops the others;
// all failures are returned together.
func (p *Processors) processBatch(ctx context.Context, action string, userIDs []uint, fn func(context.Context, uint) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	sem := make(chan struct{}, p.settings.Concurrency)

	for _, userID := range userIDs {
		wg.Add(1)
		sem <- struct{}{}

		go func(userID uint) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(ctx, userID); err != nil {
				observe(action, resultFailed)
				p.log.Sugar().Errorw("Failed to process user", "action", action, "user_id", userID, "err", err)

				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s user %d: %w", action, userID, err))
				mu.Unlock()
			}
		}(userID)
	}

	wg.Wait()
	return errs
}

// loadAccount returns nil without error when the account no longer exists.
func (p *Processors) loadAccount(ctx context.Context, userID uint) (*models.Account, error) {
	acct, err := p.accounts.Load(ctx, userID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, nil
	}
	return acct, err
}

func (p *Processors) sendMail(ctx context.Context, action string, key email.TemplateKey, acct *models.Account) bool {
	params := email.Params{Account: acct}
	switch key {
	case email.Verify:
		params.VerifyURL = p.engine.BuildVerificationLink(acct.ID).URL(p.settings.BaseURL)
	case email.VerifyExtended:
		params.VerifyExtendedURL = p.engine.BuildExtendedVerificationLink(acct.ID).URL(p.settings.BaseURL)
	}

	ok, err := p.mailer.Send(ctx, key, acct.Email, acct.Locale, params)
	if err != nil || !ok {
		observe(action, resultMailFailed)
		p.log.Sugar().Warnw("Mail not delivered, continuing", "action", action, "user_id", acct.ID, "template", key, "err", err)
		return false
	}
	return true
}

// BlockAccount blocks an active account. Missing and already inactive
// accounts are left alone.
func (p *Processors) BlockAccount(ctx context.Context, userID uint) error {
	acct, err := p.loadAccount(ctx, userID)
	if err != nil {
		return err
	}
	if acct == nil || !acct.Active() {
		observe(actionBlock, resultSkipped)
		return nil
	}

	if err := p.accounts.Block(ctx, userID); err != nil {
		return err
	}
	if p.policy.ExtendedPeriodEnabled() {
		p.sendMail(ctx, actionBlock, email.VerifyExtended, acct)
	}

	observe(actionBlock, resultOK)
	p.log.Sugar().Infow("Blocked unverified account", "user_id", userID)
	return nil
}

// RemindAccount re-checks that the reminder is still due, sends it and
// advances the reminder counter even when delivery failed.
func (p *Processors) RemindAccount(ctx context.Context, userID uint) error {
	needed, err := p.engine.IsReminderNeeded(ctx, userID)
	if err != nil {
		return err
	}
	if !needed {
		observe(actionRemind, resultSkipped)
		return nil
	}

	acct, err := p.loadAccount(ctx, userID)
	if err != nil {
		return err
	}
	if acct != nil {
		p.sendMail(ctx, actionRemind, email.Verify, acct)
	}

	if err := p.store.IncrementReminder(ctx, userID, p.clock.Now().Unix()); err != nil {
		return err
	}

	observe(actionRemind, resultOK)
	return nil
}

// DeleteAccount notifies the account holder, cancels the account and stops
// tracking its verification. Users whose record is gone or verified by the time
// the batch runs are left alone.
func (p *Processors) DeleteAccount(ctx context.Context, userID uint) error {
	rec, err := p.store.Load(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		observe(actionDelete, resultSkipped)
		return nil
	} else if err != nil {
		return err
	}
	if rec.Verified() {
		observe(actionDelete, resultSkipped)
		return nil
	}

	acct, err := p.loadAccount(ctx, userID)
	if err != nil {
		return err
	}
	if acct == nil {
		observe(actionDelete, resultSkipped)
		return p.store.Delete(ctx, userID)
	}

	p.sendMail(ctx, actionDelete, email.StatusCanceled, acct)

	if err := p.accounts.Cancel(ctx, userID, p.settings.CancelMethod); err != nil && !errors.Is(err, accounts.ErrAccountNotFound) {
		return err
	}
	if err := p.store.Delete(ctx, userID); err != nil {
		return err
	}

	observe(actionDelete, resultOK)
	p.log.Sugar().Infow("Cancelled unverified account", "user_id", userID, "method", p.settings.CancelMethod)
	return nil
}
