package lib

import (
	"context"

	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/models"
	"github.com/fiffu/verimail/lib/store"
	"github.com/fiffu/verimail/lib/verification"
	"go.uber.org/zap"
)

type provisionAccount struct {
	log      *zap.Logger
	engine   *verification.Engine
	store    *store.Store
	accounts accounts.Accounts
}

type VerificationStatus struct {
	Record *models.VerificationRecord
	Needed bool
}

// Provision starts tracking an account that exists in the host application.
func (svc *provisionAccount) Provision(ctx context.Context, userID uint, verified bool) (*models.VerificationRecord, error) {
	acct, err := svc.accounts.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := svc.engine.CreateVerification(ctx, acct, verified); err != nil {
		return nil, err
	}
	return svc.store.Load(ctx, userID)
}

func (svc *provisionAccount) Remove(ctx context.Context, userID uint) error {
	if err := svc.engine.DeleteVerification(ctx, userID); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Removed verification", "user_id", userID)
	return nil
}

func (svc *provisionAccount) Status(ctx context.Context, userID uint) (*VerificationStatus, error) {
	rec, err := svc.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	needed, err := svc.engine.IsVerificationNeeded(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &VerificationStatus{rec, needed}, nil
}

func (svc *provisionAccount) CountUnverified(ctx context.Context) (int64, error) {
	return svc.store.CountUnverified(ctx)
}
