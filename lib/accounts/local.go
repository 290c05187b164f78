package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiffu/verimail/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Local reads and mutates accounts stored in the same database as the
// verification records.
type Local struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewLocal(db *gorm.DB, log *zap.Logger) *Local {
	return &Local{db, log}
}

func (l *Local) Load(ctx context.Context, userID uint) (*models.Account, error) {
	var acct models.Account
	tx := l.db.WithContext(ctx).Preload("Roles").Where("id = ?", userID).Take(&acct)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (l *Local) RolesOf(ctx context.Context, userID uint) ([]string, error) {
	var roles []string
	tx := l.db.WithContext(ctx).
		Model(&models.RoleAssignment{}).
		Where("user_id = ?", userID).
		Order("role").
		Pluck("role", &roles)
	return roles, tx.Error
}

func (l *Local) Block(ctx context.Context, userID uint) error {
	tx := l.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", userID).
		Update("status", models.AccountBlocked)
	if err := tx.Error; err != nil {
		return err
	}
	if tx.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	l.log.Sugar().Infow("Blocked account", "user_id", userID)
	return nil
}

func (l *Local) Cancel(ctx context.Context, userID uint, method CancelMethod) error {
	switch method {
	case CancelBlock:
		return l.Block(ctx, userID)

	case CancelDelete:
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("user_id = ?", userID).Delete(&models.RoleAssignment{}).Error; err != nil {
				return err
			}
			res := tx.Where("id = ?", userID).Delete(&models.Account{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrAccountNotFound
			}
			return nil
		})
		if err == nil {
			l.log.Sugar().Infow("Deleted account", "user_id", userID)
		}
		return err

	default:
		return fmt.Errorf("unknown account cancel method %q", method)
	}
}

func (l *Local) FindByNameOrEmail(ctx context.Context, nameOrEmail string) (*models.Account, error) {
	for _, column := range []string{"email", "name"} {
		var acct models.Account
		tx := l.db.WithContext(ctx).Preload("Roles").Where(column+" = ?", nameOrEmail).Order("id").Take(&acct)
		if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		return &acct, nil
	}
	return nil, ErrAccountNotFound
}
