// Package accountstest provides a testify mock of accounts.Accounts.
package accountstest

import (
	"context"

	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/models"
	"github.com/stretchr/testify/mock"
)

type Mock struct {
	mock.Mock
}

var _ accounts.Accounts = (*Mock)(nil)

func (m *Mock) Load(ctx context.Context, userID uint) (*models.Account, error) {
	args := m.Called(ctx, userID)
	acct, _ := args.Get(0).(*models.Account)
	return acct, args.Error(1)
}

func (m *Mock) RolesOf(ctx context.Context, userID uint) ([]string, error) {
	args := m.Called(ctx, userID)
	roles, _ := args.Get(0).([]string)
	return roles, args.Error(1)
}

func (m *Mock) Block(ctx context.Context, userID uint) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *Mock) Cancel(ctx context.Context, userID uint, method accounts.CancelMethod) error {
	return m.Called(ctx, userID, method).Error(0)
}

func (m *Mock) FindByNameOrEmail(ctx context.Context, nameOrEmail string) (*models.Account, error) {
	args := m.Called(ctx, nameOrEmail)
	acct, _ := args.Get(0).(*models.Account)
	return acct, args.Error(1)
}

func Active(id uint) *models.Account {
	return &models.Account{ID: id, Name: "active", Email: "active@example.com", Locale: "en", Status: models.AccountActive}
}

func Blocked(id uint) *models.Account {
	return &models.Account{ID: id, Name: "blocked", Email: "blocked@example.com", Locale: "en", Status: models.AccountBlocked}
}
