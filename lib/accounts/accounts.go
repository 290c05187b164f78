// Package accounts is the view of the host application's user accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiffu/verimail/lib/models"
)

var ErrAccountNotFound = errors.New("account not found")

// CancelMethod selects what cancelling an account does to it.
type CancelMethod string

const (
	CancelBlock  CancelMethod = "block"
	CancelDelete CancelMethod = "delete"
)

func ParseCancelMethod(s string) (CancelMethod, error) {
	switch m := CancelMethod(s); m {
	case CancelBlock, CancelDelete:
		return m, nil
	default:
		return "", fmt.Errorf("unknown account cancel method %q", s)
	}
}

type Accounts interface {
	Load(ctx context.Context, userID uint) (*models.Account, error)
	RolesOf(ctx context.Context, userID uint) ([]string, error)
	Block(ctx context.Context, userID uint) error
	Cancel(ctx context.Context, userID uint, method CancelMethod) error

	// FindByNameOrEmail matches e-mail first, then account name.
	FindByNameOrEmail(ctx context.Context, nameOrEmail string) (*models.Account, error)
}
