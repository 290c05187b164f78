package models

import (
	"slices"
	"time"
)

type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
)

// Account is the host application's user as seen by the verification pipeline.
type Account struct {
	ID        uint          `gorm:"primaryKey"`
	Name      string        `gorm:"uniqueIndex"`
	Email     string        `gorm:"index"`
	Locale    string
	Status    AccountStatus `gorm:"index;not null;default:'active'"`
	CreatedAt time.Time

	Roles []RoleAssignment `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (a *Account) Active() bool  { return a.Status == AccountActive }
func (a *Account) Blocked() bool { return a.Status == AccountBlocked }

func (a *Account) RoleNames() []string {
	names := make([]string, 0, len(a.Roles))
	for _, r := range a.Roles {
		names = append(names, r.Role)
	}
	return names
}

func (a *Account) HasRole(role string) bool {
	return slices.Contains(a.RoleNames(), role)
}

// RoleAssignment is the user_roles relation. Accounts without any row hold no role.
type RoleAssignment struct {
	UserID uint   `gorm:"primaryKey;autoIncrement:false"`
	Role   string `gorm:"primaryKey"`
}

func (RoleAssignment) TableName() string { return "user_roles" }
