// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/fiffu/verimail/lib/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns a migrated in-memory SQLite database private to t.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// SeedAccount inserts an account holding roles and returns it.
func SeedAccount(t testing.TB, db *gorm.DB, id uint, status models.AccountStatus, roles ...string) *models.Account {
	t.Helper()

	acct := &models.Account{
		ID:     id,
		Name:   fmt.Sprintf("user%d", id),
		Email:  fmt.Sprintf("user%d@example.com", id),
		Locale: "en",
		Status: status,
	}
	for _, r := range roles {
		acct.Roles = append(acct.Roles, models.RoleAssignment{UserID: id, Role: r})
	}
	require.NoError(t, db.Create(acct).Error)
	return acct
}
