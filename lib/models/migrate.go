package models

import "gorm.io/gorm"

// All lists every table owned by the service, in migration order.
func All() []any {
	return []any{
		&Account{},
		&RoleAssignment{},
		&VerificationRecord{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
