package models

// VerificationRecord tracks a single account's verification state and reminder history.
// Timestamps are unix seconds; VerifiedAt == 0 means the address is not verified yet.
type VerificationRecord struct {
	UserID         uint  `gorm:"primaryKey;autoIncrement:false"`
	VerifiedAt     int64 `gorm:"not null;default:0;index"`
	LastReminderAt int64 `gorm:"not null;default:0"`
	ReminderCount  int   `gorm:"not null;default:0"`
}

func (VerificationRecord) TableName() string { return "user_email_verification" }

func (r *VerificationRecord) Verified() bool { return r.VerifiedAt != 0 }
