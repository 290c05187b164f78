package app

import (
	"github.com/fiffu/verimail/lib"
	"github.com/fiffu/verimail/lib/models"
)

// OutcomeView is what a person following a verification link gets back.
type OutcomeView struct {
	Outcome string `json:"outcome"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

const (
	levelStatus  = "status"
	levelWarning = "warning"
	levelError   = "error"
)

func (view OutcomeView) From(o models.Outcome) OutcomeView {
	view.Outcome = o.String()
	switch o {
	case models.OutcomeExpired:
		view.Level, view.Message = levelError, "Your verification link has expired. Please request a new one."
	case models.OutcomeMismatch:
		view.Level, view.Message = levelError, "Your verification link was created for a different email address."
	case models.OutcomeAlreadyVerified:
		view.Level, view.Message = levelStatus, "Email is already verified."
	case models.OutcomeVerifiedButBlocked:
		view.Level, view.Message = levelWarning, "Thank you for verifying your email address. "+
			"Your account was blocked before you were able to verify it, an administrator has been notified."
	case models.OutcomeVerified:
		view.Level, view.Message = levelStatus, "Thank you for verifying your email address."
	default:
		view.Level, view.Message = levelError, "Your verification could not be processed."
	}
	return view
}

type VerificationView struct {
	UserID         uint  `json:"user_id"`
	Verified       bool  `json:"verified"`
	VerifiedAt     int64 `json:"verified_at"`
	LastReminderAt int64 `json:"last_reminder_at"`
	ReminderCount  int   `json:"reminder_count"`
	Needed         *bool `json:"needed,omitempty"`
}

func (view VerificationView) From(rec *models.VerificationRecord) VerificationView {
	return VerificationView{
		UserID:         rec.UserID,
		Verified:       rec.Verified(),
		VerifiedAt:     rec.VerifiedAt,
		LastReminderAt: rec.LastReminderAt,
		ReminderCount:  rec.ReminderCount,
	}
}

func (view VerificationView) FromStatus(status *lib.VerificationStatus) VerificationView {
	view = view.From(status.Record)
	view.Needed = &status.Needed
	return view
}
