package models

import "fmt"

// Link is the signed triple embedded into a verification URL.
type Link struct {
	UserID    uint
	IssuedAt  int64
	Signature string
	Extended  bool
}

func (l Link) Path() string {
	if l.Extended {
		return fmt.Sprintf("/verify/extended/%d/%d/%s", l.UserID, l.IssuedAt, l.Signature)
	}
	return fmt.Sprintf("/verify/%d/%d/%s", l.UserID, l.IssuedAt, l.Signature)
}

func (l Link) URL(base string) string {
	return base + l.Path()
}

// Requester describes who followed a verification link.
type Requester struct {
	Authenticated bool
	UserID        uint
}

var Anonymous = Requester{}

// Outcome classifies a verification attempt. It carries no side effects.
type Outcome int

const (
	OutcomeExpired Outcome = iota + 1
	OutcomeMismatch
	OutcomeAlreadyVerified
	OutcomeInvalidSignature
	OutcomeVerifiedButBlocked
	OutcomeVerified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExpired:
		return "expired"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeAlreadyVerified:
		return "already_verified"
	case OutcomeInvalidSignature:
		return "invalid_signature"
	case OutcomeVerifiedButBlocked:
		return "verified_but_blocked"
	case OutcomeVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// Failed reports whether the requester has to ask for a new link.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeExpired, OutcomeMismatch, OutcomeInvalidSignature:
		return true
	}
	return false
}
