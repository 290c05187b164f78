package policy

import (
	"slices"
	"strings"
)

const (
	defaultMailSubject = "Verify your email address at [site:name]"
	defaultMailBody    = `<p>Hello [user:display-name],</p>
<p>Please verify your email address by following this link: <a href="[user:verify-email]">[user:verify-email]</a></p>
<p>Accounts that are not verified in time are blocked.</p>`
	defaultExtendedMailSubject = "Your account at [site:name] has been blocked"
	defaultExtendedMailBody    = `<p>Hello [user:display-name],</p>
<p>Your account was blocked because your email address was not verified.</p>
<p>You can still verify it and reactivate the account: <a href="[user:verify-email-extended]">[user:verify-email-extended]</a></p>
<p>Accounts that stay unverified are deleted.</p>`
)

// Settings is the configuration snapshot the policy is evaluated against.
// Intervals are in seconds.
type Settings struct {
	ValidateInterval         int64    `env:"VALIDATE_INTERVAL" envDefault:"86400"`
	NumReminders             int      `env:"NUM_REMINDERS" envDefault:"1"`
	ExtendedValidateInterval int64    `env:"EXTENDED_VALIDATE_INTERVAL" envDefault:"604800"`
	SkipRoles                []string `env:"SKIP_ROLES" envSeparator:","`
	ExtendedEnabled          bool     `env:"EXTENDED_ENABLE" envDefault:"false"`

	MailSubject         string `env:"MAIL_SUBJECT"`
	MailBody            string `env:"MAIL_BODY"`
	ExtendedMailSubject string `env:"EXTENDED_MAIL_SUBJECT"`
	ExtendedMailBody    string `env:"EXTENDED_MAIL_BODY"`
}

// Policy exposes typed, derived views of Settings. It performs no I/O.
type Policy struct {
	s Settings
}

func New(s Settings) *Policy {
	s.SkipRoles = normalizeRoles(s.SkipRoles)
	return &Policy{s: s}
}

func (p *Policy) ValidateInterval() int64 { return p.s.ValidateInterval }

func (p *Policy) NumReminders() int {
	if p.s.NumReminders < 0 {
		return 0
	}
	return p.s.NumReminders
}

// ReminderInterval spreads the reminders evenly over the validity window:
// ceil(validateInterval / (numReminders + 1)).
func (p *Policy) ReminderInterval() int64 {
	slots := int64(p.NumReminders()) + 1
	v := p.s.ValidateInterval
	if v <= 0 {
		return 0
	}
	return (v + slots - 1) / slots
}

func (p *Policy) ExtendedValidateInterval() int64 { return p.s.ExtendedValidateInterval }

func (p *Policy) ExtendedPeriodEnabled() bool { return p.s.ExtendedEnabled }

func (p *Policy) SkipRoles() []string { return slices.Clone(p.s.SkipRoles) }

// HasSkipRole reports whether any of roles exempts its holder from verification.
func (p *Policy) HasSkipRole(roles []string) bool {
	for _, r := range roles {
		if slices.Contains(p.s.SkipRoles, r) {
			return true
		}
	}
	return false
}

func (p *Policy) MailSubject() string {
	return orDefault(p.s.MailSubject, defaultMailSubject)
}

func (p *Policy) MailBody() string {
	return orDefault(p.s.MailBody, defaultMailBody)
}

func (p *Policy) ExtendedMailSubject() string {
	return orDefault(p.s.ExtendedMailSubject, defaultExtendedMailSubject)
}

func (p *Policy) ExtendedMailBody() string {
	return orDefault(p.s.ExtendedMailBody, defaultExtendedMailBody)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}
