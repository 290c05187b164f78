package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fiffu/verimail/lib/clock"
	"github.com/fiffu/verimail/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SuperUserID is never selected by cohort queries.
const SuperUserID = 1

type Cohort string

const (
	CohortBlock  Cohort = "block"
	CohortRemind Cohort = "remind"
	CohortDelete Cohort = "delete"
)

// Criteria selects unverified records whose last reminder is at least Interval
// seconds before Now.
type Criteria struct {
	Cohort       Cohort
	Now          int64
	Interval     int64
	NumReminders int
	SkipRoles    []string
}

// RoleLookup resolves an account's roles when the role relation does not live
// in the same database as the verification table.
type RoleLookup func(ctx context.Context, userID uint) ([]string, error)

type Option func(*Store)

func WithRoleLookup(fn RoleLookup) Option {
	return func(s *Store) { s.rolesOf = fn }
}

type Store struct {
	db      *gorm.DB
	clock   clock.Clock
	rolesOf RoleLookup
}

func New(db *gorm.DB, clk clock.Clock, opts ...Option) *Store {
	s := &Store{db: db, clock: clk}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (s *Store) now() int64 { return s.clock.Now().Unix() }

func (s *Store) Load(ctx context.Context, userID uint) (*models.VerificationRecord, error) {
	var rec models.VerificationRecord
	tx := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, unavailable(err)
	}
	return &rec, nil
}

// Create inserts a fresh record. An existing record is never overwritten.
func (s *Store) Create(ctx context.Context, userID uint, verifiedNow bool) error {
	now := s.now()
	rec := &models.VerificationRecord{
		UserID:         userID,
		LastReminderAt: now,
	}
	if verifiedNow {
		rec.VerifiedAt = now
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if err := tx.Error; err != nil {
		return unavailable(err)
	}
	if tx.RowsAffected == 0 {
		return ErrDuplicateRecord
	}
	return nil
}

// MarkVerified stamps the record as verified. Repeated calls keep the first timestamp.
func (s *Store) MarkVerified(ctx context.Context, userID uint) error {
	tx := s.db.WithContext(ctx).
		Model(&models.VerificationRecord{}).
		Where("user_id = ? AND verified_at = 0", userID).
		Update("verified_at", s.now())
	if err := tx.Error; err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID uint) error {
	tx := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.VerificationRecord{})
	if err := tx.Error; err != nil {
		return unavailable(err)
	}
	return nil
}

// IncrementReminder bumps the reminder counter in a single statement so that
// concurrent workers cannot lose updates.
func (s *Store) IncrementReminder(ctx context.Context, userID uint, now int64) error {
	tx := s.db.WithContext(ctx).
		Model(&models.VerificationRecord{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{
			"reminder_count":   gorm.Expr("reminder_count + ?", 1),
			"last_reminder_at": gorm.Expr("CASE WHEN last_reminder_at > ? THEN last_reminder_at ELSE ? END", now, now),
		})
	if err := tx.Error; err != nil {
		return unavailable(err)
	}
	return nil
}

// QueryCohort returns the user ids matching c in ascending order.
func (s *Store) QueryCohort(ctx context.Context, c Criteria) ([]uint, error) {
	q := s.db.WithContext(ctx).
		Model(&models.VerificationRecord{}).
		Where("verified_at = 0").
		Where("user_id > ?", SuperUserID).
		Where("last_reminder_at <= ?", c.Now-c.Interval)

	switch c.Cohort {
	case CohortBlock:
		q = q.Where("reminder_count >= ?", c.NumReminders)
	case CohortRemind:
		q = q.Where("reminder_count < ?", c.NumReminders)
	case CohortDelete:
	default:
		return nil, fmt.Errorf("unknown cohort %q", c.Cohort)
	}

	var ids []uint
	tx := q.Scopes(s.withoutSkipRoles(c.SkipRoles)).Order("user_id").Pluck("user_id", &ids)
	if err := tx.Error; err != nil {
		return nil, unavailable(err)
	}
	return s.filterSkipRoles(ctx, ids, c.SkipRoles)
}

// NeedsVerification reports whether userID has an unverified record and holds
// none of skipRoles. It shares the cohort queries' role filter.
func (s *Store) NeedsVerification(ctx context.Context, userID uint, skipRoles []string) (bool, error) {
	var ids []uint
	tx := s.db.WithContext(ctx).
		Model(&models.VerificationRecord{}).
		Where("verified_at = 0").
		Where("user_id = ?", userID).
		Scopes(s.withoutSkipRoles(skipRoles)).
		Pluck("user_id", &ids)
	if err := tx.Error; err != nil {
		return false, unavailable(err)
	}
	ids, err := s.filterSkipRoles(ctx, ids, skipRoles)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (s *Store) CountUnverified(ctx context.Context) (int64, error) {
	var n int64
	tx := s.db.WithContext(ctx).Model(&models.VerificationRecord{}).Where("verified_at = 0").Count(&n)
	if err := tx.Error; err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// withoutSkipRoles excludes accounts holding any skip role. Accounts without a
// role row at all pass the filter.
func (s *Store) withoutSkipRoles(skipRoles []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(skipRoles) == 0 || s.rolesOf != nil {
			return db
		}
		return db.Where(
			"NOT EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = user_email_verification.user_id AND ur.role IN ?)",
			skipRoles,
		)
	}
}

func (s *Store) filterSkipRoles(ctx context.Context, ids []uint, skipRoles []string) ([]uint, error) {
	if len(skipRoles) == 0 || s.rolesOf == nil {
		return ids, nil
	}
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		roles, err := s.rolesOf(ctx, id)
		if err != nil {
			return nil, unavailable(err)
		}
		if !slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(skipRoles, r) }) {
			out = append(out, id)
		}
	}
	return out, nil
}
