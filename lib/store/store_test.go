package store

import (
	"context"
	"errors"
	"testing"

	"github.com/fiffu/verimail/lib/clock"
	"github.com/fiffu/verimail/lib/models"
	"github.com/fiffu/verimail/lib/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newStore(t *testing.T, opts ...Option) (*Store, *gorm.DB, *clock.Fake) {
	db := testutil.OpenDB(t)
	clk := clock.Unix(1000)
	return New(db, clk, opts...), db, clk
}

func TestCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	require.NoError(t, s.Create(ctx, 2, false))
	require.NoError(t, s.Create(ctx, 3, true))

	rec, err := s.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationRecord{UserID: 2, VerifiedAt: 0, LastReminderAt: 1000}, *rec)

	rec, err = s.Load(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, rec.VerifiedAt)
	assert.True(t, rec.Verified())

	_, err = s.Load(ctx, 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_DuplicateDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newStore(t)

	require.NoError(t, s.Create(ctx, 2, false))
	require.NoError(t, s.IncrementReminder(ctx, 2, 1500))

	clk.SetUnix(2000)
	err := s.Create(ctx, 2, true)
	assert.ErrorIs(t, err, ErrDuplicateRecord)

	rec, err := s.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ReminderCount)
	assert.EqualValues(t, 1500, rec.LastReminderAt)
	assert.EqualValues(t, 0, rec.VerifiedAt)
}

func TestMarkVerified_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newStore(t)
	require.NoError(t, s.Create(ctx, 2, false))

	clk.SetUnix(1200)
	require.NoError(t, s.MarkVerified(ctx, 2))
	clk.SetUnix(1300)
	require.NoError(t, s.MarkVerified(ctx, 2))

	rec, err := s.Load(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1200, rec.VerifiedAt)

	needed, err := s.NeedsVerification(ctx, 2, nil)
	require.NoError(t, err)
	assert.False(t, needed)

	assert.NoError(t, s.MarkVerified(ctx, 99), "absent record is a no-op")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)
	require.NoError(t, s.Create(ctx, 2, false))

	require.NoError(t, s.Delete(ctx, 2))
	_, err := s.Load(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, 2))
}

func TestIncrementReminder(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)
	require.NoError(t, s.Create(ctx, 2, false))

	require.NoError(t, s.IncrementReminder(ctx, 2, 5000))
	require.NoError(t, s.IncrementReminder(ctx, 2, 4000))

	rec, err := s.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ReminderCount)
	assert.EqualValues(t, 5000, rec.LastReminderAt, "last reminder never moves backwards")
}

func TestQueryCohort(t *testing.T) {
	ctx := context.Background()
	s, db, _ := newStore(t)

	records := []models.VerificationRecord{
		{UserID: 1, LastReminderAt: 0},                                  // super user
		{UserID: 2, LastReminderAt: 0},                                  // remind
		{UserID: 3, LastReminderAt: 0, ReminderCount: 2},                // block
		{UserID: 4, LastReminderAt: 0, VerifiedAt: 50},                  // verified
		{UserID: 5, LastReminderAt: 950},                                // too recent
		{UserID: 6, LastReminderAt: 900, ReminderCount: 1},              // boundary, remind
		{UserID: 7, LastReminderAt: 0, ReminderCount: 3},                // block
		{UserID: 8, LastReminderAt: 0},                                  // skipped by role
		{UserID: 9, LastReminderAt: 0, ReminderCount: 2, VerifiedAt: 1}, // verified
	}
	require.NoError(t, db.Create(&records).Error)
	testutil.SeedAccount(t, db, 8, models.AccountActive, "administrator")
	testutil.SeedAccount(t, db, 2, models.AccountActive, "authenticated")

	base := Criteria{Now: 1000, Interval: 100, NumReminders: 2, SkipRoles: []string{"administrator"}}

	tests := []struct {
		cohort Cohort
		want   []uint
	}{
		{CohortRemind, []uint{2, 6}},
		{CohortBlock, []uint{3, 7}},
		{CohortDelete, []uint{2, 3, 6, 7}},
	}
	for _, tt := range tests {
		t.Run(string(tt.cohort), func(t *testing.T) {
			c := base
			c.Cohort = tt.cohort
			got, err := s.QueryCohort(ctx, c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("no skip roles", func(t *testing.T) {
		c := base
		c.Cohort = CohortRemind
		c.SkipRoles = nil
		got, err := s.QueryCohort(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, []uint{2, 6, 8}, got)
	})

	t.Run("unknown cohort", func(t *testing.T) {
		c := base
		c.Cohort = "purge"
		_, err := s.QueryCohort(ctx, c)
		assert.Error(t, err)
	})
}

func TestQueryCohort_RoleLookup(t *testing.T) {
	ctx := context.Background()
	roles := map[uint][]string{3: {"editor"}, 4: {"authenticated"}}
	lookup := func(_ context.Context, id uint) ([]string, error) { return roles[id], nil }
	s, db, _ := newStore(t, WithRoleLookup(lookup))

	require.NoError(t, db.Create(&[]models.VerificationRecord{
		{UserID: 2}, {UserID: 3}, {UserID: 4},
	}).Error)

	got, err := s.QueryCohort(ctx, Criteria{Cohort: CohortDelete, Now: 1000, Interval: 10, SkipRoles: []string{"editor"}})
	require.NoError(t, err)
	assert.Equal(t, []uint{2, 4}, got)

	needed, err := s.NeedsVerification(ctx, 3, []string{"editor"})
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestQueryCohort_RoleLookupFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("accounts down")
	s, db, _ := newStore(t, WithRoleLookup(func(context.Context, uint) ([]string, error) { return nil, boom }))
	require.NoError(t, db.Create(&models.VerificationRecord{UserID: 2}).Error)

	_, err := s.QueryCohort(ctx, Criteria{Cohort: CohortDelete, Now: 1000, SkipRoles: []string{"editor"}})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestNeedsVerification(t *testing.T) {
	ctx := context.Background()
	s, db, _ := newStore(t)
	require.NoError(t, s.Create(ctx, 2, false))
	require.NoError(t, s.Create(ctx, 3, false))
	testutil.SeedAccount(t, db, 3, models.AccountActive, "administrator")

	skip := []string{"administrator"}
	for id, want := range map[uint]bool{2: true, 3: false, 4: false} {
		got, err := s.NeedsVerification(ctx, id, skip)
		require.NoError(t, err)
		assert.Equal(t, want, got, "user %d", id)
	}

	got, err := s.NeedsVerification(ctx, 3, nil)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCountUnverified(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)
	require.NoError(t, s.Create(ctx, 2, false))
	require.NoError(t, s.Create(ctx, 3, true))
	require.NoError(t, s.Create(ctx, 4, false))

	n, err := s.CountUnverified(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	s, db, _ := newStore(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = s.Load(ctx, 2)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, s.Create(ctx, 2, false), ErrStoreUnavailable)
	assert.ErrorIs(t, s.MarkVerified(ctx, 2), ErrStoreUnavailable)
	assert.ErrorIs(t, s.Delete(ctx, 2), ErrStoreUnavailable)
	assert.ErrorIs(t, s.IncrementReminder(ctx, 2, 1), ErrStoreUnavailable)
	_, err = s.QueryCohort(ctx, Criteria{Cohort: CohortBlock})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
