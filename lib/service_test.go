package lib

import (
	"context"
	"testing"

	"github.com/fiffu/verimail/config"
	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/accounts/accountstest"
	"github.com/fiffu/verimail/lib/clock"
	"github.com/fiffu/verimail/lib/escalation"
	"github.com/fiffu/verimail/lib/models"
	"github.com/fiffu/verimail/lib/store"
	"github.com/fiffu/verimail/lib/testutil"
	"github.com/fiffu/verimail/lib/token"
	"github.com/fiffu/verimail/lib/verification"
	"github.com/fiffu/verimail/queue"
	"github.com/fiffu/verimail/senders"
	"github.com/fiffu/verimail/senders/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, key email.TemplateKey, recipient, locale string, params email.Params) (bool, error) {
	args := m.Called(ctx, key, recipient, locale, params)
	return args.Bool(0), args.Error(1)
}

type fixture struct {
	svc      *Service
	store    *store.Store
	accounts *accountstest.Mock
	mailer   *mockMailer
	broker   *queue.Memory
	clock    *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	log := zaptest.NewLogger(t)
	cfg, err := config.NewConfig(log)
	require.NoError(t, err)
	cfg.ServerDNS = "https://example.com"
	cfg.Site.Mail = "admin@example.com"
	cfg.Verification.SkipRoles = []string{"administrator"}

	db := testutil.OpenDB(t)
	clk := clock.Unix(1000)
	st := store.New(db, clk)
	accts := &accountstest.Mock{}
	mailer := &mockMailer{}
	broker := queue.NewMemory(log)
	t.Cleanup(func() {
		broker.Close()
		accts.AssertExpectations(t)
		mailer.AssertExpectations(t)
	})

	pol := cfg.Policy()
	engine := verification.NewEngine(st, accts, token.NewCodec(cfg.Salt()), pol, clk, log)
	scheduler := escalation.NewScheduler(st, broker, pol, clk, log, escalation.SettingsFrom(cfg))

	svc := NewService(cfg, log, engine, st, accts, mailer, scheduler)
	return &fixture{svc, st, accts, mailer, broker, clk}
}

func TestVerify_BlockedNotifiesAdministrator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Create(ctx, 2, false))

	link := f.svc.engine.BuildVerificationLink(2)
	f.accounts.On("Load", mock.Anything, uint(2)).Return(accountstest.Blocked(2), nil)
	f.mailer.On("Send", mock.Anything, email.VerifyBlocked, "admin@example.com", "en",
		mock.MatchedBy(func(p email.Params) bool { return p.EditURL == "https://example.com/user/2/edit" }),
	).Return(true, nil)

	outcome, err := f.svc.Verify(ctx, verification.Attempt{UserID: 2, IssuedAt: link.IssuedAt, Signature: link.Signature}, models.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeVerifiedButBlocked, outcome)
}

func TestVerify_BlockedNotificationFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	core, logs := observer.New(zapcore.InfoLevel)
	f.svc.verifyLink.log = zap.New(core)
	require.NoError(t, f.store.Create(ctx, 2, false))

	link := f.svc.engine.BuildVerificationLink(2)
	f.accounts.On("Load", mock.Anything, uint(2)).Return(accountstest.Blocked(2), nil)
	f.mailer.On("Send", mock.Anything, email.VerifyBlocked, "admin@example.com", "en", mock.Anything).
		Return(false, senders.ErrMailSendFailed)

	outcome, err := f.svc.Verify(ctx, verification.Attempt{UserID: 2, IssuedAt: link.IssuedAt, Signature: link.Signature}, models.Anonymous)
	require.NoError(t, err, "a failed notification does not fail the verification")
	assert.Equal(t, models.OutcomeVerifiedButBlocked, outcome)

	entries := logs.FilterMessage("Administrator not notified of blocked account verification").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 2, entries[0].ContextMap()["user_id"])
}

func TestVerify_Active(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Create(ctx, 2, false))

	link := f.svc.engine.BuildVerificationLink(2)
	f.accounts.On("Load", mock.Anything, uint(2)).Return(accountstest.Active(2), nil).Once()

	outcome, err := f.svc.Verify(ctx, verification.Attempt{UserID: 2, IssuedAt: link.IssuedAt, Signature: link.Signature}, models.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeVerified, outcome)
}

func TestRequestVerification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Create(ctx, 2, false))
	require.NoError(t, f.store.Create(ctx, 3, true))

	f.accounts.On("FindByNameOrEmail", mock.Anything, "two").Return(accountstest.Active(2), nil)
	f.accounts.On("FindByNameOrEmail", mock.Anything, "three").Return(accountstest.Active(3), nil)
	f.accounts.On("FindByNameOrEmail", mock.Anything, "nobody").Return(nil, accounts.ErrAccountNotFound)
	f.mailer.On("Send", mock.Anything, email.Verify, "active@example.com", "en",
		mock.MatchedBy(func(p email.Params) bool { return p.VerifyURL == f.svc.Link(2, false) }),
	).Return(true, nil).Once()

	assert.NoError(t, f.svc.RequestVerification(ctx, "two"))
	assert.NoError(t, f.svc.RequestVerification(ctx, "three"))
	assert.NoError(t, f.svc.RequestVerification(ctx, "nobody"))
}

func TestProvisionAndRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	admin := accountstest.Active(4)
	admin.Roles = []models.RoleAssignment{{UserID: 4, Role: "administrator"}}
	f.accounts.On("Load", mock.Anything, uint(2)).Return(accountstest.Active(2), nil)
	f.accounts.On("Load", mock.Anything, uint(4)).Return(admin, nil)
	f.accounts.On("Load", mock.Anything, uint(5)).Return(nil, accounts.ErrAccountNotFound)

	rec, err := f.svc.Provision(ctx, 2, false)
	require.NoError(t, err)
	assert.False(t, rec.Verified())

	rec, err = f.svc.Provision(ctx, 4, false)
	require.NoError(t, err)
	assert.True(t, rec.Verified())

	_, err = f.svc.Provision(ctx, 2, true)
	assert.ErrorIs(t, err, store.ErrDuplicateRecord)
	_, err = f.svc.Provision(ctx, 5, false)
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)

	status, err := f.svc.Status(ctx, 2)
	require.NoError(t, err)
	assert.True(t, status.Needed)

	n, err := f.svc.CountUnverified(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, f.svc.Remove(ctx, 2))
	_, err = f.svc.Status(ctx, 2)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Create(ctx, 2, false))

	f.clock.SetUnix(1000 + 43200) // default reminder interval
	res, err := f.svc.RunTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res["remind"].Selected)
	assert.Len(t, f.broker.Drain(queue.RemindAccount), 1)
}

func TestLink(t *testing.T) {
	f := newFixture(t)
	assert.Regexp(t, `^https://example\.com/verify/7/1000/[A-Za-z0-9_-]+$`, f.svc.Link(7, false))
	assert.Regexp(t, `^https://example\.com/verify/extended/7/1000/[A-Za-z0-9_-]+$`, f.svc.Link(7, true))
}
