// Package escalation selects unverified accounts that are due for a reminder,
// a block or deletion and enqueues them in fixed size batches.
package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fiffu/verimail/config"
	"github.com/fiffu/verimail/lib/clock"
	"github.com/fiffu/verimail/lib/policy"
	"github.com/fiffu/verimail/lib/store"
	"github.com/fiffu/verimail/queue"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Store interface {
	QueryCohort(ctx context.Context, c store.Criteria) ([]uint, error)
}

type Settings struct {
	WakeupInterval  time.Duration
	TickTimeout     time.Duration
	BlockBatchSize  int
	RemindBatchSize int
	DeleteBatchSize int
}

func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		WakeupInterval:  cfg.Scheduler.WakeupInterval,
		TickTimeout:     cfg.Scheduler.TickTimeout,
		BlockBatchSize:  cfg.Scheduler.BlockBatchSize,
		RemindBatchSize: cfg.Scheduler.RemindBatchSize,
		DeleteBatchSize: cfg.Scheduler.DeleteBatchSize,
	}
}

type Scheduler struct {
	store    Store
	broker   queue.Broker
	policy   *policy.Policy
	clock    clock.Clock
	log      *zap.Logger
	settings Settings

	mu         sync.Mutex
	alarmClock *alarmClock
}

const defaultBatchSize = 10

func NewScheduler(st Store, broker queue.Broker, pol *policy.Policy, clk clock.Clock, log *zap.Logger, settings Settings) *Scheduler {
	for _, size := range []*int{&settings.BlockBatchSize, &settings.RemindBatchSize, &settings.DeleteBatchSize} {
		if *size <= 0 {
			*size = defaultBatchSize
		}
	}
	if settings.WakeupInterval <= 0 {
		settings.WakeupInterval = time.Hour
	}
	if settings.TickTimeout <= 0 {
		settings.TickTimeout = 5 * time.Minute
	}
	return &Scheduler{
		store:      st,
		broker:     broker,
		policy:     pol,
		clock:      clk,
		log:        log,
		settings:   settings,
		alarmClock: newAlarmClock(settings.WakeupInterval),
	}
}

// RunOnSchedule ticks once at startup and then every wakeup interval.
func RunOnSchedule(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			s.log.Sugar().Info("Trying to stop scheduler")
			s.Stop()
			return nil
		},
	})
}

func (s *Scheduler) Start(ctx context.Context) {
	c := s.alarmClock.Start(ctx)

	go func() {
		for t := range c {
			s.handleWakeup(t)
		}
	}()
}

func (s *Scheduler) Stop() {
	s.alarmClock.Stop()
	s.log.Sugar().Info("Scheduler stopped")
}

func (s *Scheduler) handleWakeup(t time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), s.settings.TickTimeout)
	defer cancel()

	if _, err := s.Tick(ctx); err != nil {
		s.log.Sugar().Warnw("Tick finished with errors", "err", err)
	}
	elapsed := time.Now().UTC().Sub(t)
	s.log.Sugar().Infow("Scheduler completed", "elapsed_msecs", int(elapsed.Milliseconds()))
}

type plan struct {
	cohort    store.Cohort
	queue     queue.Name
	interval  int64
	batchSize int
}

func (s *Scheduler) plans() []plan {
	reminderInterval := s.policy.ReminderInterval()
	plans := []plan{
		{store.CohortBlock, queue.BlockAccount, reminderInterval, s.settings.BlockBatchSize},
		{store.CohortRemind, queue.RemindAccount, reminderInterval, s.settings.RemindBatchSize},
	}
	if s.policy.ExtendedPeriodEnabled() {
		plans = append(plans, plan{store.CohortDelete, queue.DeleteAccount, s.policy.ExtendedValidateInterval(), s.settings.DeleteBatchSize})
	}
	return plans
}

// Tick runs every cohort once. Cohorts are independent: a failing cohort is
// logged and reported in the returned error, the rest still run. Ticks never
// overlap.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().Unix()
	result := TickResult{}

	var errs error
	for _, p := range s.plans() {
		res := s.runCohort(ctx, now, p)
		result.record(string(p.cohort), string(p.queue), res)

		if res.Err != nil {
			s.log.Sugar().Errorw("Cohort skipped", "cohort", p.cohort, "err", res.Err)
			errs = multierr.Append(errs, fmt.Errorf("cohort %s: %w", p.cohort, res.Err))
			continue
		}
		if res.Selected > 0 {
			s.log.Sugar().Infow(
				fmt.Sprintf("Enqueued %d users", res.Selected),
				"cohort", p.cohort,
				"queue", p.queue,
				"batches", res.Batches,
			)
		}
	}
	return result, errs
}

func (s *Scheduler) runCohort(ctx context.Context, now int64, p plan) CohortResult {
	ids, err := s.store.QueryCohort(ctx, store.Criteria{
		Cohort:       p.cohort,
		Now:          now,
		Interval:     p.interval,
		NumReminders: s.policy.NumReminders(),
		SkipRoles:    s.policy.SkipRoles(),
	})
	if err != nil {
		return CohortResult{Err: err}
	}

	res := CohortResult{Selected: len(ids)}
	for _, batch := range chunk(ids, p.batchSize) {
		if err := s.broker.Enqueue(ctx, p.queue, batch); err != nil {
			res.Err = err
			return res
		}
		res.Batches++
	}
	return res
}
