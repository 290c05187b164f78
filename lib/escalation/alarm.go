package escalation

import (
	"context"
	"sync"
	"time"
)

// alarmClock fires once immediately and then on every wakeup interval until
// stopped. It can be started again after Stop.
type alarmClock struct {
	interval time.Duration
	cancel   func()
	wg       sync.WaitGroup
}

func newAlarmClock(wakeupInterval time.Duration) *alarmClock {
	return &alarmClock{interval: wakeupInterval}
}

// Start stops any previous run and returns a fresh channel for this one.
func (a *alarmClock) Start(ctx context.Context) <-chan time.Time {
	a.Stop()

	c := make(chan time.Time)
	ctx, a.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(a.interval)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(c)
		defer ticker.Stop()

		next := time.Now().UTC()
		for {
			select {
			case c <- next:
			case <-ctx.Done():
				return
			}

			select {
			case t := <-ticker.C:
				next = t.UTC()
			case <-ctx.Done():
				return
			}
		}
	}()

	return c
}

func (a *alarmClock) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}
