package clock

import (
	"sync"
	"time"
)

// Clock is the single source of "now" for the verification pipeline.
type Clock interface {
	Now() time.Time
}

type system struct{}

func (system) Now() time.Time { return time.Now().UTC() }

func New() Clock { return system{} }

// Fake is a manually driven clock for tests and dry runs.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(now time.Time) *Fake { return &Fake{now: now} }

// Unix returns a fake clock set to the given unix second.
func Unix(sec int64) *Fake { return NewFake(time.Unix(sec, 0).UTC()) }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *Fake) SetUnix(sec int64) { f.Set(time.Unix(sec, 0).UTC()) }

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
