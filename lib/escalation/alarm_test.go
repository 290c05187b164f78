package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func receive(t *testing.T, c <-chan time.Time) bool {
	t.Helper()
	select {
	case _, ok := <-c:
		return ok
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire")
		return false
	}
}

func TestAlarmClock_Restart(t *testing.T) {
	a := newAlarmClock(5 * time.Millisecond)

	c := a.Start(context.Background())
	assert.True(t, receive(t, c), "fires immediately")
	assert.True(t, receive(t, c))
	a.Stop()
	_, ok := <-c
	assert.False(t, ok, "closed after stop")

	assert.NotPanics(t, func() { c = a.Start(context.Background()) })
	assert.True(t, receive(t, c))
	a.Stop()
	a.Stop()
}
