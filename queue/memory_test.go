package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemory_EnqueueAndDrain(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(zaptest.NewLogger(t))
	defer b.Close()

	require.NoError(t, b.Enqueue(ctx, BlockAccount, []uint{2, 3}))
	require.NoError(t, b.Enqueue(ctx, BlockAccount, []uint{4}))
	require.NoError(t, b.Enqueue(ctx, RemindAccount, []uint{5}))

	items := b.Drain(BlockAccount)
	require.Len(t, items, 2)
	assert.Equal(t, []uint{2, 3}, items[0].UserIDs)
	assert.Equal(t, []uint{4}, items[1].UserIDs)
	assert.Equal(t, BlockAccount, items[0].Queue)
	assert.NotEqual(t, items[0].ID, items[1].ID)

	assert.Len(t, b.Drain(RemindAccount), 1)
	assert.Empty(t, b.Drain(DeleteAccount))

	err := b.Enqueue(ctx, "purge_account", []uint{1})
	assert.ErrorIs(t, err, ErrUnknownQueue)
}

func TestMemory_ConsumeRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewMemory(zaptest.NewLogger(t))
	defer b.Close()

	var mu sync.Mutex
	attempts := map[uint]int{}
	done := make(chan struct{}, 8)

	err := b.Consume(ctx, RemindAccount, func(_ context.Context, item Item) error {
		mu.Lock()
		defer mu.Unlock()
		id := item.UserIDs[0]
		attempts[id]++
		done <- struct{}{}
		if id == 7 {
			return errors.New("always fails")
		}
		if attempts[id] < 2 {
			return errors.New("fails once")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Enqueue(ctx, RemindAccount, []uint{6}))
	require.NoError(t, b.Enqueue(ctx, RemindAccount, []uint{7}))

	for i := 0; i < 2+maxDeliver; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts[6])
	assert.Equal(t, maxDeliver, attempts[7])
}

func TestMemory_Closed(t *testing.T) {
	b := NewMemory(zaptest.NewLogger(t))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	err := b.Enqueue(context.Background(), BlockAccount, []uint{1})
	assert.ErrorIs(t, err, ErrBrokerClosed)
}

func TestStartWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewMemory(zaptest.NewLogger(t))
	defer b.Close()

	got := make(chan Item, 1)
	err := StartWorkers(ctx, b, Handlers{
		DeleteAccount: func(_ context.Context, item Item) error {
			got <- item
			return nil
		},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, b.Enqueue(ctx, DeleteAccount, []uint{9}))
	select {
	case item := <-got:
		assert.Equal(t, []uint{9}, item.UserIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("worker never received item")
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "verification.remind_account", Subject(RemindAccount))
}

func TestMemory_Process(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(zaptest.NewLogger(t))
	defer b.Close()

	require.NoError(t, b.Enqueue(ctx, BlockAccount, []uint{2, 3}))
	require.NoError(t, b.Enqueue(ctx, RemindAccount, []uint{4}))
	require.NoError(t, b.Enqueue(ctx, DeleteAccount, []uint{5}))

	var blocked []uint
	boom := errors.New("boom")
	n, err := b.Process(ctx, Handlers{
		BlockAccount: func(_ context.Context, item Item) error {
			blocked = append(blocked, item.UserIDs...)
			return nil
		},
		RemindAccount: func(context.Context, Item) error { return boom },
	})
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []uint{2, 3}, blocked)

	assert.Empty(t, b.Drain(RemindAccount), "failed items are not requeued")
	assert.Len(t, b.Drain(DeleteAccount), 1, "queues without a handler are left alone")
}
