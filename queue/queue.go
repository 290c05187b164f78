// Package queue carries batches of user ids from the escalation scheduler to
// the batch processors.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Name string

const (
	BlockAccount  Name = "block_account"
	RemindAccount Name = "remind_account"
	DeleteAccount Name = "delete_account"
)

var Names = []Name{BlockAccount, RemindAccount, DeleteAccount}

var ErrUnknownQueue = errors.New("unknown queue")

func (n Name) Validate() error {
	switch n {
	case BlockAccount, RemindAccount, DeleteAccount:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownQueue, string(n))
}

// Item is one chunk of user ids. ID is unique per enqueue and lets brokers
// drop duplicate publishes.
type Item struct {
	ID         string    `json:"id"`
	Queue      Name      `json:"queue"`
	UserIDs    []uint    `json:"user_ids"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewItem(name Name, userIDs []uint) Item {
	return Item{
		ID:         uuid.NewString(),
		Queue:      name,
		UserIDs:    userIDs,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Handler processes one item. A returned error asks the broker to redeliver.
type Handler func(ctx context.Context, item Item) error

type Broker interface {
	Enqueue(ctx context.Context, name Name, userIDs []uint) error

	// Consume registers h for name and returns once deliveries have started.
	// Deliveries stop when ctx is done or the broker is closed.
	Consume(ctx context.Context, name Name, h Handler) error

	Close() error
}
