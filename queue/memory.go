package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const memoryBuffer = 1024

var ErrBrokerClosed = errors.New("broker closed")

// Memory is an in-process broker. Failed items are retried up to maxDeliver
// times, then dropped.
type Memory struct {
	log    *zap.Logger
	queues map[Name]chan delivery
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

type delivery struct {
	item     Item
	attempts int
}

func NewMemory(log *zap.Logger) *Memory {
	m := &Memory{
		log:    log,
		queues: make(map[Name]chan delivery, len(Names)),
		done:   make(chan struct{}),
	}
	for _, name := range Names {
		m.queues[name] = make(chan delivery, memoryBuffer)
	}
	return m
}

func (m *Memory) Enqueue(ctx context.Context, name Name, userIDs []uint) error {
	if err := name.Validate(); err != nil {
		return err
	}
	return m.push(ctx, name, delivery{item: NewItem(name, userIDs)})
}

func (m *Memory) push(ctx context.Context, name Name, d delivery) error {
	select {
	case <-m.done:
		return ErrBrokerClosed
	default:
	}

	select {
	case <-m.done:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	case m.queues[name] <- d:
		return nil
	}
}

func (m *Memory) Consume(ctx context.Context, name Name, h Handler) error {
	if err := name.Validate(); err != nil {
		return err
	}
	if h == nil {
		return errors.New("nil handler")
	}

	q := m.queues[name]
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case d := <-q:
				m.deliver(ctx, name, h, d)
			}
		}
	}()
	return nil
}

func (m *Memory) deliver(ctx context.Context, name Name, h Handler, d delivery) {
	d.attempts++
	err := h(ctx, d.item)
	if err == nil {
		return
	}
	if d.attempts >= maxDeliver {
		m.log.Sugar().Errorw("Dropping queue item after retries", "queue", name, "item", d.item.ID, "err", err)
		return
	}
	m.log.Sugar().Warnw("Queue item failed, requeueing", "queue", name, "item", d.item.ID, "attempt", d.attempts, "err", err)

	// The consumer is the only reader, so a full buffer must not block it.
	select {
	case m.queues[name] <- d:
	default:
		m.log.Sugar().Errorw("Queue full, dropping failed item", "queue", name, "item", d.item.ID)
	}
}

// Drain removes and returns the items waiting in name without handling them.
func (m *Memory) Drain(name Name) []Item {
	var items []Item
	for {
		select {
		case d := <-m.queues[name]:
			items = append(items, d.item)
		default:
			return items
		}
	}
}

// Process handles the waiting items of every queue in handlers on the calling
// goroutine, once each. It is used by one-shot runs that have no workers.
func (m *Memory) Process(ctx context.Context, handlers Handlers) (int, error) {
	var (
		n    int
		errs error
	)
	for _, name := range Names {
		h, ok := handlers[name]
		if !ok {
			continue
		}
		for _, item := range m.Drain(name) {
			n++
			if err := h(ctx, item); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s item %s: %w", name, item.ID, err))
			}
		}
	}
	return n, errs
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.done) })
	m.wg.Wait()
	return nil
}
