package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	subjectPrefix = "verification."
	maxDeliver    = 5
)

// NATS publishes items to a JetStream work queue stream, one subject per
// queue name, and consumes them through durable consumers.
type NATS struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	stream string
	log    *zap.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewNATS(url, stream string, log *zap.Logger, opts ...nats.Option) (*NATS, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	b := &NATS{conn: nc, js: js, stream: stream, log: log}
	if err := b.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

func (b *NATS) ensureStream() error {
	_, err := b.js.StreamInfo(b.stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}

	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:      b.stream,
		Subjects:  []string{subjectPrefix + ">"},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err == nil {
		b.log.Sugar().Infow("Created stream", "stream", b.stream)
	}
	return err
}

func Subject(name Name) string { return subjectPrefix + string(name) }

func (b *NATS) Enqueue(ctx context.Context, name Name, userIDs []uint) error {
	if err := name.Validate(); err != nil {
		return err
	}

	item := NewItem(name, userIDs)
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(Subject(name), data, nats.MsgId(item.ID), nats.Context(ctx))
	return err
}

func (b *NATS) Consume(ctx context.Context, name Name, h Handler) error {
	if err := name.Validate(); err != nil {
		return err
	}
	if h == nil {
		return errors.New("nil handler")
	}

	handler := func(msg *nats.Msg) {
		var item Item
		if err := json.Unmarshal(msg.Data, &item); err != nil {
			b.log.Sugar().Errorw("Dropping malformed queue item", "queue", name, "err", err)
			_ = msg.Term()
			return
		}

		if err := h(ctx, item); err != nil {
			b.log.Sugar().Warnw("Queue item failed, requesting redelivery", "queue", name, "item", item.ID, "err", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}

	sub, err := b.js.Subscribe(
		Subject(name),
		handler,
		nats.Durable(string(name)),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return nil
}

func (b *NATS) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	b.subs = nil
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
