package queue

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handlers maps each queue to the processor consuming it.
type Handlers map[Name]Handler

// RunWorkers starts consuming every queue in handlers when the app starts and
// closes the broker when it stops.
func RunWorkers(lc fx.Lifecycle, broker Broker, handlers Handlers, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return StartWorkers(ctx, broker, handlers, log)
		},
		OnStop: func(context.Context) error {
			log.Sugar().Info("Stopping queue workers")
			cancel()
			return broker.Close()
		},
	})
}

func StartWorkers(ctx context.Context, broker Broker, handlers Handlers, log *zap.Logger) error {
	for _, name := range Names {
		h, ok := handlers[name]
		if !ok {
			continue
		}
		if err := broker.Consume(ctx, name, h); err != nil {
			return err
		}
		log.Sugar().Infow("Consuming queue", "queue", name)
	}
	return nil
}
