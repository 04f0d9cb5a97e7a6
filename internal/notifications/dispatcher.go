package notifications

import (
	"context"

	"go.uber.org/zap"

	"github.com/classhive/collab/internal/feed"
)

// Dispatcher is the fan-out component's internal subscription onto the
// change feed. Events are treated as at-least-once signals: every handler
// re-reads current state by id, so duplicates and stale deliveries are
// harmless.
type Dispatcher struct {
	svc    *Service
	broker *feed.Broker
	logger *zap.Logger
}

func NewDispatcher(svc *Service, broker *feed.Broker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{svc: svc, broker: broker, logger: logger}
}

// Run consumes conversation and forum events until ctx is cancelled. If the
// broker drops the subscription for falling behind during a burst, Run
// resubscribes and keeps going; events published in the gap are lost, which
// the at-least-once signal model tolerates.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		sub := d.broker.Subscribe("", "conversation:*", feed.ForumScope)
		dropped := d.consume(ctx, sub)
		d.broker.Unsubscribe(sub)
		if !dropped {
			return
		}
		d.logger.Warn("notification dispatcher dropped from feed, resubscribing")
	}
}

func (d *Dispatcher) consume(ctx context.Context, sub *feed.Subscription) (dropped bool) {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.C:
			if !ok {
				return true
			}
			d.HandleEvent(ctx, ev)
		}
	}
}

func (d *Dispatcher) HandleEvent(ctx context.Context, ev feed.Event) {
	switch ev.Kind {
	case feed.KindMessageCreated:
		if err := d.svc.NotifyMessage(ctx, ev.EntityID); err != nil {
			d.logger.Warn("message fan-out failed",
				zap.String("message_id", ev.EntityID), zap.Error(err))
		}
	default:
		// Other kinds are signals for clients, not for fan-out.
	}
}
