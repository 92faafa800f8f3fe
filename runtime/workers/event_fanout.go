package workers

import (
	"context"
	"log/slog"
	"time"

	"lobby-lab/contract"
	"lobby-lab/domain/event"
)

// EventFanout forwards session events to the registered sinks.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries; a sink exceeding the per-sink timeout is cut
// off for that event. It is intended for presentation and observability
// side effects, not for core session logic.
type EventFanout struct {
	log     *slog.Logger
	events  <-chan event.DomainEvent
	sinks   []contract.EventSink
	timeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, timeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &EventFanout{log: log, events: events, sinks: sinks, timeout: timeout}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to every sink, each under its own timeout.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.timeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink rejected event", "event", evt.Name(), "error", err)
		}
		cancel()
	}
}
