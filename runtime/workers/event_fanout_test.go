package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"lobby-lab/domain/event"
	"lobby-lab/mocks"
)

func TestEventFanout_Delivers_To_Every_Sink(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first := mocks.NewMockEventSink(ctrl)
	second := mocks.NewMockEventSink(ctrl)

	events := make(chan event.DomainEvent, 1)
	worker := NewEventFanout(log, events, time.Second, first, second)

	evt := event.SystemNotice{Text: "Alice joined the session"}

	// Given both sinks accept the event
	first.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	second.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	// When the event is fanned out
	worker.Fanout(context.Background(), evt)

	req.Empty(events)
}

func TestEventFanout_Sink_Error_Does_Not_Block_Others(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	failing := mocks.NewMockEventSink(ctrl)
	healthy := mocks.NewMockEventSink(ctrl)

	events := make(chan event.DomainEvent)
	worker := NewEventFanout(log, events, time.Second, failing, healthy)

	evt := event.ErrorReported{Reason: "session is full"}

	// Given the first sink rejects the event
	failing.EXPECT().Consume(gomock.Any(), evt).Return(context.Canceled).Times(1)
	// Then the second sink still receives it
	healthy.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	worker.Fanout(context.Background(), evt)
}

func TestEventFanout_Sink_Timeout(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	slow := mocks.NewMockEventSink(ctrl)

	sinkTimeout := 20 * time.Millisecond
	events := make(chan event.DomainEvent)
	worker := NewEventFanout(log, events, sinkTimeout, slow)

	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			<-ctx.Done()     // Waiting for timeout to trigger cancellation
			return ctx.Err() // Sending back "context deadline exceeded"
		}).
		Times(1)

	// The fanout returns even though the sink never acknowledged
	worker.Fanout(context.Background(), event.SystemNotice{Text: "slow"})
}

func TestEventFanout_Run_Stops_On_Closed_Stream(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sink := mocks.NewMockEventSink(ctrl)
	events := make(chan event.DomainEvent, 1)
	worker := NewEventFanout(log, events, time.Second, sink)

	evt := event.SystemNotice{Text: "bye"}
	sink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	events <- evt
	close(events)

	done := make(chan error, 1)
	go func() { done <- worker.Run(context.Background()) }()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("Fanout worker should stop when the event stream closes")
	}
}
