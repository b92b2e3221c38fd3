package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewBus()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = bus.Start(ctx)
	}()
	select {
	case <-bus.Running():
	case <-time.After(2 * time.Second):
		t.Fatal("bus did not start")
	}
	t.Cleanup(func() { _ = bus.Stop() })
	return bus
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := startBus(t)

	received := make(chan *EventMessage, 1)
	require.NoError(t, bus.SubscribeAsync(string(TaskCreated), "test-created", func(ctx context.Context, msg *EventMessage) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "scheduler", TaskCreatedData{
		TaskID: "T1", Name: "hang lights", Queue: "technical", Priority: "high",
	}))

	select {
	case msg := <-received:
		assert.Equal(t, TaskCreated, msg.Type)
		assert.Equal(t, "scheduler", msg.Source)
		assert.NotEmpty(t, msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBus_SubscribeTyped(t *testing.T) {
	bus := startBus(t)

	received := make(chan *Event[TaskCompletedData], 1)
	require.NoError(t, SubscribeTyped(bus, TaskCompleted, "test-completed", func(ctx context.Context, ev *Event[TaskCompletedData]) error {
		received <- ev
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "scheduler", TaskCompletedData{
		TaskID: "T2", Name: "focus", Deliverables: []string{"plot"}, DurationMillis: 1200,
	}))

	select {
	case ev := <-received:
		assert.Equal(t, "T2", ev.Data.TaskID)
		assert.Equal(t, int64(1200), ev.Data.DurationMillis)
	case <-time.After(2 * time.Second):
		t.Fatal("typed event was not delivered")
	}
}

func TestBus_TaskTopicsAreIsolated(t *testing.T) {
	bus := startBus(t)

	forT1 := make(chan *EventMessage, 1)
	forT2 := make(chan *EventMessage, 1)
	require.NoError(t, bus.SubscribeTask("T1", "t1-member", func(ctx context.Context, msg *EventMessage) error {
		forT1 <- msg
		return nil
	}))
	require.NoError(t, bus.SubscribeTask("T2", "t2-member", func(ctx context.Context, msg *EventMessage) error {
		forT2 <- msg
		return nil
	}))

	require.NoError(t, bus.PublishCollaboration(context.Background(), "actor-0001", CollaborationData{
		TaskID: "T1", From: "actor-0001", Subject: "cue", Body: "take it from the top",
	}))

	select {
	case msg := <-forT1:
		assert.Equal(t, "actor-0001", msg.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("collaboration message was not delivered")
	}

	select {
	case <-forT2:
		t.Fatal("message leaked onto another task's topic")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_LateSubscriber(t *testing.T) {
	bus := startBus(t)

	// First subscription after Start exercises the RunHandlers path.
	received := make(chan *EventMessage, 1)
	require.NoError(t, bus.SubscribeAsync(string(TaskFailed), "late-handler", func(ctx context.Context, msg *EventMessage) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "scheduler", TaskFailedData{TaskID: "T3", Reason: "cancelled"}))

	select {
	case msg := <-received:
		assert.Equal(t, TaskFailed, msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("late subscriber received nothing")
	}
}
