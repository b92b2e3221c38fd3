package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"
)

type PubSub interface {
	message.Publisher
	message.Subscriber
}

// Bus manages event publishing and subscription. Broadcast topics carry the
// scheduler lifecycle events; per-task collaboration topics are created on
// demand via SubscribeTask.
type Bus struct {
	pubSub PubSub
	router *message.Router
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	runCtx context.Context
}

// Handler is a function that handles typed events.
type Handler[T any] func(ctx context.Context, event *Event[T]) error

// NewBus creates a new event bus.
func NewBus() (*Bus, error) {
	logger := watermill.NewStdLogger(false, false)

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 256,
		},
		logger,
	)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return &Bus{
		pubSub: pubSub,
		router: router,
		logger: logger,
	}, nil
}

// Start runs the bus router. It blocks until ctx is done.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()
	return b.router.Run(ctx)
}

// Running returns a channel that closes once the router is running.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Stop stops the bus.
func (b *Bus) Stop() error {
	return b.router.Close()
}

// Publish publishes an event on the topic inferred from the payload type.
func (b *Bus) Publish(ctx context.Context, source string, data any) error {
	eventMsg := &EventMessage{
		ID:        ulid.Make().String(),
		Type:      inferEventType(data),
		Timestamp: time.Now(),
		Source:    source,
	}

	rawData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	eventMsg.Data = rawData

	return b.publishMessage(ctx, string(eventMsg.Type), eventMsg)
}

// PublishCollaboration routes a message over the task-scoped topic so that
// only that task's participants receive it.
func (b *Bus) PublishCollaboration(ctx context.Context, source string, data CollaborationData) error {
	rawData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal collaboration data: %w", err)
	}
	eventMsg := &EventMessage{
		ID:        ulid.Make().String(),
		Type:      EventType(TaskTopic(data.TaskID)),
		Timestamp: time.Now(),
		Source:    source,
		Data:      rawData,
	}
	return b.publishMessage(ctx, TaskTopic(data.TaskID), eventMsg)
}

func (b *Bus) publishMessage(ctx context.Context, topic string, eventMsg *EventMessage) error {
	payload, err := json.Marshal(eventMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := b.pubSub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// SubscribeAsync subscribes a raw message handler to a topic. Safe to call
// both before and after Start; late handlers are spun up on the running
// router.
func (b *Bus) SubscribeAsync(topic string, handlerName string, handler func(ctx context.Context, msg *EventMessage) error) error {
	b.router.AddNoPublisherHandler(
		handlerName,
		topic,
		b.pubSub,
		func(msg *message.Message) error {
			var eventMsg EventMessage
			if err := json.Unmarshal(msg.Payload, &eventMsg); err != nil {
				return fmt.Errorf("failed to unmarshal event message: %w", err)
			}
			return handler(msg.Context(), &eventMsg)
		},
	)

	b.mu.Lock()
	runCtx := b.runCtx
	b.mu.Unlock()
	if runCtx == nil {
		return nil
	}
	select {
	case <-b.router.Running():
		if err := b.router.RunHandlers(runCtx); err != nil {
			return fmt.Errorf("failed to run handler %s: %w", handlerName, err)
		}
	default:
	}
	return nil
}

// SubscribeTask subscribes a handler to one task's collaboration topic.
func (b *Bus) SubscribeTask(taskID, handlerName string, handler func(ctx context.Context, msg *EventMessage) error) error {
	return b.SubscribeAsync(TaskTopic(taskID), handlerName, handler)
}

// PublishTyped publishes a typed event.
func PublishTyped[T any](b *Bus, ctx context.Context, event *Event[T]) error {
	eventMsg, err := event.ToMessage()
	if err != nil {
		return fmt.Errorf("failed to convert event to message: %w", err)
	}
	return b.publishMessage(ctx, string(eventMsg.Type), eventMsg)
}

// SubscribeTyped subscribes to typed events on the topic matching T.
func SubscribeTyped[T any](b *Bus, eventType EventType, handlerName string, handler Handler[T]) error {
	return b.SubscribeAsync(string(eventType), handlerName, func(ctx context.Context, msg *EventMessage) error {
		event, err := FromMessage[T](msg)
		if err != nil {
			return fmt.Errorf("failed to convert message to event: %w", err)
		}
		return handler(ctx, event)
	})
}
