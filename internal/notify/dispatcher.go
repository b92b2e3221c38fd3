package notify

import (
	"context"
	"fmt"

	"github.com/stagecraft/stagehand/internal/event"
)

// Dispatcher turns terminal task events into push notifications.
type Dispatcher struct {
	bus    *event.Bus
	sender *Sender
}

func NewDispatcher(bus *event.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{bus: bus, sender: sender}
}

// Start subscribes to the completed and failed topics. Handlers stay
// registered for the life of the bus.
func (d *Dispatcher) Start() error {
	err := event.SubscribeTyped(d.bus, event.TaskCompleted, "notify-completed",
		func(ctx context.Context, ev *event.Event[event.TaskCompletedData]) error {
			d.sender.SendToAll(ctx, &Payload{
				Title: "Task completed",
				Body:  fmt.Sprintf("%s finished in %dms", ev.Data.Name, ev.Data.DurationMillis),
				URL:   "/tasks/" + ev.Data.TaskID,
				Tag:   ev.Data.TaskID,
			})
			return nil
		})
	if err != nil {
		return err
	}
	return event.SubscribeTyped(d.bus, event.TaskFailed, "notify-failed",
		func(ctx context.Context, ev *event.Event[event.TaskFailedData]) error {
			d.sender.SendToAll(ctx, &Payload{
				Title: "Task failed",
				Body:  fmt.Sprintf("%s: %s", ev.Data.Name, ev.Data.Reason),
				URL:   "/tasks/" + ev.Data.TaskID,
				Tag:   ev.Data.TaskID,
			})
			return nil
		})
}
