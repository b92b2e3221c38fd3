package event

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents the type of event, which doubles as the bus topic.
type EventType string

const (
	// Task events
	TaskCreated   EventType = "task.created"
	TaskStarted   EventType = "task.started"
	TaskProgress  EventType = "task.progress"
	TaskCompleted EventType = "task.completed"
	TaskFailed    EventType = "task.failed"
	TaskBlocked   EventType = "task.blocked"

	// Agent events
	AgentRegistered EventType = "agent.registered"
	AgentRemoved    EventType = "agent.removed"
	AgentAssigned   EventType = "agent.assigned"
	AgentReleased   EventType = "agent.released"
)

// TaskTopic returns the collaboration topic scoped to one task. Messages
// published here reach only that task's participants.
func TaskTopic(taskID string) string {
	return "task." + taskID + ".collab"
}

// Event represents a typed system event.
type Event[T any] struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Data      T         `json:"data"`
}

// EventMessage represents a serialized event for transport.
type EventMessage struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates a new typed event.
func NewEvent[T any](source string, data T) *Event[T] {
	return &Event[T]{
		ID:        ulid.Make().String(),
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
}

// ToMessage converts a typed event to a transport message.
func (e *Event[T]) ToMessage() (*EventMessage, error) {
	rawData, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return &EventMessage{
		ID:        e.ID,
		Type:      inferEventType(e.Data),
		Timestamp: e.Timestamp,
		Source:    e.Source,
		Data:      rawData,
	}, nil
}

// FromMessage converts a transport message to a typed event.
func FromMessage[T any](msg *EventMessage) (*Event[T], error) {
	var data T
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return nil, err
	}
	return &Event[T]{
		ID:        msg.ID,
		Timestamp: msg.Timestamp,
		Source:    msg.Source,
		Data:      data,
	}, nil
}

// inferEventType infers EventType from the payload type.
func inferEventType(data any) EventType {
	dataType := reflect.TypeOf(data)
	if dataType.Kind() == reflect.Ptr {
		dataType = dataType.Elem()
	}

	switch dataType.Name() {
	case "TaskCreatedData":
		return TaskCreated
	case "TaskStartedData":
		return TaskStarted
	case "TaskProgressData":
		return TaskProgress
	case "TaskCompletedData":
		return TaskCompleted
	case "TaskFailedData":
		return TaskFailed
	case "TaskBlockedData":
		return TaskBlocked
	case "AgentRegisteredData":
		return AgentRegistered
	case "AgentRemovedData":
		return AgentRemoved
	case "AgentAssignedData":
		return AgentAssigned
	case "AgentReleasedData":
		return AgentReleased
	default:
		return EventType(camelToDotted(strings.TrimSuffix(dataType.Name(), "Data")))
	}
}

func camelToDotted(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('.')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}

// TaskCreatedData is published when a task enters a queue.
type TaskCreatedData struct {
	TaskID   string `json:"task_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Queue    string `json:"queue"`
	Priority string `json:"priority"`
}

// TaskStartedData is published when all role slots are filled and execution
// begins.
type TaskStartedData struct {
	TaskID         string   `json:"task_id"`
	Name           string   `json:"name"`
	AssignedAgents []string `json:"assigned_agents"`
}

// TaskProgressData carries the aggregated progress of one monitor cycle.
type TaskProgressData struct {
	TaskID    string    `json:"task_id"`
	Progress  int       `json:"progress"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskCompletedData is published once per task, on the transition to
// completed.
type TaskCompletedData struct {
	TaskID         string   `json:"task_id"`
	Name           string   `json:"name"`
	Deliverables   []string `json:"deliverables"`
	DurationMillis int64    `json:"duration_ms"`
}

// TaskFailedData is published on the terminal failed transition, including
// cancellation.
type TaskFailedData struct {
	TaskID string `json:"task_id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// TaskBlockedData is published when a blocker is recorded. Blocked is not
// terminal; monitoring continues.
type TaskBlockedData struct {
	TaskID     string `json:"task_id"`
	Reason     string `json:"reason"`
	ReportedBy string `json:"reported_by"`
}

type AgentRegisteredData struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
}

type AgentRemovedData struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
}

type AgentAssignedData struct {
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
}

type AgentReleasedData struct {
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
}

// CollaborationData is routed over a per-task topic, not a broadcast one.
type CollaborationData struct {
	TaskID  string `json:"task_id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
