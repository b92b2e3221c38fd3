package agent

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusBusy    Status = "BUSY"
	StatusBlocked Status = "BLOCKED"
	StatusError   Status = "ERROR"
	StatusStopped Status = "STOPPED"
)

// Collaborator identifies a co-assigned agent in a start notice.
type Collaborator struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
}

// StartNotice is what the scheduler hands each bound agent when task
// execution begins.
type StartNotice struct {
	TaskID        string         `json:"task_id"`
	TaskName      string         `json:"task_name"`
	Description   string         `json:"description"`
	Deliverables  []string       `json:"deliverables"`
	Deadline      time.Time      `json:"deadline"`
	Collaborators []Collaborator `json:"collaborators"`
}

// AssignmentHandler is the optional capability of reacting to a start
// notice. Whether an agent has it is resolved once, at construction, not
// probed per call.
type AssignmentHandler interface {
	HandleTaskAssignment(ctx context.Context, notice *StartNotice) error
}

// CollabMessage is a message delivered over a task-scoped channel.
type CollabMessage struct {
	From    string
	Subject string
	Body    string
	At      time.Time
}

// Agent is a crew member: a unit of work capable of being reserved for one
// task at a time and reporting numeric progress for it.
type Agent struct {
	id        string
	role      string
	handler   AssignmentHandler
	createdAt time.Time

	mu        sync.RWMutex
	status    Status
	taskID    string
	progress  map[string]int
	feed      []CollabMessage
	updatedAt time.Time
}

type Option func(*Agent)

// WithAssignmentHandler attaches the start-notice capability.
func WithAssignmentHandler(h AssignmentHandler) Option {
	return func(a *Agent) {
		a.handler = h
	}
}

func newAgent(id, role string, opts ...Option) *Agent {
	now := time.Now()
	a := &Agent{
		id:        id,
		role:      role,
		status:    StatusIdle,
		progress:  make(map[string]int),
		createdAt: now,
		updatedAt: now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) ID() string {
	return a.id
}

func (a *Agent) Role() string {
	return a.role
}

// Handler returns the assignment capability, or nil if the agent has none.
func (a *Agent) Handler() AssignmentHandler {
	return a.handler
}

func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *Agent) SetStatus(status Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
	a.updatedAt = time.Now()
}

// IsAvailable reports whether the agent can be reserved: idle and not
// holding a task.
func (a *Agent) IsAvailable() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status == StatusIdle && a.taskID == ""
}

// CurrentTask returns the held task id, empty if none.
func (a *Agent) CurrentTask() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.taskID
}

// Hold binds the agent to a task. Only the scheduler calls this; agents
// never bind or free themselves.
func (a *Agent) Hold(taskID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusIdle || a.taskID != "" {
		return false
	}
	a.taskID = taskID
	a.status = StatusBusy
	a.updatedAt = time.Now()
	return true
}

// Release frees the agent. Only the scheduler calls this, at completion,
// failure or cancellation.
func (a *Agent) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.taskID = ""
	if a.status == StatusBusy || a.status == StatusBlocked {
		a.status = StatusIdle
	}
	a.updatedAt = time.Now()
}

// ReportProgress records the agent's own progress estimate for a task it
// holds. Values are clamped to 0-100.
func (a *Agent) ReportProgress(taskID string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progress[taskID] = pct
	a.updatedAt = time.Now()
}

// TaskProgress returns the reported progress for taskID. The second return
// is false when the agent has not reported for that task.
func (a *Agent) TaskProgress(taskID string) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pct, ok := a.progress[taskID]
	return pct, ok
}

// Deliver appends a collaboration message to the agent's feed.
func (a *Agent) Deliver(msg CollabMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feed = append(a.feed, msg)
}

// Feed returns a copy of the collaboration messages received so far.
func (a *Agent) Feed() []CollabMessage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]CollabMessage, len(a.feed))
	copy(out, a.feed)
	return out
}
