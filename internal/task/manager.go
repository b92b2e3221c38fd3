package task

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	"github.com/stagecraft/stagehand/internal/agent"
	"github.com/stagecraft/stagehand/internal/event"
	"github.com/stagecraft/stagehand/pkg/cerr"
	"github.com/stagecraft/stagehand/pkg/panicerr"
)

// Directory is the crew lookup the scheduler assigns from. *agent.Registry
// satisfies it.
type Directory interface {
	AgentsByRole(role string) []*agent.Agent
}

const (
	defaultMonitorInterval = 2 * time.Second
	defaultSweepInterval   = 5 * time.Second

	eventSource = "scheduler"
)

// Manager owns the task set: queues, dependency graph, crew assignment,
// progress monitoring and the completion cascade. All state lives behind
// one mutex; bus publishes, handler notifications and completion
// callbacks run as deferred actions after the lock is released so
// subscribers can call back into the scheduler.
type Manager struct {
	dir   Directory
	bus   *event.Bus
	clock clockwork.Clock
	repo  Repository

	failure FailurePolicy
	block   BlockPolicy

	monitorInterval time.Duration
	sweepInterval   time.Duration

	mu        sync.Mutex
	tasks     map[string]*Task
	queues    *queueSet
	graph     *depGraph
	crews     map[string][]*agent.Agent
	collabs   map[string]*CollaborationSpace
	monitors  map[string]context.CancelFunc
	callbacks map[string][]func(*Task)
	total     int
	post      []func()
	runCtx    context.Context

	wg conc.WaitGroup
}

type ManagerOption func(*Manager)

func WithRepository(repo Repository) ManagerOption {
	return func(m *Manager) { m.repo = repo }
}

func WithFailurePolicy(p FailurePolicy) ManagerOption {
	return func(m *Manager) { m.failure = p }
}

func WithBlockPolicy(p BlockPolicy) ManagerOption {
	return func(m *Manager) { m.block = p }
}

func WithMonitorInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.monitorInterval = d }
}

func WithSweepInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.sweepInterval = d }
}

// NewManager builds a scheduler over the given crew directory. The bus
// may be nil, in which case no events are published.
func NewManager(dir Directory, bus *event.Bus, clock clockwork.Clock, opts ...ManagerOption) *Manager {
	m := &Manager{
		dir:             dir,
		bus:             bus,
		clock:           clock,
		failure:         CrewErrored{},
		block:           CrewStalled{},
		monitorInterval: defaultMonitorInterval,
		sweepInterval:   defaultSweepInterval,
		tasks:           make(map[string]*Task),
		queues:          newQueueSet(),
		graph:           newDepGraph(),
		crews:           make(map[string][]*agent.Agent),
		collabs:         make(map[string]*CollaborationSpace),
		monitors:        make(map[string]context.CancelFunc),
		callbacks:       make(map[string][]func(*Task)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateTask validates a definition, registers the task, classifies it
// into a queue and drains that queue if the new task is ready to run.
func (m *Manager) CreateTask(ctx context.Context, def Definition) (*Task, error) {
	if def.Name == "" {
		return nil, cerr.Errorf(cerr.InvalidArgument, nil, "task name is required")
	}
	priority, err := ParsePriority(def.Priority)
	if err != nil {
		return nil, err
	}

	taskType := def.Type
	if taskType == "" {
		taskType = "general"
	}

	m.mu.Lock()
	id := def.ID
	if id == "" {
		id = ulid.Make().String()
	} else if _, exists := m.tasks[id]; exists {
		m.mu.Unlock()
		return nil, cerr.Errorf(cerr.AlreadyExists, nil, "task %s already exists", id)
	}
	for _, dep := range def.Dependencies {
		if _, ok := m.tasks[dep]; !ok {
			m.mu.Unlock()
			return nil, cerr.Errorf(cerr.InvalidArgument, nil, "unknown dependency %s", dep)
		}
	}

	queueCat, matched := Classify(def.RequiredRoles)
	if !matched && len(def.RequiredRoles) > 0 {
		slog.WarnContext(ctx, "no queue matches required roles, using support",
			"task", id, "roles", def.RequiredRoles)
	}

	t := &Task{
		ID:                id,
		Name:              def.Name,
		Description:       def.Description,
		Type:              taskType,
		Priority:          priority,
		Queue:             queueCat,
		RequiredRoles:     append([]string(nil), def.RequiredRoles...),
		Dependencies:      append([]string(nil), def.Dependencies...),
		Deliverables:      append([]Deliverable(nil), def.Deliverables...),
		QualityGates:      append([]QualityGate(nil), def.QualityGates...),
		EstimatedDuration: def.EstimatedDuration,
		Deadline:          def.Deadline,
		Status:            StatusPending,
		CreatedAt:         m.clock.Now(),
	}

	m.tasks[id] = t
	m.total++
	m.graph.ensure(id)
	for _, dep := range t.Dependencies {
		m.graph.addDependency(dep, id)
	}
	m.queues.get(queueCat).insert(t)

	m.postLocked(func() {
		m.publish(ctx, event.TaskCreatedData{
			TaskID:   t.ID,
			Name:     t.Name,
			Type:     t.Type,
			Queue:    string(queueCat),
			Priority: priority.String(),
		})
		m.persist(ctx)
	})
	if m.depsSatisfiedLocked(t) {
		m.postLocked(func() { m.ProcessQueue(ctx, queueCat) })
	}

	clone := t.Clone()
	m.mu.Unlock()
	m.flush()

	slog.InfoContext(ctx, "task created", "task", id, "queue", queueCat, "priority", priority.String())
	return clone, nil
}

// Get returns a copy of one task.
func (m *Manager) Get(taskID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, cerr.Errorf(cerr.NotFound, nil, "task %s not found", taskID)
	}
	return t.Clone(), nil
}

// List returns copies of all tasks ordered by creation time.
func (m *Manager) List() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Collaboration returns the live collaboration space of a running task.
func (m *Manager) Collaboration(taskID string) (*CollaborationSpace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.collabs[taskID]
	return s, ok
}

// OnComplete registers a callback fired once when the task completes.
// If the task is already completed the callback fires immediately.
func (m *Manager) OnComplete(taskID string, fn func(*Task)) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return cerr.Errorf(cerr.NotFound, nil, "task %s not found", taskID)
	}
	if t.Status == StatusCompleted {
		clone := t.Clone()
		m.postLocked(func() {
			if err := panicerr.Call(func() { fn(clone) }); err != nil {
				slog.Warn("completion callback panicked", "task", taskID, "error", err)
			}
		})
	} else {
		m.callbacks[taskID] = append(m.callbacks[taskID], fn)
	}
	m.mu.Unlock()
	m.flush()
	return nil
}

// Sweep drains every queue once, in classification order.
func (m *Manager) Sweep(ctx context.Context) {
	for _, cat := range categoryOrder {
		m.ProcessQueue(ctx, cat)
	}
}

// ProcessQueue drains one queue from the front. Draining stops at the
// first head task that is not ready: queues deliberately block behind
// their head rather than skipping ahead, so a starved critical task is
// never overtaken by later work in the same queue.
func (m *Manager) ProcessQueue(ctx context.Context, cat Category) {
	m.mu.Lock()
	q := m.queues.get(cat)
	for {
		head := q.front()
		if head == nil {
			break
		}
		if !m.depsSatisfiedLocked(head) {
			break
		}
		crew, ok := m.reserveCrewLocked(ctx, head)
		if !ok {
			break
		}
		q.pop()
		m.startExecutionLocked(ctx, head, crew)
	}
	m.mu.Unlock()
	m.flush()
}

func (m *Manager) depsSatisfiedLocked(t *Task) bool {
	for _, dep := range t.Dependencies {
		dt, ok := m.tasks[dep]
		if !ok || dt.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// reserveCrewLocked finds one available agent per required-role slot and
// binds them all, or binds none. A role listed twice needs two distinct
// agents.
func (m *Manager) reserveCrewLocked(ctx context.Context, t *Task) ([]*agent.Agent, bool) {
	picked := make([]*agent.Agent, 0, len(t.RequiredRoles))
	taken := make(map[string]bool, len(t.RequiredRoles))
	for _, role := range t.RequiredRoles {
		var found *agent.Agent
		for _, cand := range m.dir.AgentsByRole(role) {
			if taken[cand.ID()] || !cand.IsAvailable() {
				continue
			}
			found = cand
			break
		}
		if found == nil {
			slog.DebugContext(ctx, "no available agent for role", "task", t.ID, "role", role)
			return nil, false
		}
		picked = append(picked, found)
		taken[found.ID()] = true
	}

	held := make([]*agent.Agent, 0, len(picked))
	for _, a := range picked {
		if !a.Hold(t.ID) {
			for _, h := range held {
				h.Release()
			}
			return nil, false
		}
		held = append(held, a)
	}

	t.Status = StatusAssigned
	t.AssignedAgents = make([]string, 0, len(held))
	for _, a := range held {
		t.AssignedAgents = append(t.AssignedAgents, a.ID())
		assigned := event.AgentAssignedData{AgentID: a.ID(), TaskID: t.ID}
		m.postLocked(func() { m.publish(ctx, assigned) })
	}
	return held, true
}

func (m *Manager) startExecutionLocked(ctx context.Context, t *Task, crew []*agent.Agent) {
	t.Status = StatusInProgress
	t.StartedAt = m.clock.Now()
	m.crews[t.ID] = crew
	m.collabs[t.ID] = newCollaborationSpace(t, crew)
	m.startMonitorLocked(t.ID)

	taskID := t.ID
	clone := t.Clone()
	m.postLocked(func() { m.beginExecution(ctx, taskID, clone, crew) })
}

// beginExecution runs outside the scheduler lock: it wires the crew onto
// the task's collaboration channel, hands out start notices and
// announces the start. A bus wiring failure fails the task.
func (m *Manager) beginExecution(ctx context.Context, taskID string, t *Task, crew []*agent.Agent) {
	if err := m.wireCollaboration(taskID, crew); err != nil {
		slog.ErrorContext(ctx, "failed to wire collaboration channel", "task", taskID, "error", err)
		m.failNow(ctx, taskID, fmt.Sprintf("failed to start execution: %v", err))
		return
	}

	collaborators := make([]agent.Collaborator, 0, len(crew))
	for _, a := range crew {
		collaborators = append(collaborators, agent.Collaborator{AgentID: a.ID(), Role: a.Role()})
	}
	notice := &agent.StartNotice{
		TaskID:        t.ID,
		TaskName:      t.Name,
		Description:   t.Description,
		Deliverables:  t.DeliverableNames(),
		Deadline:      t.Deadline,
		Collaborators: collaborators,
	}
	for _, a := range crew {
		h := a.Handler()
		if h == nil {
			continue
		}
		if err := panicerr.SafeContext(func(ctx context.Context) error {
			return h.HandleTaskAssignment(ctx, notice)
		})(ctx); err != nil {
			slog.WarnContext(ctx, "start notice rejected", "task", taskID, "agent", a.ID(), "error", err)
		}
	}

	m.publish(ctx, event.TaskStartedData{
		TaskID:         t.ID,
		Name:           t.Name,
		AssignedAgents: t.AssignedAgents,
	})
	slog.InfoContext(ctx, "task started", "task", taskID, "agents", t.AssignedAgents)
	m.persist(ctx)
}

func (m *Manager) wireCollaboration(taskID string, crew []*agent.Agent) error {
	if m.bus == nil {
		return nil
	}
	for _, a := range crew {
		recipient := a
		handlerName := fmt.Sprintf("%s-%s-collab", taskID, recipient.ID())
		err := m.bus.SubscribeTask(taskID, handlerName, func(ctx context.Context, msg *event.EventMessage) error {
			ev, err := event.FromMessage[event.CollaborationData](msg)
			if err != nil {
				return err
			}
			if ev.Data.From == recipient.ID() {
				return nil
			}
			recipient.Deliver(agent.CollabMessage{
				From:    ev.Data.From,
				Subject: ev.Data.Subject,
				Body:    ev.Data.Body,
				At:      ev.Timestamp,
			})
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) startMonitorLocked(taskID string) {
	if m.runCtx == nil {
		return
	}
	if _, ok := m.monitors[taskID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(m.runCtx)
	m.monitors[taskID] = cancel
	m.wg.Go(func() { m.monitorLoop(ctx, taskID) })
}

func (m *Manager) monitorLoop(ctx context.Context, taskID string) {
	ticker := m.clock.NewTicker(m.monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if m.MonitorCycle(ctx, taskID) {
				return
			}
		}
	}
}

// MonitorCycle runs one monitoring pass for a task: aggregate crew
// progress, then evaluate completion, failure and blockage in that
// order. Returns true once the task is terminal. Exposed so tests and
// operators can drive monitoring without the ticker.
func (m *Manager) MonitorCycle(ctx context.Context, taskID string) bool {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok || t.Status.Terminal() {
		m.mu.Unlock()
		return true
	}
	if t.Status != StatusInProgress && t.Status != StatusBlocked {
		m.mu.Unlock()
		return false
	}
	crew := append([]*agent.Agent(nil), m.crews[taskID]...)
	m.mu.Unlock()

	// Poll crew outside the scheduler lock.
	sum, reporters := 0, 0
	for _, a := range crew {
		if pct, ok := a.TaskProgress(taskID); ok {
			sum += pct
			reporters++
		}
	}

	m.mu.Lock()
	t, ok = m.tasks[taskID]
	if !ok || t.Status.Terminal() {
		m.mu.Unlock()
		return true
	}

	// Progress holds its last value when nobody reports; silence is not
	// regression.
	if reporters > 0 {
		mean := int(math.Round(float64(sum) / float64(reporters)))
		if mean != t.Progress {
			t.Progress = mean
			data := event.TaskProgressData{TaskID: taskID, Progress: mean, Timestamp: m.clock.Now()}
			m.postLocked(func() { m.publish(ctx, data) })
		}
	}

	terminal := false
	switch {
	case t.ContractMet():
		m.completeTaskLocked(ctx, t)
		terminal = true
	default:
		if reason, failed := m.failure.Failed(t, crew); failed {
			m.failTaskLocked(ctx, t, reason)
			terminal = true
			break
		}
		if blocker, blocked := m.block.Blocked(t, crew); blocked {
			if t.Status != StatusBlocked {
				blocker.At = m.clock.Now()
				t.Blockers = append(t.Blockers, blocker)
				t.Status = StatusBlocked
				data := event.TaskBlockedData{TaskID: taskID, Reason: blocker.Reason, ReportedBy: blocker.ReportedBy}
				m.postLocked(func() {
					m.publish(ctx, data)
					slog.WarnContext(ctx, "task blocked", "task", taskID, "reason", data.Reason)
				})
			}
		} else if t.Status == StatusBlocked {
			t.Status = StatusInProgress
			m.postLocked(func() {
				slog.InfoContext(ctx, "task unblocked", "task", taskID)
			})
		}
	}
	m.mu.Unlock()
	m.flush()
	return terminal
}

// completeTaskLocked finishes a task whose contract is met, frees its
// crew and cascades into the queues of any dependents that just became
// ready.
func (m *Manager) completeTaskLocked(ctx context.Context, t *Task) {
	t.Status = StatusCompleted
	t.CompletedAt = m.clock.Now()
	t.Progress = 100
	m.stopMonitorLocked(t.ID)
	m.releaseCrewLocked(ctx, t.ID)
	delete(m.collabs, t.ID)

	data := event.TaskCompletedData{
		TaskID:         t.ID,
		Name:           t.Name,
		Deliverables:   t.DeliverableNames(),
		DurationMillis: t.DurationMillis(),
	}
	callbacks := m.callbacks[t.ID]
	delete(m.callbacks, t.ID)
	clone := t.Clone()

	// Dependents are cascaded iteratively through their queues, not by
	// recursing into each one.
	cascade := make([]Category, 0, 2)
	seen := make(map[Category]bool)
	for _, depID := range m.graph.dependentsOf(t.ID) {
		dt, ok := m.tasks[depID]
		if !ok || dt.Status != StatusPending {
			continue
		}
		if m.depsSatisfiedLocked(dt) && !seen[dt.Queue] {
			seen[dt.Queue] = true
			cascade = append(cascade, dt.Queue)
		}
	}

	taskID := t.ID
	m.postLocked(func() {
		m.publish(ctx, data)
		slog.InfoContext(ctx, "task completed", "task", taskID, "duration_ms", data.DurationMillis)
		for _, cb := range callbacks {
			cb := cb
			if err := panicerr.Call(func() { cb(clone) }); err != nil {
				slog.WarnContext(ctx, "completion callback panicked", "task", taskID, "error", err)
			}
		}
		for _, cat := range cascade {
			m.ProcessQueue(ctx, cat)
		}
		m.persist(ctx)
	})
}

func (m *Manager) failTaskLocked(ctx context.Context, t *Task, reason string) {
	if t.Status.Terminal() {
		return
	}
	if t.Status == StatusPending {
		m.queues.get(t.Queue).remove(t.ID)
	}
	t.Status = StatusFailed
	t.FailureReason = reason
	m.stopMonitorLocked(t.ID)
	m.releaseCrewLocked(ctx, t.ID)
	delete(m.collabs, t.ID)
	delete(m.callbacks, t.ID)

	data := event.TaskFailedData{TaskID: t.ID, Name: t.Name, Reason: reason}
	m.postLocked(func() {
		m.publish(ctx, data)
		slog.WarnContext(ctx, "task failed", "task", data.TaskID, "reason", reason)
		m.persist(ctx)
	})
}

func (m *Manager) failNow(ctx context.Context, taskID, reason string) {
	m.mu.Lock()
	if t, ok := m.tasks[taskID]; ok {
		m.failTaskLocked(ctx, t, reason)
	}
	m.mu.Unlock()
	m.flush()
}

func (m *Manager) stopMonitorLocked(taskID string) {
	if cancel, ok := m.monitors[taskID]; ok {
		cancel()
		delete(m.monitors, taskID)
	}
}

func (m *Manager) releaseCrewLocked(ctx context.Context, taskID string) {
	crew := m.crews[taskID]
	delete(m.crews, taskID)
	for _, a := range crew {
		a.Release()
		released := event.AgentReleasedData{AgentID: a.ID(), TaskID: taskID}
		m.postLocked(func() { m.publish(ctx, released) })
	}
}

// Cancel stops a task and marks it failed with reason "cancelled".
// Pending tasks leave their queue; running tasks lose their monitor and
// free their crew.
func (m *Manager) Cancel(ctx context.Context, taskID string) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return cerr.Errorf(cerr.NotFound, nil, "task %s not found", taskID)
	}
	if t.Status.Terminal() {
		m.mu.Unlock()
		return cerr.Errorf(cerr.FailedPrecondition, nil, "task %s is already %s", taskID, t.Status)
	}
	m.failTaskLocked(ctx, t, "cancelled")
	m.mu.Unlock()
	m.flush()
	return nil
}

// RecordDeliverable stores an asset reference against a declared
// deliverable and completes the task the moment its contract is met.
func (m *Manager) RecordDeliverable(ctx context.Context, taskID, name, assetRef string) error {
	return m.recordResult(ctx, taskID, func(t *Task) error {
		if !t.hasDeliverable(name) {
			return cerr.Errorf(cerr.InvalidArgument, nil, "task %s has no deliverable %q", taskID, name)
		}
		if t.Results.Deliverables == nil {
			t.Results.Deliverables = make(map[string]string)
		}
		t.Results.Deliverables[name] = assetRef
		return nil
	})
}

// RecordGateResult stores a quality gate outcome. Only "passed" counts
// toward completion; any other value keeps the gate open.
func (m *Manager) RecordGateResult(ctx context.Context, taskID, gate, result string) error {
	return m.recordResult(ctx, taskID, func(t *Task) error {
		if !t.hasGate(gate) {
			return cerr.Errorf(cerr.InvalidArgument, nil, "task %s has no quality gate %q", taskID, gate)
		}
		if t.Results.Gates == nil {
			t.Results.Gates = make(map[string]string)
		}
		t.Results.Gates[gate] = result
		return nil
	})
}

func (m *Manager) recordResult(ctx context.Context, taskID string, apply func(*Task) error) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return cerr.Errorf(cerr.NotFound, nil, "task %s not found", taskID)
	}
	if t.Status.Terminal() {
		m.mu.Unlock()
		return cerr.Errorf(cerr.FailedPrecondition, nil, "task %s is already %s", taskID, t.Status)
	}
	if err := apply(t); err != nil {
		m.mu.Unlock()
		return err
	}
	running := t.Status == StatusInProgress || t.Status == StatusBlocked
	if running && t.ContractMet() {
		m.completeTaskLocked(ctx, t)
	} else {
		m.postLocked(func() { m.persist(ctx) })
	}
	m.mu.Unlock()
	m.flush()
	return nil
}

// AddFeedback attaches a free-form note to a task.
func (m *Manager) AddFeedback(ctx context.Context, taskID, note string) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return cerr.Errorf(cerr.NotFound, nil, "task %s not found", taskID)
	}
	t.Feedback = append(t.Feedback, note)
	m.postLocked(func() { m.persist(ctx) })
	m.mu.Unlock()
	m.flush()
	return nil
}

// ReportBlocker records an impediment against a running task and moves
// it to blocked. Monitoring continues; the task returns to in_progress
// once the block policy clears.
func (m *Manager) ReportBlocker(ctx context.Context, taskID, reason, reportedBy string) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return cerr.Errorf(cerr.NotFound, nil, "task %s not found", taskID)
	}
	if t.Status != StatusInProgress && t.Status != StatusBlocked {
		m.mu.Unlock()
		return cerr.Errorf(cerr.FailedPrecondition, nil, "task %s is not running", taskID)
	}
	t.Blockers = append(t.Blockers, Blocker{Reason: reason, ReportedBy: reportedBy, At: m.clock.Now()})
	t.Status = StatusBlocked
	data := event.TaskBlockedData{TaskID: taskID, Reason: reason, ReportedBy: reportedBy}
	m.postLocked(func() {
		m.publish(ctx, data)
		slog.WarnContext(ctx, "task blocked", "task", taskID, "reason", reason)
		m.persist(ctx)
	})
	m.mu.Unlock()
	m.flush()
	return nil
}

// Metrics recomputes aggregates from the task set. Two reads with no
// state change in between return the same values.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return computeMetrics(m.total, m.tasks)
}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	Statuses map[Status]int   `json:"statuses"`
	Queues   map[Category]int `json:"queues"`
	Metrics  Metrics          `json:"metrics"`
}

func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := make(map[Status]int)
	for _, t := range m.tasks {
		statuses[t.Status]++
	}
	return Snapshot{
		Statuses: statuses,
		Queues:   m.queues.lengths(),
		Metrics:  computeMetrics(m.total, m.tasks),
	}
}

// Restore loads the persisted task set. Tasks that were mid-flight when
// the daemon stopped go back to pending; their crew bindings did not
// survive the restart.
func (m *Manager) Restore(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	loaded, err := m.repo.Load()
	if err != nil {
		return err
	}
	byID := make(map[string]*Task, len(loaded))
	for _, t := range loaded {
		byID[t.ID] = t
	}
	if err := validateAcyclic(byID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range loaded {
		switch t.Status {
		case StatusAssigned, StatusInProgress, StatusBlocked:
			t.Status = StatusPending
			t.AssignedAgents = nil
			t.StartedAt = time.Time{}
		}
		// The task file is hand-editable, so the persisted queue name may
		// not be one of ours. Reclassify from the role set instead of
		// trusting it.
		if m.queues.get(t.Queue) == nil {
			cat, _ := Classify(t.RequiredRoles)
			slog.WarnContext(ctx, "persisted task names an unknown queue, reclassifying",
				"task", t.ID, "queue", t.Queue, "reclassified", cat)
			t.Queue = cat
		}
		m.tasks[t.ID] = t
		m.graph.ensure(t.ID)
		for _, dep := range t.Dependencies {
			m.graph.addDependency(dep, t.ID)
		}
		if t.Status == StatusPending {
			m.queues.get(t.Queue).insert(t)
		}
	}
	m.total = len(m.tasks)
	slog.InfoContext(ctx, "task state restored", "tasks", len(loaded))
	return nil
}

// Run drives the scheduler: it enables per-task monitors and sweeps the
// queues on a fixed cadence until the context ends.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.runCtx = ctx
	for id, t := range m.tasks {
		if t.Status == StatusInProgress || t.Status == StatusBlocked {
			m.startMonitorLocked(id)
		}
	}
	m.mu.Unlock()

	m.Sweep(ctx)

	ticker := m.clock.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for id, cancel := range m.monitors {
				cancel()
				delete(m.monitors, id)
			}
			m.mu.Unlock()
			m.wg.Wait()
			m.persist(context.WithoutCancel(ctx))
			return nil
		case <-ticker.Chan():
			m.Sweep(ctx)
		}
	}
}

func (m *Manager) postLocked(fn func()) {
	m.post = append(m.post, fn)
}

// flush runs deferred actions outside the lock. Actions may append more
// actions; the loop drains until empty.
func (m *Manager) flush() {
	for {
		m.mu.Lock()
		if len(m.post) == 0 {
			m.mu.Unlock()
			return
		}
		next := m.post[0]
		m.post = m.post[1:]
		m.mu.Unlock()
		next()
	}
}

func (m *Manager) publish(ctx context.Context, data any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, eventSource, data); err != nil {
		slog.WarnContext(ctx, "failed to publish scheduler event", "error", err)
	}
}

func (m *Manager) persist(ctx context.Context) {
	if m.repo == nil {
		return
	}
	if err := m.repo.Save(m.List()); err != nil {
		slog.WarnContext(ctx, "failed to persist task state", "error", err)
	}
}
