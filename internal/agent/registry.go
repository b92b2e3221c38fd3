package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/stagecraft/stagehand/internal/event"
	"github.com/stagecraft/stagehand/pkg/cerr"
)

// Registry is the agent role directory. The scheduler looks agents up by
// role; the roster config and autoscaler add and remove them.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	seqNum   map[string]map[int]bool // role -> used sequence numbers
	handlers map[string]func() AssignmentHandler
	bus      *event.Bus
}

// NewRegistry creates an empty registry. bus may be nil (tests).
func NewRegistry(bus *event.Bus) *Registry {
	return &Registry{
		agents:   make(map[string]*Agent),
		seqNum:   make(map[string]map[int]bool),
		handlers: make(map[string]func() AssignmentHandler),
		bus:      bus,
	}
}

// RegisterHandlerFactory wires a per-role assignment-handler constructor so
// roster reloads create agents with the right capability.
func (r *Registry) RegisterHandlerFactory(role string, factory func() AssignmentHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[role] = factory
}

// Register creates an agent for role with a sequential id (director-0001,
// director-0002, ...). Freed numbers are reused.
func (r *Registry) Register(role string, opts ...Option) *Agent {
	r.mu.Lock()
	id := r.allocateID(role)
	if len(opts) == 0 {
		if factory, ok := r.handlers[role]; ok {
			opts = append(opts, WithAssignmentHandler(factory()))
		}
	}
	a := newAgent(id, role, opts...)
	r.agents[id] = a
	r.mu.Unlock()

	r.publish(event.AgentRegisteredData{AgentID: id, Role: role})
	return a
}

// Remove deletes an agent and frees its sequence number. Agents holding a
// task cannot be removed.
func (r *Registry) Remove(agentID string) error {
	r.mu.Lock()
	a, exists := r.agents[agentID]
	if !exists {
		r.mu.Unlock()
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("agent %s not found", agentID), nil)
	}
	if a.CurrentTask() != "" {
		r.mu.Unlock()
		return cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("agent %s is holding a task", agentID), nil)
	}
	a.SetStatus(StatusStopped)
	r.freeID(agentID, a.Role())
	delete(r.agents, agentID)
	r.mu.Unlock()

	r.publish(event.AgentRemovedData{AgentID: agentID, Role: a.Role()})
	return nil
}

// Get returns the agent with the given id.
func (r *Registry) Get(agentID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, exists := r.agents[agentID]
	return a, exists
}

// AgentByRole returns any one available agent registered for role.
func (r *Registry) AgentByRole(role string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.Role() == role && a.IsAvailable() {
			return a, true
		}
	}
	return nil, false
}

// AgentsByRole returns all agents registered for role.
func (r *Registry) AgentsByRole(role string) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var agents []*Agent
	for _, a := range r.agents {
		if a.Role() == role {
			agents = append(agents, a)
		}
	}
	return agents
}

// List returns all registered agents.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	return agents
}

// Available returns all agents that can currently be reserved.
func (r *Registry) Available() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var available []*Agent
	for _, a := range r.agents {
		if a.IsAvailable() {
			available = append(available, a)
		}
	}
	return available
}

// CountByStatus returns how many agents of role are busy and idle.
func (r *Registry) CountByStatus(role string) (busy, idle int) {
	for _, a := range r.AgentsByRole(role) {
		switch a.Status() {
		case StatusBusy, StatusBlocked:
			busy++
		case StatusIdle:
			idle++
		}
	}
	return busy, idle
}

// Apply reconciles the registry with a roster: missing agents are created up
// to each role's count. Surplus agents are left alone; the autoscaler trims
// idle ones within scaling bounds.
func (r *Registry) Apply(roster *Roster) {
	for _, rc := range roster.Agents {
		current := len(r.AgentsByRole(rc.Role))
		for i := current; i < rc.Count; i++ {
			r.Register(rc.Role)
		}
	}
}

func (r *Registry) allocateID(role string) string {
	if r.seqNum[role] == nil {
		r.seqNum[role] = make(map[int]bool)
	}
	seq := 1
	for r.seqNum[role][seq] {
		seq++
	}
	r.seqNum[role][seq] = true
	return fmt.Sprintf("%s-%04d", role, seq)
}

func (r *Registry) freeID(agentID, role string) {
	var seq int
	if n, err := fmt.Sscanf(agentID, role+"-%04d", &seq); n == 1 && err == nil {
		if r.seqNum[role] != nil {
			delete(r.seqNum[role], seq)
		}
	}
}

func (r *Registry) publish(data any) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(context.Background(), "agent-registry", data)
}
