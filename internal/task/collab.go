package task

import (
	"sync"

	"github.com/stagecraft/stagehand/internal/agent"
	"github.com/stagecraft/stagehand/internal/event"
)

// Participant is one crew member inside a collaboration space.
type Participant struct {
	AgentID string `json:"agentId"`
	Role    string `json:"role"`
}

// CollaborationSpace is the shared workspace for one running task: the
// bus channel the crew talks on plus a small shared key/value board.
type CollaborationSpace struct {
	TaskID       string
	Channel      string
	Participants []Participant

	mu     sync.RWMutex
	shared map[string]string
}

func newCollaborationSpace(t *Task, crew []*agent.Agent) *CollaborationSpace {
	participants := make([]Participant, 0, len(crew))
	for _, a := range crew {
		participants = append(participants, Participant{AgentID: a.ID(), Role: a.Role()})
	}
	return &CollaborationSpace{
		TaskID:       t.ID,
		Channel:      event.TaskTopic(t.ID),
		Participants: participants,
		shared:       make(map[string]string),
	}
}

// SetShared stores a value on the shared board.
func (s *CollaborationSpace) SetShared(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shared[key] = value
}

// GetShared reads a value from the shared board.
func (s *CollaborationSpace) GetShared(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.shared[key]
	return v, ok
}

// SharedSnapshot copies the board for status views.
func (s *CollaborationSpace) SharedSnapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.shared))
	for k, v := range s.shared {
		out[k] = v
	}
	return out
}
